package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

const (
	// SchedulesFilename is the JSON file holding the schedule map.
	SchedulesFilename = "schedules.json"
	// AlarmsFilename is the JSON file holding the alarm records.
	AlarmsFilename = "alarms.json"
)

// FileRepository persists schedules and alarm records as JSON files in a directory.
// JSON is produced and consumed via protojson over structpb values.
type FileRepository struct {
	// schedulesPath is the location of the schedule map file.
	schedulesPath string
	// alarmsPath is the location of the alarm records file.
	alarmsPath string
	// mu serialises access to both files.
	mu sync.Mutex
}

var (
	_ ScheduleRepository = (*FileRepository)(nil)
	_ AlarmRepository    = (*FileRepository)(nil)
)

// NewFileRepository creates a repository that reads/writes JSON files in dir.
func NewFileRepository(dir string) *FileRepository {
	dir = filepath.Clean(dir)

	return &FileRepository{
		schedulesPath: filepath.Join(dir, SchedulesFilename),
		alarmsPath:    filepath.Join(dir, AlarmsFilename),
	}
}

// Put stores s, replacing any value of the same kind.
func (r *FileRepository) Put(_ context.Context, s lockdown.Schedule) error {
	payload, err := scheduleToStruct(s)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readLocked(r.schedulesPath)
	if err != nil {
		return err
	}

	doc.Fields[string(s.Kind)] = structpb.NewStructValue(payload)

	return r.writeLocked(r.schedulesPath, doc)
}

// Get returns the schedule stored for kind.
func (r *FileRepository) Get(_ context.Context, kind lockdown.ScheduleKind) (lockdown.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readLocked(r.schedulesPath)
	if err != nil {
		return lockdown.Schedule{}, err
	}

	value, ok := doc.GetFields()[string(kind)]
	if !ok || value.GetStructValue() == nil {
		return lockdown.Schedule{}, ErrNotFound
	}

	return scheduleFromStruct(kind, value.GetStructValue())
}

// Delete removes the schedule stored for kind.
func (r *FileRepository) Delete(_ context.Context, kind lockdown.ScheduleKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readLocked(r.schedulesPath)
	if err != nil {
		return err
	}

	if _, ok := doc.GetFields()[string(kind)]; !ok {
		return nil
	}

	delete(doc.Fields, string(kind))

	return r.writeLocked(r.schedulesPath, doc)
}

// List returns every stored schedule in key order.
func (r *FileRepository) List(_ context.Context) ([]lockdown.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readLocked(r.schedulesPath)
	if err != nil {
		return nil, err
	}

	result := make([]lockdown.Schedule, 0, len(scheduleKinds))

	for _, kind := range scheduleKinds {
		value, ok := doc.GetFields()[string(kind)]
		if !ok || value.GetStructValue() == nil {
			continue
		}

		s, err := scheduleFromStruct(kind, value.GetStructValue())
		if err != nil {
			return nil, err
		}

		result = append(result, s)
	}

	return result, nil
}

// LoadAlarms reads the alarm records file.
func (r *FileRepository) LoadAlarms(_ context.Context) ([]lockdown.AlarmRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readLocked(r.alarmsPath)
	if err != nil {
		return nil, err
	}

	return alarmsFromStruct(doc)
}

// SaveAlarms replaces the alarm records file.
func (r *FileRepository) SaveAlarms(_ context.Context, records []lockdown.AlarmRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeLocked(r.alarmsPath, alarmsToStruct(records))
}

// readLocked loads a JSON document; a missing file is an empty document.
func (r *FileRepository) readLocked(path string) (*structpb.Struct, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc structpb.Struct
	if err = protojson.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", filepath.Base(path), err)
	}

	if doc.Fields == nil {
		doc.Fields = map[string]*structpb.Value{}
	}

	return &doc, nil
}

// writeLocked stores a JSON document durably: write a sibling temp file,
// fsync it and rename it over the target.
func (r *FileRepository) writeLocked(path string, doc *structpb.Struct) error {
	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	tmpName := tmp.Name()

	defer func() {
		// Removing after a successful rename fails harmlessly.
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write state file: %w", err)
	}

	if err = tmp.Chmod(config.DefaultFilePermissions); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("chmod state file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("sync state file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
