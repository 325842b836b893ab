package enforcer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/oshokin/lockdown/internal/config"
)

// PresenceFilename is the marker written while a lockdown is active.
const PresenceFilename = "lockdown.active"

// Presence is held while any lockdown track is active.
type Presence interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// MarkerPresence records the active lockdown as a marker file holding the
// daemon PID and the acquisition time.
type MarkerPresence struct {
	// path is the marker location.
	path string
	// now stamps the marker.
	now func() time.Time
}

// NewMarkerPresence creates a presence marker at path.
func NewMarkerPresence(path string) *MarkerPresence {
	return &MarkerPresence{
		path: path,
		now:  time.Now,
	}
}

// Acquire writes the marker.
func (p *MarkerPresence) Acquire(context.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.path), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create presence directory: %w", err)
	}

	contents := strconv.Itoa(os.Getpid()) + " " + p.now().UTC().Format(time.RFC3339) + "\n"

	if err := os.WriteFile(p.path, []byte(contents), config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write presence marker: %w", err)
	}

	return nil
}

// Release removes the marker; releasing twice is not an error.
func (p *MarkerPresence) Release(context.Context) error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove presence marker: %w", err)
	}

	return nil
}

// Active reports whether the marker exists.
func (p *MarkerPresence) Active() bool {
	_, err := os.Stat(p.path)

	return err == nil
}

type noopPresence struct{}

func (noopPresence) Acquire(context.Context) error { return nil }
func (noopPresence) Release(context.Context) error { return nil }
