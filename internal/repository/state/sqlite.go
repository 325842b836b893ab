package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// DatabaseFilename is the SQLite database file inside the state directory.
const DatabaseFilename = "lockdown.db"

// migrations creates the schema; every statement is idempotent.
//
//nolint:gochecknoglobals // Static schema.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		key        TEXT PRIMARY KEY CHECK(key IN ('daily_window','countdown')),
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alarms (
		key       TEXT PRIMARY KEY CHECK(key IN ('LOCK','UNLOCK','COUNTDOWN_END')),
		next_fire TEXT NOT NULL,
		period_ms INTEGER NOT NULL DEFAULT 0
	)`,
}

// SQLiteRepository persists schedules and alarm records in SQLite.
type SQLiteRepository struct {
	// db is the open database handle.
	db *sql.DB
}

var (
	_ ScheduleRepository = (*SQLiteRepository)(nil)
	_ AlarmRepository    = (*SQLiteRepository)(nil)
)

// OpenSQLite opens (and migrates) the database at path.
// If path is ":memory:", an in-memory database is used.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), config.DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and writes serialised.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range append(pragmas, migrations...) {
		if _, err = db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("prepare database: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Put upserts s.
func (r *SQLiteRepository) Put(ctx context.Context, s lockdown.Schedule) error {
	payload, err := scheduleToStruct(s)
	if err != nil {
		return err
	}

	data, err := protojson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	query := `INSERT OR REPLACE INTO schedules (key, payload, updated_at) VALUES (?, ?, ?)`
	if _, err = r.db.ExecContext(ctx, query, string(s.Kind), string(data), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}

	return nil
}

// Get returns the schedule stored for kind.
func (r *SQLiteRepository) Get(ctx context.Context, kind lockdown.ScheduleKind) (lockdown.Schedule, error) {
	var data string

	err := r.db.QueryRowContext(ctx, `SELECT payload FROM schedules WHERE key = ?`, string(kind)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockdown.Schedule{}, ErrNotFound
		}

		return lockdown.Schedule{}, fmt.Errorf("select schedule: %w", err)
	}

	return decodeSchedulePayload(kind, data)
}

// Delete removes the schedule stored for kind.
func (r *SQLiteRepository) Delete(ctx context.Context, kind lockdown.ScheduleKind) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE key = ?`, string(kind)); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}

	return nil
}

// List returns every stored schedule in key order.
func (r *SQLiteRepository) List(ctx context.Context) ([]lockdown.Schedule, error) {
	result := make([]lockdown.Schedule, 0, len(scheduleKinds))

	for _, kind := range scheduleKinds {
		s, err := r.Get(ctx, kind)
		if errors.Is(err, ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		result = append(result, s)
	}

	return result, nil
}

// LoadAlarms returns every stored alarm record.
func (r *SQLiteRepository) LoadAlarms(ctx context.Context) ([]lockdown.AlarmRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, next_fire, period_ms FROM alarms ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("select alarms: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []lockdown.AlarmRecord

	for rows.Next() {
		var (
			rawKey, rawNextFire string
			periodMS            int64
		)

		if err = rows.Scan(&rawKey, &rawNextFire, &periodMS); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}

		key, err := lockdown.ParseAlarmKey(rawKey)
		if err != nil {
			return nil, err
		}

		nextFire, err := time.Parse(time.RFC3339Nano, rawNextFire)
		if err != nil {
			return nil, fmt.Errorf("parse next_fire of %s: %w", key, err)
		}

		records = append(records, lockdown.AlarmRecord{
			Key:      key,
			NextFire: nextFire,
			Period:   time.Duration(periodMS) * time.Millisecond,
		})
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alarms: %w", err)
	}

	return records, nil
}

// SaveAlarms replaces every stored record in one transaction.
func (r *SQLiteRepository) SaveAlarms(ctx context.Context, records []lockdown.AlarmRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM alarms`); err != nil {
		return fmt.Errorf("clear alarms: %w", err)
	}

	for _, record := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO alarms (key, next_fire, period_ms) VALUES (?, ?, ?)`,
			string(record.Key),
			record.NextFire.UTC().Format(time.RFC3339Nano),
			record.Period.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert alarm %s: %w", record.Key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit alarms: %w", err)
	}

	committed = true

	return nil
}

func decodeSchedulePayload(kind lockdown.ScheduleKind, data string) (lockdown.Schedule, error) {
	var payload structpb.Struct
	if err := protojson.Unmarshal([]byte(data), &payload); err != nil {
		return lockdown.Schedule{}, fmt.Errorf("decode %s payload: %w", kind, err)
	}

	return scheduleFromStruct(kind, &payload)
}
