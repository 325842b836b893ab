package state

import (
	"context"
	"errors"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// ScheduleRepository is the keyed schedule store.
type ScheduleRepository interface {
	// Put stores s under the key derived from its kind, replacing any prior value.
	Put(ctx context.Context, s lockdown.Schedule) error
	// Get returns the schedule for kind or ErrNotFound.
	Get(ctx context.Context, kind lockdown.ScheduleKind) (lockdown.Schedule, error)
	// Delete removes the schedule for kind; deleting a missing key is not an error.
	Delete(ctx context.Context, kind lockdown.ScheduleKind) error
	// List returns every stored schedule.
	List(ctx context.Context) ([]lockdown.Schedule, error)
}

// AlarmRepository persists the dispatcher's alarm records.
type AlarmRepository interface {
	// LoadAlarms returns every stored record; an empty store yields no records.
	LoadAlarms(ctx context.Context) ([]lockdown.AlarmRecord, error)
	// SaveAlarms replaces the stored records with records.
	SaveAlarms(ctx context.Context, records []lockdown.AlarmRecord) error
}

// ErrNotFound is returned when a schedule key has no value.
var ErrNotFound = errors.New("schedule not found")

// scheduleKinds lists the keys in a stable order.
//
//nolint:gochecknoglobals // Static key list.
var scheduleKinds = []lockdown.ScheduleKind{
	lockdown.KindDailyWindow,
	lockdown.KindCountdown,
}
