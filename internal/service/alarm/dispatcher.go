package alarm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/lockdown/internal/clock"
	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
	"github.com/oshokin/lockdown/internal/repository/state"
)

// Sink receives fired alarms. It may block; the dispatcher holds no lock while it runs.
type Sink func(event lockdown.AlarmEvent)

// Options tunes delivery.
type Options struct {
	// LateThreshold marks a delivery late when it lags the fire instant by more.
	LateThreshold time.Duration
	// ResyncInterval is the period of the wall-clock check in Run.
	ResyncInterval time.Duration
}

// Dispatcher arms, persists and delivers alarm records.
type Dispatcher struct {
	// clock drives timers and supplies wall time.
	clock clock.Clock
	// repo persists records.
	repo state.AlarmRepository
	// sink receives events.
	sink Sink
	// opts holds the tuning knobs.
	opts Options
	// logCtx carries the named logger for timer callbacks.
	logCtx context.Context //nolint:containedctx // Timer callbacks have no caller context.
	// entries maps keys to armed records.
	entries map[lockdown.AlarmKey]*entry
	// generation stamps timers so stale callbacks are ignored.
	generation uint64
	// mu guards entries, generation and persistence order.
	mu sync.Mutex
}

type entry struct {
	// record is the armed alarm.
	record lockdown.AlarmRecord
	// timer fires the record; nil when the record is overdue.
	timer *clock.Timer
	// generation identifies the timer that may fire this entry.
	generation uint64
}

// New creates a dispatcher. Records are not loaded until Load.
func New(ctx context.Context, c clock.Clock, repo state.AlarmRepository, sink Sink, opts Options) *Dispatcher {
	if opts.LateThreshold <= 0 {
		opts.LateThreshold = config.DefaultLateThreshold
	}

	if opts.ResyncInterval <= 0 {
		opts.ResyncInterval = config.DefaultResyncInterval
	}

	return &Dispatcher{
		clock:   c,
		repo:    repo,
		sink:    sink,
		opts:    opts,
		logCtx:  logger.WithName(ctx, "alarm-dispatcher"),
		entries: make(map[lockdown.AlarmKey]*entry),
	}
}

// Load replaces in-memory records with the persisted ones and arms them.
// Overdue records are delivered by the next Resync.
func (d *Dispatcher) Load(ctx context.Context) error {
	records, err := d.repo.LoadAlarms(ctx)
	if err != nil {
		return fmt.Errorf("load alarms: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopAllLocked()

	for _, record := range records {
		d.installLocked(record)
	}

	logger.InfoKV(d.logCtx, "Alarm records loaded", "count", len(records))

	return nil
}

// ArmOneshot arms key to fire once at at, replacing any existing record.
func (d *Dispatcher) ArmOneshot(ctx context.Context, key lockdown.AlarmKey, at time.Time) error {
	return d.arm(ctx, lockdown.AlarmRecord{Key: key, NextFire: at})
}

// ArmDaily arms key to fire at at and every DailyPeriod after.
func (d *Dispatcher) ArmDaily(ctx context.Context, key lockdown.AlarmKey, at time.Time) error {
	return d.arm(ctx, lockdown.AlarmRecord{Key: key, NextFire: at, Period: lockdown.DailyPeriod})
}

// Cancel removes key. Cancelling a missing key is not an error.
func (d *Dispatcher) Cancel(ctx context.Context, key lockdown.AlarmKey) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, found := d.entries[key]
	if !found {
		return nil
	}

	records := d.recordsLocked(func(r lockdown.AlarmRecord) bool { return r.Key != key })
	if err := d.repo.SaveAlarms(ctx, records); err != nil {
		return fmt.Errorf("cancel %s: %w: %w", key, lockdown.ErrAlarmArmFailed, err)
	}

	current.timer.Stop()
	delete(d.entries, key)

	logger.DebugKV(ctx, "Alarm cancelled", "key", string(key))

	return nil
}

// Get returns the armed record for key.
func (d *Dispatcher) Get(key lockdown.AlarmKey) (lockdown.AlarmRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, found := d.entries[key]
	if !found {
		return lockdown.AlarmRecord{}, false
	}

	return current.record, true
}

// Records returns every armed record ordered by key.
func (d *Dispatcher) Records() []lockdown.AlarmRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.recordsLocked(nil)
}

// Run resyncs against wall time immediately and then every ResyncInterval
// until ctx ends. Timers are stopped on return.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.opts.ResyncInterval)
	defer ticker.Stop()

	defer func() {
		d.mu.Lock()
		d.stopAllLocked()
		d.mu.Unlock()
	}()

	d.Resync()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Resync()
		}
	}
}

// Resync delivers every record whose fire instant has passed, oldest first.
func (d *Dispatcher) Resync() {
	now := d.clock.Now()

	type due struct {
		key        lockdown.AlarmKey
		nextFire   time.Time
		generation uint64
	}

	d.mu.Lock()

	var pending []due

	for key, current := range d.entries {
		if !current.record.NextFire.After(now) {
			pending = append(pending, due{key: key, nextFire: current.record.NextFire, generation: current.generation})
		}
	}

	d.mu.Unlock()

	// Oldest first, ties broken by key.
	slices.SortFunc(pending, func(a, b due) int {
		if c := a.nextFire.Compare(b.nextFire); c != 0 {
			return c
		}

		return strings.Compare(string(a.key), string(b.key))
	})

	for _, item := range pending {
		d.fire(item.key, item.generation)
	}
}

func (d *Dispatcher) arm(ctx context.Context, record lockdown.AlarmRecord) error {
	if _, err := lockdown.ParseAlarmKey(string(record.Key)); err != nil {
		return fmt.Errorf("%w: %w", lockdown.ErrAlarmArmFailed, err)
	}

	if record.NextFire.IsZero() {
		return fmt.Errorf("%w: %s has no fire time", lockdown.ErrAlarmArmFailed, record.Key)
	}

	d.mu.Lock()

	records := append(
		d.recordsLocked(func(r lockdown.AlarmRecord) bool { return r.Key != record.Key }),
		record,
	)
	sortRecords(records)

	if err := d.repo.SaveAlarms(ctx, records); err != nil {
		d.mu.Unlock()

		return fmt.Errorf("arm %s: %w: %w", record.Key, lockdown.ErrAlarmArmFailed, err)
	}

	if current, found := d.entries[record.Key]; found {
		current.timer.Stop()
	}

	installed := d.installLocked(record)
	overdue := installed.timer == nil
	generation := installed.generation

	d.mu.Unlock()

	logger.DebugKV(
		ctx,
		"Alarm armed",
		"key", string(record.Key),
		"next_fire", record.NextFire.Format(time.RFC3339),
		"recurring", record.Recurring(),
	)

	// The caller may be the sink's own goroutine, so an overdue record is
	// delivered asynchronously.
	if overdue {
		go d.fire(record.Key, generation)
	}

	return nil
}

// installLocked stores record and starts its timer unless it is already due.
func (d *Dispatcher) installLocked(record lockdown.AlarmRecord) *entry {
	d.generation++

	installed := &entry{
		record:     record,
		generation: d.generation,
	}

	d.entries[record.Key] = installed
	d.scheduleLocked(installed)

	return installed
}

func (d *Dispatcher) scheduleLocked(e *entry) {
	e.timer = nil

	delay := e.record.NextFire.Sub(d.clock.Now())
	if delay <= 0 {
		return
	}

	key, generation := e.record.Key, e.generation
	e.timer = d.clock.AfterFunc(delay, func() {
		d.fire(key, generation)
	})
}

// fire delivers key if the given timer generation is still current and the
// record is due by wall time. A timer that fires early re-arms itself.
func (d *Dispatcher) fire(key lockdown.AlarmKey, generation uint64) {
	now := d.clock.Now()

	d.mu.Lock()

	current, found := d.entries[key]
	if !found || current.generation != generation {
		d.mu.Unlock()

		return
	}

	if now.Before(current.record.NextFire) {
		d.scheduleLocked(current)
		d.mu.Unlock()

		return
	}

	event := lockdown.AlarmEvent{
		Key:       key,
		Scheduled: current.record.NextFire,
		Delivered: now,
		Late:      now.Sub(current.record.NextFire) > d.opts.LateThreshold,
	}

	current.timer.Stop()

	if current.record.Recurring() {
		advanced := current.record
		advanced.Advance(now)
		d.installLocked(advanced)
	} else {
		delete(d.entries, key)
	}

	d.mu.Unlock()

	logger.InfoKV(
		d.logCtx,
		"Alarm fired",
		"key", string(key),
		"scheduled", event.Scheduled.Format(time.RFC3339),
		"late", event.Late,
	)

	if d.sink != nil {
		d.sink(event)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.repo.SaveAlarms(d.logCtx, d.recordsLocked(nil)); err != nil {
		logger.ErrorKV(d.logCtx, "Failed to persist alarms after delivery", "key", string(key), "error", err)
	}
}

func (d *Dispatcher) recordsLocked(keep func(lockdown.AlarmRecord) bool) []lockdown.AlarmRecord {
	records := make([]lockdown.AlarmRecord, 0, len(d.entries))

	for _, current := range d.entries {
		if keep == nil || keep(current.record) {
			records = append(records, current.record)
		}
	}

	sortRecords(records)

	return records
}

func (d *Dispatcher) stopAllLocked() {
	for key, current := range d.entries {
		current.timer.Stop()
		delete(d.entries, key)
	}
}

func sortRecords(records []lockdown.AlarmRecord) {
	slices.SortFunc(records, func(a, b lockdown.AlarmRecord) int {
		return strings.Compare(string(a.Key), string(b.Key))
	})
}
