package enforcer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/lockdown/internal/clock"
	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
	"github.com/oshokin/lockdown/internal/repository/state"
	"github.com/oshokin/lockdown/internal/service/screen"
	"github.com/oshokin/lockdown/internal/service/status"
)

// PrivilegeChecker answers the uncached privilege query.
type PrivilegeChecker interface {
	IsGranted(ctx context.Context) lockdown.PrivilegeStatus
}

// Alarms is the dispatcher surface the core drives.
type Alarms interface {
	ArmOneshot(ctx context.Context, key lockdown.AlarmKey, at time.Time) error
	ArmDaily(ctx context.Context, key lockdown.AlarmKey, at time.Time) error
	Cancel(ctx context.Context, key lockdown.AlarmKey) error
	Records() []lockdown.AlarmRecord
}

// NoticeHistory exposes recently shown notices for snapshots.
type NoticeHistory interface {
	Notices() []lockdown.Notice
}

// Options wires the core to its collaborators.
type Options struct {
	// Source supplies wall time and next occurrences.
	Source *clock.Source
	// Gate answers privilege queries.
	Gate PrivilegeChecker
	// Locker drives the host lock primitive.
	Locker screen.Locker
	// Alarms arms and cancels wall-clock alarms.
	Alarms Alarms
	// Store persists schedules.
	Store state.ScheduleRepository
	// Surface receives notices and the indicator.
	Surface status.Surface
	// Presence is held while a track is active; nil disables it.
	Presence Presence
	// History backs snapshot notices; nil leaves them empty.
	History NoticeHistory
	// QueueSize is the command queue capacity.
	QueueSize int
}

// ErrStopped is returned for requests submitted after Run has exited.
var ErrStopped = errors.New("enforcer stopped")

var errIncompleteOptions = errors.New("enforcer options are incomplete")

// Core serializes commands and alarm events onto one goroutine.
type Core struct {
	// source supplies wall time.
	source *clock.Source
	// gate answers privilege queries.
	gate PrivilegeChecker
	// locker drives the host lock primitive.
	locker screen.Locker
	// alarms arms and cancels alarms.
	alarms Alarms
	// store persists schedules.
	store state.ScheduleRepository
	// surface receives user-visible output.
	surface status.Surface
	// presence is held while a track is active.
	presence Presence
	// history backs snapshot notices.
	history NoticeHistory

	// queue carries requests to the Run goroutine.
	queue chan request
	// stopped is closed when Run returns.
	stopped chan struct{}

	// The fields below are owned by the Run goroutine.

	// current is the enforcement state.
	current lockdown.EnforcementState
	// indicator is the last indicator pushed to the surface.
	indicator lockdown.Indicator
	// countdown is the active countdown.
	countdown *lockdown.Countdown
	// window is the persisted daily window.
	window *lockdown.DailyWindow
	// holding is true while the presence handle is acquired.
	holding bool
}

type request struct {
	// name identifies the request in logs.
	name string
	// handle runs on the Run goroutine.
	handle func(ctx context.Context) error
	// reply receives the handler result.
	reply chan error
}

// New validates options and creates an idle core.
func New(opts Options) (*Core, error) {
	if opts.Source == nil || opts.Gate == nil || opts.Locker == nil ||
		opts.Alarms == nil || opts.Store == nil || opts.Surface == nil {
		return nil, errIncompleteOptions
	}

	if opts.Presence == nil {
		opts.Presence = noopPresence{}
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = config.DefaultQueueSize
	}

	return &Core{
		source:    opts.Source,
		gate:      opts.Gate,
		locker:    opts.Locker,
		alarms:    opts.Alarms,
		store:     opts.Store,
		surface:   opts.Surface,
		presence:  opts.Presence,
		history:   opts.History,
		queue:     make(chan request, opts.QueueSize),
		stopped:   make(chan struct{}),
		indicator: status.Released(),
	}, nil
}

// Run processes requests in FIFO order until ctx ends.
// The presence handle is released on return.
func (c *Core) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "enforcer")

	defer close(c.stopped)
	defer c.releasePresence(context.WithoutCancel(ctx))

	// A marker left by a previous process that did not shut down cleanly is
	// dropped; reconcile acquires it again if a track is still active.
	if err := c.presence.Release(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to clear stale lockdown presence", "error", err)
	}

	logger.Info(ctx, "Enforcer started")

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Enforcer stopped")

			return nil
		case req := <-c.queue:
			err := req.handle(ctx)
			if err != nil {
				logger.DebugKV(ctx, "Request failed", "request", req.name, "error", err)
			}

			req.reply <- err
		}
	}
}

// submit posts handle to the queue and waits for its result.
func (c *Core) submit(ctx context.Context, name string, handle func(ctx context.Context) error) error {
	req := request{
		name:   name,
		handle: handle,
		reply:  make(chan error, 1),
	}

	select {
	case c.queue <- req:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-c.stopped:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition moves to next, keeping the indicator and presence consistent with it.
func (c *Core) transition(ctx context.Context, next lockdown.EnforcementState) {
	previous := c.current
	c.current = next

	if previous != next {
		logger.InfoKV(ctx, "Enforcement state changed", "from", previous.String(), "to", next.String())
	}

	switch {
	case previous.Idle() && !next.Idle():
		c.acquirePresence(ctx)
	case !previous.Idle() && next.Idle():
		c.releasePresence(ctx)
	}

	indicator := status.Released()
	if !next.Idle() {
		indicator = status.Locked()
	}

	if indicator != c.indicator {
		c.indicator = indicator
		c.surface.SetIndicator(ctx, indicator)
	}
}

func (c *Core) acquirePresence(ctx context.Context) {
	if c.holding {
		return
	}

	if err := c.presence.Acquire(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to acquire lockdown presence", "error", err)

		return
	}

	c.holding = true
}

func (c *Core) releasePresence(ctx context.Context) {
	if !c.holding {
		return
	}

	if err := c.presence.Release(ctx); err != nil {
		logger.WarnKV(ctx, "Failed to release lockdown presence", "error", err)

		return
	}

	c.holding = false
}

// notify shows text under key; an empty key gets a fresh one.
func (c *Core) notify(ctx context.Context, key, text string) {
	if key == "" {
		key = uuid.NewString()
	}

	c.surface.Notify(ctx, lockdown.Notice{
		Key:  key,
		Text: text,
		Time: c.source.Now(),
	})
}

// fail emits text and returns err for a user command.
func (c *Core) fail(ctx context.Context, text string, err error) error {
	c.notify(ctx, "", text)

	return err
}

// privileged reports whether the privilege is held right now.
func (c *Core) privileged(ctx context.Context) bool {
	return c.gate.IsGranted(ctx) == lockdown.Granted
}

// reanchor re-arms a daily alarm at the first occurrence strictly after the
// instant just handled, which keeps local wall time exact across DST.
func (c *Core) reanchor(ctx context.Context, key lockdown.AlarmKey, hm lockdown.HourMinute, handled time.Time) {
	after := c.source.Now()
	if handled.After(after) {
		after = handled
	}

	next := clock.NextOccurrence(after.Add(time.Second), hm, c.source.Location())

	if err := c.alarms.ArmDaily(ctx, key, next); err != nil {
		logger.ErrorKV(ctx, "Failed to re-arm daily alarm", "key", string(key), "error", err)
	}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, lockdown.ErrPersistenceFailure, err)
}
