package enforcer

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/lockdown/internal/clock"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
	"github.com/oshokin/lockdown/internal/repository/state"
)

// countdownSlack is how far before the countdown end a COUNTDOWN_END may be
// scheduled and still belong to it.
const countdownSlack = time.Second

// OnAlarm handles a dispatcher event and returns once it was processed.
// Failures are reported through the surface and the log, never returned.
func (c *Core) OnAlarm(ctx context.Context, event lockdown.AlarmEvent) error {
	return c.submit(ctx, "alarm_"+string(event.Key), func(ctx context.Context) error {
		c.handleAlarm(ctx, event)

		return nil
	})
}

// Startup reconciles the persisted schedules with the dispatcher: both
// window alarms are re-armed at their next occurrences, a running countdown
// keeps its end alarm and records without a schedule are cancelled. It is
// idempotent.
func (c *Core) Startup(ctx context.Context) error {
	return c.submit(ctx, "startup", c.startup)
}

// HandlePrivilegeChange reports an externally observed grant or revocation.
// A grant re-runs the startup reconcile, so inside the daily window the
// device is locked right away.
func (c *Core) HandlePrivilegeChange(ctx context.Context, status lockdown.PrivilegeStatus) error {
	return c.submit(ctx, "privilege_changed", func(ctx context.Context) error {
		if status != lockdown.Granted {
			logger.Warn(ctx, "Privilege revoked externally")
			c.notify(ctx, "", textPrivilegeRevoked)

			return nil
		}

		c.notify(ctx, "", textPrivilegeEnabled)

		return c.startup(ctx)
	})
}

func (c *Core) handleAlarm(ctx context.Context, event lockdown.AlarmEvent) {
	ctx = logger.WithKV(ctx, "alarm", string(event.Key), "event_id", event.ID())

	if event.Late {
		logger.WarnKV(ctx, "Late alarm delivery", "lag", event.Delivered.Sub(event.Scheduled).String())
	}

	switch event.Key {
	case lockdown.AlarmLock:
		c.handleLock(ctx, event)
	case lockdown.AlarmUnlock:
		c.handleUnlock(ctx, event)
	case lockdown.AlarmCountdownEnd:
		c.handleCountdownEnd(ctx, event)
	default:
		logger.WarnKV(ctx, "Unknown alarm ignored")
	}
}

func (c *Core) handleLock(ctx context.Context, event lockdown.AlarmEvent) {
	if c.window == nil {
		logger.Warn(ctx, "LOCK fired without a daily window, cancelling it")

		if err := c.alarms.Cancel(ctx, lockdown.AlarmLock); err != nil {
			logger.ErrorKV(ctx, "Failed to cancel stray alarm", "error", err)
		}

		return
	}

	window := *c.window
	defer c.reanchor(ctx, lockdown.AlarmLock, window.Start, event.Scheduled)

	now := c.source.Now()
	inside := window.Contains(now)
	momentary := window.Start == window.End && !event.Late

	if !inside && !momentary {
		logger.InfoKV(ctx, "LOCK arrived after the window was over, skipping", "window", window.String())

		return
	}

	if !c.privileged(ctx) {
		logger.Warn(ctx, "Scheduled lock skipped: privilege not granted")
		c.notify(ctx, event.ID()+"/privilege", textPrivilegeInactive)

		return
	}

	if err := c.locker.LockNow(ctx); err != nil {
		logger.ErrorKV(ctx, "Scheduled lock failed", "error", err)
		c.notify(ctx, event.ID()+"/lock-failed", textLockFailed)

		return
	}

	c.notify(ctx, event.ID(), textWindowActivated)

	// A zero-length window locks once and has no period to enforce.
	if inside {
		c.transition(ctx, lockdown.EnforcementState{CountdownOn: c.current.CountdownOn, WindowOn: true})
	}
}

func (c *Core) handleUnlock(ctx context.Context, event lockdown.AlarmEvent) {
	if c.window == nil {
		logger.Warn(ctx, "UNLOCK fired without a daily window, cancelling it")

		if err := c.alarms.Cancel(ctx, lockdown.AlarmUnlock); err != nil {
			logger.ErrorKV(ctx, "Failed to cancel stray alarm", "error", err)
		}
	} else {
		window := *c.window
		defer c.reanchor(ctx, lockdown.AlarmUnlock, window.End, event.Scheduled)

		// An UNLOCK older than the start of the window now in progress belongs
		// to an earlier night that was slept through.
		now := c.source.Now()
		if window.Contains(now) &&
			event.Scheduled.Before(clock.PreviousOccurrence(now, window.Start, c.source.Location())) {
			logger.InfoKV(ctx, "Stale UNLOCK ignored, the window is active again", "window", window.String())

			return
		}
	}

	c.notify(ctx, event.ID(), textWindowDeactivated)
	c.transition(ctx, lockdown.EnforcementState{CountdownOn: c.current.CountdownOn})
}

func (c *Core) handleCountdownEnd(ctx context.Context, event lockdown.AlarmEvent) {
	if c.countdown != nil && event.Scheduled.Before(c.countdown.EndsAt().Add(-countdownSlack)) {
		logger.InfoKV(ctx, "Stale COUNTDOWN_END ignored", "ends_at", c.countdown.EndsAt().Format(time.RFC3339))

		return
	}

	if err := c.store.Delete(ctx, lockdown.KindCountdown); err != nil {
		logger.ErrorKV(ctx, "Failed to delete countdown", "error", err)
	}

	c.countdown = nil
	c.notify(ctx, event.ID(), textCountdownEnded)
	c.transition(ctx, lockdown.EnforcementState{WindowOn: c.current.WindowOn})
}

func (c *Core) startup(ctx context.Context) error {
	schedules, err := c.store.List(ctx)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return persistenceError("list schedules", err)
	}

	var (
		window    *lockdown.DailyWindow
		countdown *lockdown.Countdown
	)

	for _, s := range schedules {
		switch s.Kind {
		case lockdown.KindDailyWindow:
			window = s.DailyWindow
		case lockdown.KindCountdown:
			countdown = s.Countdown
		}
	}

	var errs []error

	errs = append(errs, c.reconcileWindow(ctx, window), c.reconcileCountdown(ctx, countdown))

	logger.InfoKV(
		ctx,
		"Startup reconcile finished",
		"state", c.current.String(),
		"window", window != nil,
		"countdown", countdown != nil,
	)

	return errors.Join(errs...)
}

func (c *Core) reconcileWindow(ctx context.Context, window *lockdown.DailyWindow) error {
	if window == nil {
		c.window = nil

		return errors.Join(
			c.alarms.Cancel(ctx, lockdown.AlarmLock),
			c.alarms.Cancel(ctx, lockdown.AlarmUnlock),
		)
	}

	c.window = window

	if err := c.armWindow(ctx, *window); err != nil {
		logger.ErrorKV(ctx, "Failed to re-arm daily window", "error", err)
		c.notify(ctx, "", textArmFailed)

		return err
	}

	now := c.source.Now()
	if window.Contains(now) && !c.current.WindowOn {
		c.handleLock(ctx, lockdown.AlarmEvent{Key: lockdown.AlarmLock, Scheduled: now, Delivered: now})
	}

	return nil
}

func (c *Core) reconcileCountdown(ctx context.Context, countdown *lockdown.Countdown) error {
	if countdown == nil {
		c.countdown = nil

		return c.alarms.Cancel(ctx, lockdown.AlarmCountdownEnd)
	}

	now := c.source.Now()

	if countdown.Remaining(now) == 0 {
		if err := c.alarms.Cancel(ctx, lockdown.AlarmCountdownEnd); err != nil {
			logger.ErrorKV(ctx, "Failed to cancel countdown alarm", "error", err)
		}

		c.countdown = countdown
		c.handleCountdownEnd(ctx, lockdown.AlarmEvent{
			Key:       lockdown.AlarmCountdownEnd,
			Scheduled: countdown.EndsAt(),
			Delivered: now,
			Late:      true,
		})

		return nil
	}

	if err := c.alarms.ArmOneshot(ctx, lockdown.AlarmCountdownEnd, countdown.EndsAt()); err != nil {
		logger.ErrorKV(ctx, "Failed to re-arm countdown", "error", err)
		c.notify(ctx, "", textArmFailed)

		return err
	}

	c.countdown = countdown
	c.transition(ctx, lockdown.EnforcementState{CountdownOn: true, WindowOn: c.current.WindowOn})

	return nil
}
