package enforcer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// StartCountdown locks the device now and announces the end after seconds.
func (c *Core) StartCountdown(ctx context.Context, seconds string) error {
	return c.submit(ctx, "start_countdown", func(ctx context.Context) error {
		return c.startCountdown(ctx, seconds)
	})
}

// SetDailyWindow persists a daily window and arms its LOCK and UNLOCK alarms.
// A previous window is replaced. The device is not locked until LOCK fires.
func (c *Core) SetDailyWindow(ctx context.Context, start, end string) error {
	return c.submit(ctx, "set_daily_window", func(ctx context.Context) error {
		return c.setDailyWindow(ctx, start, end)
	})
}

// CancelDailyWindow cancels both window alarms and forgets the window.
func (c *Core) CancelDailyWindow(ctx context.Context) error {
	return c.submit(ctx, "cancel_daily_window", c.cancelDailyWindow)
}

// LockNow locks the device immediately without changing the enforcement state.
func (c *Core) LockNow(ctx context.Context) error {
	return c.submit(ctx, "lock_now", func(ctx context.Context) error {
		if !c.privileged(ctx) {
			return c.fail(ctx, textPrivilegeRequired, lockdown.ErrPrivilegeMissing)
		}

		if err := c.locker.LockNow(ctx); err != nil {
			return c.fail(ctx, textLockFailed, err)
		}

		c.notify(ctx, "", textDeviceLocked)

		return nil
	})
}

// Status returns a consistent snapshot of the core.
func (c *Core) Status(ctx context.Context) (lockdown.Snapshot, error) {
	var snapshot lockdown.Snapshot

	err := c.submit(ctx, "status", func(ctx context.Context) error {
		snapshot = lockdown.Snapshot{
			State:     c.current,
			Privilege: c.gate.IsGranted(ctx),
			Indicator: c.indicator,
			Alarms:    c.alarms.Records(),
		}

		if c.countdown != nil {
			countdown := *c.countdown
			snapshot.Countdown = &countdown
		}

		if c.window != nil {
			window := *c.window
			snapshot.DailyWindow = &window
		}

		if c.history != nil {
			snapshot.Notices = c.history.Notices()
		}

		return nil
	})

	return snapshot, err
}

func (c *Core) startCountdown(ctx context.Context, seconds string) error {
	if strings.TrimSpace(seconds) == "" {
		return c.fail(ctx, textEnterDuration, fmt.Errorf("%w: duration is empty", lockdown.ErrBadTimeFormat))
	}

	duration, err := lockdown.ParseCountdownSeconds(seconds)
	if err != nil {
		return c.fail(ctx, textInvalidDuration, err)
	}

	if !c.privileged(ctx) {
		logger.Warn(ctx, "Countdown refused: privilege not granted")

		return c.fail(ctx, textPrivilegeRequired, lockdown.ErrPrivilegeMissing)
	}

	countdown := lockdown.Countdown{
		StartedAt: c.source.Now(),
		Duration:  duration,
	}

	if err = c.store.Put(ctx, lockdown.NewCountdownSchedule(countdown)); err != nil {
		return c.fail(ctx, textSaveFailed, persistenceError("save countdown", err))
	}

	if err = c.locker.LockNow(ctx); err != nil {
		c.forgetCountdown(ctx)

		return c.fail(ctx, textLockFailed, err)
	}

	if err = c.alarms.ArmOneshot(ctx, lockdown.AlarmCountdownEnd, countdown.EndsAt()); err != nil {
		c.forgetCountdown(ctx)

		return c.fail(ctx, textArmFailed, err)
	}

	c.countdown = &countdown
	c.transition(ctx, lockdown.EnforcementState{CountdownOn: true, WindowOn: c.current.WindowOn})
	c.notify(ctx, "", fmt.Sprintf(textCountdownStarted, int64(duration/time.Second)))

	logger.InfoKV(ctx, "Countdown started", "duration", duration.String(), "ends_at", countdown.EndsAt().Format(time.RFC3339))

	return nil
}

// forgetCountdown drops a countdown that could not be started; an earlier
// countdown that is still running stays persisted and armed.
func (c *Core) forgetCountdown(ctx context.Context) {
	if c.countdown != nil {
		if err := c.store.Put(ctx, lockdown.NewCountdownSchedule(*c.countdown)); err != nil {
			logger.ErrorKV(ctx, "Failed to restore countdown", "error", err)
		}

		return
	}

	if err := c.store.Delete(ctx, lockdown.KindCountdown); err != nil {
		logger.ErrorKV(ctx, "Failed to delete countdown", "error", err)
	}
}

func (c *Core) setDailyWindow(ctx context.Context, rawStart, rawEnd string) error {
	if strings.TrimSpace(rawStart) == "" || strings.TrimSpace(rawEnd) == "" {
		return c.fail(ctx, textEnterBothTimes, fmt.Errorf("%w: start and end are required", lockdown.ErrBadTimeFormat))
	}

	start, err := lockdown.ParseHourMinute(rawStart)
	if err != nil {
		return c.fail(ctx, textInvalidTime, err)
	}

	end, err := lockdown.ParseHourMinute(rawEnd)
	if err != nil {
		return c.fail(ctx, textInvalidTime, err)
	}

	if !c.privileged(ctx) {
		logger.Warn(ctx, "Daily window refused: privilege not granted")

		return c.fail(ctx, textPrivilegeRequired, lockdown.ErrPrivilegeMissing)
	}

	window := lockdown.DailyWindow{Start: start, End: end}

	if err = c.store.Put(ctx, lockdown.NewDailyWindowSchedule(window)); err != nil {
		return c.fail(ctx, textSaveFailed, persistenceError("save daily window", err))
	}

	if err = c.armWindow(ctx, window); err != nil {
		c.dropWindow(ctx)

		return c.fail(ctx, textArmFailed, err)
	}

	c.window = &window
	c.notify(ctx, "", fmt.Sprintf(textWindowSet, start, end))

	logger.InfoKV(ctx, "Daily window set", "window", window.String())

	return nil
}

// armWindow arms LOCK and UNLOCK at their next occurrences.
func (c *Core) armWindow(ctx context.Context, window lockdown.DailyWindow) error {
	lockAt := c.source.NextOccurrence(window.Start)
	unlockAt := c.source.NextOccurrence(window.End)

	if err := c.alarms.ArmDaily(ctx, lockdown.AlarmLock, lockAt); err != nil {
		return err
	}

	return c.alarms.ArmDaily(ctx, lockdown.AlarmUnlock, unlockAt)
}

// dropWindow removes a window whose alarms could not be armed.
func (c *Core) dropWindow(ctx context.Context) {
	var errs []error

	errs = append(errs,
		c.alarms.Cancel(ctx, lockdown.AlarmLock),
		c.alarms.Cancel(ctx, lockdown.AlarmUnlock),
		c.store.Delete(ctx, lockdown.KindDailyWindow),
	)

	if err := errors.Join(errs...); err != nil {
		logger.ErrorKV(ctx, "Failed to roll back daily window", "error", err)
	}

	c.window = nil

	if c.current.WindowOn {
		c.transition(ctx, lockdown.EnforcementState{CountdownOn: c.current.CountdownOn})
	}
}

func (c *Core) cancelDailyWindow(ctx context.Context) error {
	if err := c.alarms.Cancel(ctx, lockdown.AlarmLock); err != nil {
		return c.fail(ctx, textArmFailed, err)
	}

	if err := c.alarms.Cancel(ctx, lockdown.AlarmUnlock); err != nil {
		return c.fail(ctx, textArmFailed, err)
	}

	if err := c.store.Delete(ctx, lockdown.KindDailyWindow); err != nil {
		return c.fail(ctx, textSaveFailed, persistenceError("delete daily window", err))
	}

	c.window = nil

	if c.current.WindowOn {
		c.transition(ctx, lockdown.EnforcementState{CountdownOn: c.current.CountdownOn})
		c.notify(ctx, "", textLockPeriodEnded)
	} else {
		c.notify(ctx, "", textScheduleCancelled)
	}

	logger.Info(ctx, "Daily window cancelled")

	return nil
}
