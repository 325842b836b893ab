package enforcer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/repository/state"
	"github.com/oshokin/lockdown/internal/service/status"
)

func TestCore_HappyCountdown(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.StartCountdown(h.ctx, "5"))
	require.Equal(t, 1, h.locker.count())
	require.Equal(t, []string{"Device locked for 5 seconds"}, h.texts())
	require.True(t, h.presence.Active())

	snapshot := h.snapshot()
	require.Equal(t, lockdown.EnforcementState{CountdownOn: true}, snapshot.State)
	require.Equal(t, status.Locked(), snapshot.Indicator)
	require.Equal(t, []lockdown.AlarmRecord{
		{Key: lockdown.AlarmCountdownEnd, NextFire: start.Add(5 * time.Second)},
	}, snapshot.Alarms)

	stored, err := h.store.Get(h.ctx, lockdown.KindCountdown)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, stored.Countdown.Duration)

	h.clock.Advance(4 * time.Second)
	require.Len(t, h.texts(), 1)

	h.clock.Advance(time.Second)
	require.Equal(t, "Timer ended. Device can now be unlocked.", h.lastText())

	snapshot = h.snapshot()
	require.True(t, snapshot.State.Idle())
	require.Equal(t, status.Released(), snapshot.Indicator)
	require.Empty(t, snapshot.Alarms)
	require.Nil(t, snapshot.Countdown)
	require.False(t, h.presence.Active())

	_, err = h.store.Get(h.ctx, lockdown.KindCountdown)
	require.ErrorIs(t, err, state.ErrNotFound)
	require.Equal(t, 1, h.locker.count())
}

func TestCore_CountdownWithoutPrivilege(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{denied: true})

	err := h.core.StartCountdown(h.ctx, "10")
	require.ErrorIs(t, err, lockdown.ErrPrivilegeMissing)
	require.Zero(t, h.locker.count())
	require.Equal(t, []string{textPrivilegeRequired}, h.texts())

	snapshot := h.snapshot()
	require.True(t, snapshot.State.Idle())
	require.Equal(t, lockdown.NotGranted, snapshot.Privilege)
	require.Empty(t, snapshot.Alarms)

	schedules, err := h.store.List(h.ctx)
	require.NoError(t, err)
	require.Empty(t, schedules)
}

func TestCore_DailyWindowLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))
	require.Zero(t, h.locker.count())
	require.Equal(t, []string{"Scheduled lock set from 22:00 to 06:30"}, h.texts())

	lockAt := time.Date(2026, 4, 10, 22, 0, 0, 0, time.UTC)
	unlockAt := time.Date(2026, 4, 11, 6, 30, 0, 0, time.UTC)

	snapshot := h.snapshot()
	require.True(t, snapshot.State.Idle())
	require.Equal(t, []lockdown.AlarmRecord{
		daily(lockdown.AlarmLock, lockAt),
		daily(lockdown.AlarmUnlock, unlockAt),
	}, snapshot.Alarms)
	require.Equal(t, &lockdown.DailyWindow{
		Start: lockdown.HourMinute{Hour: 22},
		End:   lockdown.HourMinute{Hour: 6, Minute: 30},
	}, snapshot.DailyWindow)

	// LOCK at 22:00.
	h.clock.Advance(10 * time.Hour)
	require.Equal(t, 1, h.locker.count())
	require.Equal(t, "Scheduled Lock Activated", h.lastText())

	snapshot = h.snapshot()
	require.Equal(t, lockdown.EnforcementState{WindowOn: true}, snapshot.State)
	require.Equal(t, status.Locked(), snapshot.Indicator)
	require.True(t, h.presence.Active())

	// UNLOCK at 06:30 the next morning.
	h.clock.Advance(8*time.Hour + 30*time.Minute)
	require.Equal(t, "Scheduled Lock Deactivated. You can now unlock your device.", h.lastText())

	snapshot = h.snapshot()
	require.True(t, snapshot.State.Idle())
	require.Equal(t, status.Released(), snapshot.Indicator)
	require.False(t, h.presence.Active())
	require.Equal(t, []lockdown.AlarmRecord{
		daily(lockdown.AlarmLock, lockAt.Add(lockdown.DailyPeriod)),
		daily(lockdown.AlarmUnlock, unlockAt.Add(lockdown.DailyPeriod)),
	}, snapshot.Alarms)

	// The next evening locks again.
	h.clock.Advance(15*time.Hour + 30*time.Minute)
	require.Equal(t, 2, h.locker.count())
	require.True(t, h.snapshot().State.WindowOn)
}

// TestCore_SleptThroughNight covers a host asleep from before the window until
// inside the next night's window: both overdue alarms arrive at once.
func TestCore_SleptThroughNight(t *testing.T) {
	t.Parallel()

	var (
		lockAt   = time.Date(2026, 4, 10, 22, 0, 0, 0, time.UTC)
		unlockAt = time.Date(2026, 4, 11, 6, 30, 0, 0, time.UTC)
		wake     = time.Date(2026, 4, 11, 23, 0, 0, 0, time.UTC)
	)

	assertLocked := func(t *testing.T, h *harness) {
		t.Helper()

		snapshot := h.snapshot()
		require.Equal(t, lockdown.EnforcementState{WindowOn: true}, snapshot.State)
		require.Equal(t, status.Locked(), snapshot.Indicator)
		require.True(t, h.presence.Active())
		require.Equal(t, 1, h.locker.count())
		require.Zero(t, h.countText("Scheduled Lock Deactivated. You can now unlock your device."))
		require.Equal(t, []lockdown.AlarmRecord{
			daily(lockdown.AlarmLock, lockAt.Add(2*lockdown.DailyPeriod)),
			daily(lockdown.AlarmUnlock, unlockAt.Add(lockdown.DailyPeriod)),
		}, snapshot.Alarms)
	}

	t.Run("lock first", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, harnessConfig{})
		require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))

		h.clock.Advance(wake.Sub(start))
		assertLocked(t, h)
	})

	t.Run("unlock first", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, harnessConfig{})
		require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))

		h.clock.Set(wake)

		for _, event := range []lockdown.AlarmEvent{
			{Key: lockdown.AlarmUnlock, Scheduled: unlockAt, Delivered: wake, Late: true},
			{Key: lockdown.AlarmLock, Scheduled: lockAt, Delivered: wake, Late: true},
		} {
			require.NoError(t, h.core.OnAlarm(h.ctx, event))
		}

		assertLocked(t, h)
	})

	t.Run("resync", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, harnessConfig{})
		require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))

		h.clock.Set(wake)
		h.dispatcher.Resync()
		assertLocked(t, h)
	})
}

func TestCore_PrivilegeRevokedBeforeLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))

	h.gate.granted.Store(false)
	h.clock.Advance(10 * time.Hour)

	require.Zero(t, h.locker.count())
	require.Equal(t, "Device Admin not active. Cannot perform scheduled lock/unlock.", h.lastText())
	require.True(t, h.snapshot().State.Idle())

	// The next firing is still armed and recovers once privilege is back.
	lock, armed := h.dispatcher.Get(lockdown.AlarmLock)
	require.True(t, armed)
	require.Equal(t, time.Date(2026, 4, 11, 22, 0, 0, 0, time.UTC), lock.NextFire)

	h.gate.granted.Store(true)
	h.clock.Advance(24 * time.Hour)
	require.Equal(t, 1, h.locker.count())
}

func TestCore_BadTimeFormat(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	err := h.core.SetDailyWindow(h.ctx, "7:00pm", "06:30")
	require.ErrorIs(t, err, lockdown.ErrBadTimeFormat)
	require.Equal(t, []string{textInvalidTime}, h.texts())
	require.Empty(t, h.dispatcher.Records())

	for _, name := range []string{state.SchedulesFilename, state.AlarmsFilename} {
		_, statErr := os.Stat(filepath.Join(h.dir, name))
		require.ErrorIs(t, statErr, os.ErrNotExist)
	}
}

func TestCore_InputBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		run      func(h *harness) error
		wantText string
	}{
		{
			name:     "empty duration",
			run:      func(h *harness) error { return h.core.StartCountdown(h.ctx, "") },
			wantText: textEnterDuration,
		},
		{
			name:     "zero duration",
			run:      func(h *harness) error { return h.core.StartCountdown(h.ctx, "0") },
			wantText: textInvalidDuration,
		},
		{
			name:     "negative duration",
			run:      func(h *harness) error { return h.core.StartCountdown(h.ctx, "-5") },
			wantText: textInvalidDuration,
		},
		{
			name:     "hour out of range",
			run:      func(h *harness) error { return h.core.SetDailyWindow(h.ctx, "24:00", "06:00") },
			wantText: textInvalidTime,
		},
		{
			name:     "minute out of range",
			run:      func(h *harness) error { return h.core.SetDailyWindow(h.ctx, "07:60", "08:00") },
			wantText: textInvalidTime,
		},
		{
			name:     "missing end",
			run:      func(h *harness) error { return h.core.SetDailyWindow(h.ctx, "07:00", " ") },
			wantText: textEnterBothTimes,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, harnessConfig{})

			require.ErrorIs(t, tt.run(h), lockdown.ErrBadTimeFormat)
			require.Equal(t, []string{tt.wantText}, h.texts())
			require.Zero(t, h.locker.count())
			require.Empty(t, h.dispatcher.Records())
		})
	}
}

func TestCore_ZeroLengthWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "13:00", "13:00"))
	require.Len(t, h.dispatcher.Records(), 2)

	h.clock.Advance(time.Hour)

	require.Equal(t, 1, h.locker.count())
	require.Equal(t, 1, h.countText(textWindowActivated))
	require.Equal(t, 1, h.countText(textWindowDeactivated))

	snapshot := h.snapshot()
	require.True(t, snapshot.State.Idle())
	require.False(t, h.presence.Active())

	for _, record := range snapshot.Alarms {
		require.Equal(t, time.Date(2026, 4, 11, 13, 0, 0, 0, time.UTC), record.NextFire)
	}
}

func TestCore_ReplayedAlarmsAreIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))

	lockAt := time.Date(2026, 4, 10, 22, 0, 0, 0, time.UTC)
	unlockAt := time.Date(2026, 4, 11, 6, 30, 0, 0, time.UTC)

	h.clock.Advance(10 * time.Hour)
	once := h.snapshot()

	require.NoError(t, h.core.OnAlarm(h.ctx, lockdown.AlarmEvent{
		Key: lockdown.AlarmLock, Scheduled: lockAt, Delivered: h.clock.Now(),
	}))

	twice := h.snapshot()
	require.Equal(t, once.State, twice.State)
	require.Equal(t, once.Indicator, twice.Indicator)
	require.Equal(t, 1, h.countText(textWindowActivated))

	h.clock.Advance(8*time.Hour + 30*time.Minute)
	once = h.snapshot()

	require.NoError(t, h.core.OnAlarm(h.ctx, lockdown.AlarmEvent{
		Key: lockdown.AlarmUnlock, Scheduled: unlockAt, Delivered: h.clock.Now(),
	}))

	twice = h.snapshot()
	require.Equal(t, once.State, twice.State)
	require.Equal(t, once.Indicator, twice.Indicator)
	require.Equal(t, 1, h.countText(textWindowDeactivated))
}

func TestCore_CountdownAndWindowOverlap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "12:30", "14:00"))
	require.NoError(t, h.core.StartCountdown(h.ctx, "3600"))
	require.Equal(t, lockdown.EnforcementState{CountdownOn: true}, h.snapshot().State)

	h.clock.Advance(30 * time.Minute)
	require.Equal(t, lockdown.EnforcementState{CountdownOn: true, WindowOn: true}, h.snapshot().State)
	require.Equal(t, 2, h.locker.count())

	h.clock.Advance(30 * time.Minute)
	snapshot := h.snapshot()
	require.Equal(t, lockdown.EnforcementState{WindowOn: true}, snapshot.State)
	require.True(t, snapshot.Indicator.On)
	require.True(t, h.presence.Active())

	h.clock.Advance(time.Hour)
	require.True(t, h.snapshot().State.Idle())
	require.False(t, h.presence.Active())
}

func TestCore_CancelDailyWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "12:30", "14:00"))
	h.clock.Advance(30 * time.Minute)
	require.True(t, h.snapshot().State.WindowOn)

	require.NoError(t, h.core.CancelDailyWindow(h.ctx))
	require.Equal(t, textLockPeriodEnded, h.lastText())

	snapshot := h.snapshot()
	require.True(t, snapshot.State.Idle())
	require.Empty(t, snapshot.Alarms)
	require.Nil(t, snapshot.DailyWindow)

	_, err := h.store.Get(h.ctx, lockdown.KindDailyWindow)
	require.ErrorIs(t, err, state.ErrNotFound)

	require.NoError(t, h.core.CancelDailyWindow(h.ctx))
	require.Equal(t, textScheduleCancelled, h.lastText())

	h.clock.Advance(48 * time.Hour)
	require.Equal(t, 1, h.locker.count())
}

func TestCore_ReplacesDailyWindow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))
	require.NoError(t, h.core.SetDailyWindow(h.ctx, "20:00", "21:00"))

	require.Equal(t, []lockdown.AlarmRecord{
		daily(lockdown.AlarmLock, time.Date(2026, 4, 10, 20, 0, 0, 0, time.UTC)),
		daily(lockdown.AlarmUnlock, time.Date(2026, 4, 10, 21, 0, 0, 0, time.UTC)),
	}, h.dispatcher.Records())

	stored, err := h.store.Get(h.ctx, lockdown.KindDailyWindow)
	require.NoError(t, err)
	require.Equal(t, lockdown.HourMinute{Hour: 20}, stored.DailyWindow.Start)
}

func TestCore_NoPrivilegeNeverLocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	// Armed while granted, then revoked: later firings must not lock either.
	require.NoError(t, h.core.SetDailyWindow(h.ctx, "13:00", "15:00"))
	h.gate.granted.Store(false)

	require.ErrorIs(t, h.core.StartCountdown(h.ctx, "30"), lockdown.ErrPrivilegeMissing)
	require.ErrorIs(t, h.core.SetDailyWindow(h.ctx, "18:00", "19:00"), lockdown.ErrPrivilegeMissing)
	require.ErrorIs(t, h.core.LockNow(h.ctx), lockdown.ErrPrivilegeMissing)

	h.clock.Advance(72 * time.Hour)

	require.ErrorIs(t, h.core.StartCountdown(h.ctx, "1"), lockdown.ErrPrivilegeMissing)
	require.NoError(t, h.core.CancelDailyWindow(h.ctx))

	require.Zero(t, h.locker.count())
	require.True(t, h.snapshot().State.Idle())
}

func TestCore_LockFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})
	h.locker.err = lockdown.ErrLockUnavailable

	require.ErrorIs(t, h.core.StartCountdown(h.ctx, "60"), lockdown.ErrLockUnavailable)
	require.Equal(t, textLockFailed, h.lastText())
	require.True(t, h.snapshot().State.Idle())
	require.Empty(t, h.dispatcher.Records())

	_, err := h.store.Get(h.ctx, lockdown.KindCountdown)
	require.ErrorIs(t, err, state.ErrNotFound)

	require.ErrorIs(t, h.core.LockNow(h.ctx), lockdown.ErrLockUnavailable)
}

func TestCore_LockNow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.LockNow(h.ctx))
	require.Equal(t, 1, h.locker.count())
	require.Equal(t, textDeviceLocked, h.lastText())
	require.True(t, h.snapshot().State.Idle())
}

func TestCore_PrivilegeChanges(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "10:00", "14:00"))
	require.True(t, h.snapshot().State.Idle())

	h.gate.granted.Store(false)
	require.NoError(t, h.core.HandlePrivilegeChange(h.ctx, lockdown.NotGranted))
	require.Equal(t, textPrivilegeRevoked, h.lastText())
	require.True(t, h.snapshot().State.Idle())

	h.gate.granted.Store(true)
	require.NoError(t, h.core.HandlePrivilegeChange(h.ctx, lockdown.Granted))
	require.Contains(t, h.texts(), textPrivilegeEnabled)
	require.Equal(t, 1, h.locker.count())

	snapshot := h.snapshot()
	require.Equal(t, lockdown.EnforcementState{WindowOn: true}, snapshot.State)
	require.Equal(t, []lockdown.AlarmRecord{
		daily(lockdown.AlarmLock, time.Date(2026, 4, 11, 10, 0, 0, 0, time.UTC)),
		daily(lockdown.AlarmUnlock, time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)),
	}, snapshot.Alarms)

	// A repeated grant reconciles again without locking twice.
	require.NoError(t, h.core.HandlePrivilegeChange(h.ctx, lockdown.Granted))
	require.Equal(t, 1, h.locker.count())
	require.Equal(t, 1, h.countText(textWindowActivated))
	require.Equal(t, snapshot.Alarms, h.snapshot().Alarms)
}

func TestCore_StoppedRejectsRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessConfig{})

	require.NoError(t, h.core.StartCountdown(h.ctx, "600"))
	require.True(t, h.presence.Active())

	h.stop()

	require.False(t, h.presence.Active())

	err := h.core.StartCountdown(t.Context(), "5")
	require.ErrorIs(t, err, ErrStopped)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
}
