package enforcer

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/lockdown/internal/clock"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/repository/state"
)

func TestCore_RestartRearmsDailyWindow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := newHarness(t, harnessConfig{dir: dir})
	require.NoError(t, first.core.SetDailyWindow(first.ctx, "22:00", "06:30"))
	require.NoError(t, first.core.StartCountdown(first.ctx, "600"))
	first.stop()

	restartAt := start.Add(2 * time.Hour)

	tests := []struct {
		name       string
		loseAlarms bool
	}{
		{name: "alarm records kept"},
		{name: "alarm records lost with the host", loseAlarms: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			copied := copyStateDir(t, dir)
			if tt.loseAlarms {
				require.NoError(t, os.Remove(filepath.Join(copied, state.AlarmsFilename)))
			}

			h := newHarness(t, harnessConfig{dir: copied, at: restartAt})
			require.NoError(t, h.core.Startup(h.ctx))

			window := lockdown.DailyWindow{
				Start: lockdown.HourMinute{Hour: 22},
				End:   lockdown.HourMinute{Hour: 6, Minute: 30},
			}

			require.Equal(t, []lockdown.AlarmRecord{
				daily(lockdown.AlarmLock, clock.NextOccurrence(restartAt, window.Start, time.UTC)),
				daily(lockdown.AlarmUnlock, clock.NextOccurrence(restartAt, window.End, time.UTC)),
			}, h.dispatcher.Records())

			// The countdown ended while the daemon was down.
			require.Equal(t, []string{textCountdownEnded}, h.texts())
			require.True(t, h.snapshot().State.Idle())
			require.Zero(t, h.locker.count())

			// Reconcile is idempotent.
			require.NoError(t, h.core.Startup(h.ctx))
			require.Len(t, h.dispatcher.Records(), 2)

			stored, err := state.NewFileRepository(copied).LoadAlarms(h.ctx)
			require.NoError(t, err)
			require.Equal(t, h.dispatcher.Records(), stored)
		})
	}
}

func TestCore_RestartInsideWindow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := newHarness(t, harnessConfig{dir: dir})
	require.NoError(t, first.core.SetDailyWindow(first.ctx, "22:00", "06:30"))
	first.stop()

	restartAt := time.Date(2026, 4, 10, 23, 15, 0, 0, time.UTC)
	h := newHarness(t, harnessConfig{dir: dir, at: restartAt})
	require.NoError(t, h.core.Startup(h.ctx))

	require.Equal(t, 1, h.locker.count())
	require.Equal(t, []string{textWindowActivated}, h.texts())
	require.Equal(t, lockdown.EnforcementState{WindowOn: true}, h.snapshot().State)
	require.Equal(t, []lockdown.AlarmRecord{
		daily(lockdown.AlarmLock, time.Date(2026, 4, 11, 22, 0, 0, 0, time.UTC)),
		daily(lockdown.AlarmUnlock, time.Date(2026, 4, 11, 6, 30, 0, 0, time.UTC)),
	}, h.dispatcher.Records())

	h.clock.Advance(7*time.Hour + 15*time.Minute)
	require.True(t, h.snapshot().State.Idle())
}

func TestCore_RestartResumesCountdown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := newHarness(t, harnessConfig{dir: dir})
	require.NoError(t, first.core.StartCountdown(first.ctx, "3600"))
	first.stop()

	h := newHarness(t, harnessConfig{dir: dir, at: start.Add(30 * time.Minute)})
	require.NoError(t, h.core.Startup(h.ctx))

	snapshot := h.snapshot()
	require.Equal(t, lockdown.EnforcementState{CountdownOn: true}, snapshot.State)
	require.NotNil(t, snapshot.Countdown)
	require.Equal(t, []lockdown.AlarmRecord{
		{Key: lockdown.AlarmCountdownEnd, NextFire: start.Add(time.Hour)},
	}, snapshot.Alarms)
	require.Zero(t, h.locker.count())

	h.clock.Advance(29 * time.Minute)
	require.Empty(t, h.texts())

	h.clock.Advance(time.Minute)
	require.Equal(t, []string{textCountdownEnded}, h.texts())
	require.True(t, h.snapshot().State.Idle())
}

func TestCore_StartupCancelsStrayAlarms(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := state.NewFileRepository(dir)

	require.NoError(t, repo.SaveAlarms(t.Context(), []lockdown.AlarmRecord{
		daily(lockdown.AlarmLock, start.Add(time.Hour)),
		{Key: lockdown.AlarmCountdownEnd, NextFire: start.Add(time.Minute)},
	}))

	h := newHarness(t, harnessConfig{dir: dir})
	require.NoError(t, h.core.Startup(h.ctx))
	require.Empty(t, h.dispatcher.Records())

	h.clock.Advance(2 * time.Hour)
	require.Empty(t, h.texts())
	require.Zero(t, h.locker.count())
}

func TestCore_DaylightSavingReanchor(t *testing.T) {
	t.Parallel()

	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Noon EDT on the day before clocks fall back.
	at := time.Date(2026, 10, 31, 12, 0, 0, 0, newYork)
	h := newHarness(t, harnessConfig{at: at, location: newYork})

	require.NoError(t, h.core.SetDailyWindow(h.ctx, "22:00", "06:30"))

	lock, armed := h.dispatcher.Get(lockdown.AlarmLock)
	require.True(t, armed)
	require.True(t, lock.NextFire.Equal(time.Date(2026, 11, 1, 2, 0, 0, 0, time.UTC)))

	unlock, armed := h.dispatcher.Get(lockdown.AlarmUnlock)
	require.True(t, armed)
	require.True(t, unlock.NextFire.Equal(time.Date(2026, 11, 1, 11, 30, 0, 0, time.UTC)))

	h.clock.Advance(10 * time.Hour)
	require.True(t, h.snapshot().State.WindowOn)

	// 22:00 EST the next day is 25 hours later, not 24.
	lock, armed = h.dispatcher.Get(lockdown.AlarmLock)
	require.True(t, armed)
	require.True(t, lock.NextFire.Equal(time.Date(2026, 11, 2, 3, 0, 0, 0, time.UTC)), lock.NextFire)

	h.clock.Advance(9*time.Hour + 30*time.Minute)
	require.True(t, h.snapshot().State.Idle())
}

// TestCore_RestartAfterCrashPresence copies the state directory while a
// countdown runs, as if the daemon died without releasing its marker.
func TestCore_RestartAfterCrashPresence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		restartAt time.Time
		active    bool
	}{
		{name: "countdown expired while down", restartAt: start.Add(time.Hour)},
		{name: "countdown still running", restartAt: start.Add(time.Minute), active: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			first := newHarness(t, harnessConfig{})
			require.NoError(t, first.core.StartCountdown(first.ctx, "600"))
			require.True(t, first.presence.Active())

			crashed := copyStateDir(t, first.dir)
			_, err := os.Stat(filepath.Join(crashed, PresenceFilename))
			require.NoError(t, err)

			h := newHarness(t, harnessConfig{dir: crashed, at: tt.restartAt})
			require.NoError(t, h.core.Startup(h.ctx))

			require.Equal(t, tt.active, h.snapshot().State.CountdownOn)
			require.Equal(t, tt.active, h.presence.Active())

			h.stop()
			require.False(t, h.presence.Active())
		})
	}
}

func copyStateDir(t *testing.T, src string) string {
	t.Helper()

	dst := t.TempDir()

	entries, err := os.ReadDir(src)
	require.NoError(t, err)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(src, entry.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dst, entry.Name()), data, 0o600))
	}

	return dst
}
