package server

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/service/common"
	"github.com/oshokin/lockdown/internal/service/enforcer"
	"github.com/oshokin/lockdown/internal/service/privilege"
	"github.com/oshokin/lockdown/internal/service/status"
)

var errTestList = errors.New("test list error")

// countingLocker records LockNow calls.
type countingLocker struct {
	calls atomic.Int32
}

func (l *countingLocker) LockNow(context.Context) error {
	l.calls.Add(1)

	return nil
}

func testSettings(t *testing.T, driver config.StoreDriver) *config.Config {
	t.Helper()

	settings := config.Default()
	settings.StateDir = t.TempDir()
	settings.Store = driver
	require.NoError(t, config.Validate(settings))

	return settings
}

// TestServe_EndToEnd drives the daemon through its control API.
func TestServe_EndToEnd(t *testing.T) {
	t.Parallel()

	for _, driver := range []config.StoreDriver{config.StoreFile, config.StoreSQLite} {
		t.Run(string(driver), func(t *testing.T) {
			t.Parallel()

			settings := testSettings(t, driver)

			gate := privilege.NewFileGate(
				settings.StatePath(privilege.GrantFilename),
				privilege.WithPrompter(privilege.StaticPrompter(true)),
			)
			outcome, err := gate.RequestGrant(t.Context(), privilege.DefaultReason)
			require.NoError(t, err)
			require.Equal(t, lockdown.GrantGranted, outcome)

			locker := new(countingLocker)
			recorder := status.NewRecorder(10)

			d, err := newDaemon(t.Context(), settings, dependencies{locker: locker, surface: recorder})
			require.NoError(t, err)

			defer d.close(t.Context())

			listener := bufconn.Listen(1 << 20)
			ctx, cancel := context.WithCancel(t.Context())

			served := make(chan error, 1)

			go func() {
				served <- d.serve(ctx, listener)
			}()

			client, err := common.Dial(
				t.Context(),
				"passthrough:///bufnet",
				common.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
					return listener.DialContext(ctx)
				})),
			)
			require.NoError(t, err)

			defer func() {
				_ = client.Close()
			}()

			require.NoError(t, client.StartCountdown(t.Context(), "60"))
			require.EqualValues(t, 1, locker.calls.Load())

			snapshot, err := client.Status(t.Context())
			require.NoError(t, err)
			require.True(t, snapshot.State.CountdownOn)
			require.Equal(t, lockdown.Granted, snapshot.Privilege)
			require.True(t, snapshot.Indicator.On)
			require.Contains(t, recorder.Texts(), "Device locked for 60 seconds")

			err = client.SetDailyWindow(t.Context(), "7:00", "08:00")
			require.ErrorIs(t, err, lockdown.ErrBadTimeFormat)

			_, err = os.Stat(settings.StatePath(enforcer.PresenceFilename))
			require.NoError(t, err)

			cancel()
			require.NoError(t, <-served)

			_, err = os.Stat(settings.StatePath(enforcer.PresenceFilename))
			require.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

// TestServe_RefusesWithoutPrivilege checks that nothing is stored or locked without a grant.
func TestServe_RefusesWithoutPrivilege(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, config.StoreFile)

	locker := new(countingLocker)

	d, err := newDaemon(t.Context(), settings, dependencies{locker: locker, surface: status.NewRecorder(1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	served := make(chan error, 1)

	go func() {
		served <- d.serve(ctx, bufconn.Listen(1<<10))
	}()

	err = d.core.StartCountdown(t.Context(), "60")
	require.ErrorIs(t, err, lockdown.ErrPrivilegeMissing)
	require.Zero(t, locker.calls.Load())

	cancel()
	require.NoError(t, <-served)

	schedules, err := d.store.List(t.Context())
	require.NoError(t, err)
	require.Empty(t, schedules)
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	settings := config.Default()
	dir := filepath.Join(t.TempDir(), "state")

	require.NoError(t, applyOverrides(settings, &Options{
		ListenAddress: "127.0.0.1:6000",
		StateDir:      dir,
		LogLevel:      "debug",
	}))

	require.Equal(t, "127.0.0.1:6000", settings.ListenAddress)
	require.Equal(t, dir, settings.StateDir)
	require.Equal(t, "debug", settings.LogLevel)

	err := applyOverrides(config.Default(), &Options{ListenAddress: "no-port"})
	require.Error(t, err)
}

func TestFindOther(t *testing.T) {
	t.Parallel()

	processes := []processInfo{
		{pid: 1, executable: "init"},
		{pid: 10, executable: "lockdownd"},
		{pid: 20, executable: "lockdownd"},
	}

	pid, found := findOther(processes, 10, "lockdownd")
	require.True(t, found)
	require.Equal(t, 20, pid)

	_, found = findOther(processes[:2], 10, "lockdownd")
	require.False(t, found)
}

func TestEnsureSingleInstance(t *testing.T) {
	t.Parallel()

	self, err := os.Executable()
	require.NoError(t, err)

	name := filepath.Base(self)

	err = ensureSingleInstance(t.Context(), func() ([]processInfo, error) {
		return []processInfo{{pid: os.Getpid(), executable: name}, {pid: -1, executable: name}}, nil
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, ensureSingleInstance(t.Context(), func() ([]processInfo, error) {
		return []processInfo{{pid: os.Getpid(), executable: name}}, nil
	}))

	require.NoError(t, ensureSingleInstance(t.Context(), func() ([]processInfo, error) {
		return nil, errTestList
	}))
}
