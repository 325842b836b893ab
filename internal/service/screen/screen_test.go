package screen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

func staticProcesses(names ...string) ProcessLister {
	return func() ([]string, error) {
		return names, nil
	}
}

func TestCommandLocker_Command(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{
			name: "linux default",
			opts: []Option{WithGOOS("linux"), WithProcessLister(staticProcesses("bash", "Xorg"))},
			want: []string{"loginctl", "lock-session"},
		},
		{
			name: "linux xscreensaver",
			opts: []Option{WithGOOS("linux"), WithProcessLister(staticProcesses("xscreensaver"))},
			want: []string{"xscreensaver-command", "-lock"},
		},
		{
			name: "linux light-locker before gnome",
			opts: []Option{WithGOOS("linux"), WithProcessLister(staticProcesses("gnome-screensaver", "light-locker"))},
			want: []string{"light-locker-command", "-l"},
		},
		{
			name: "linux process listing fails",
			opts: []Option{WithGOOS("linux"), WithProcessLister(func() ([]string, error) {
				return nil, errors.New("no /proc")
			})},
			want: []string{"loginctl", "lock-session"},
		},
		{
			name: "darwin",
			opts: []Option{WithGOOS("darwin")},
			want: []string{"pmset", "displaysleepnow"},
		},
		{
			name: "windows",
			opts: []Option{WithGOOS("windows")},
			want: []string{"rundll32.exe", "user32.dll,LockWorkStation"},
		},
		{
			name: "override wins",
			opts: []Option{WithGOOS("plan9"), WithOverride([]string{"my-locker", "--now"})},
			want: []string{"my-locker", "--now"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := New(tt.opts...).Command()
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCommandLocker_UnsupportedOS(t *testing.T) {
	t.Parallel()

	locker := New(WithGOOS("plan9"))

	_, err := locker.Command()
	require.ErrorIs(t, err, ErrUnsupportedOS)

	err = locker.LockNow(context.Background())
	require.ErrorIs(t, err, lockdown.ErrLockUnavailable)
}

func TestCommandLocker_LockNow(t *testing.T) {
	t.Parallel()

	var ran [][]string

	locker := New(
		WithGOOS("darwin"),
		WithRunner(func(_ context.Context, argv []string) error {
			ran = append(ran, argv)

			return nil
		}),
	)

	require.NoError(t, locker.LockNow(context.Background()))
	require.NoError(t, locker.LockNow(context.Background()))
	require.Equal(t, [][]string{{"pmset", "displaysleepnow"}, {"pmset", "displaysleepnow"}}, ran)
}

func TestCommandLocker_RunFailure(t *testing.T) {
	t.Parallel()

	locker := New(
		WithOverride([]string{"false"}),
		WithRunner(func(context.Context, []string) error {
			return errors.New("exit status 1")
		}),
	)

	err := locker.LockNow(context.Background())
	require.ErrorIs(t, err, lockdown.ErrLockUnavailable)
}

func TestRunningExecutables(t *testing.T) {
	t.Parallel()

	names, err := RunningExecutables()
	require.NoError(t, err)
	require.NotEmpty(t, names)
}
