package screen

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// Locker locks the screen. Locking an already locked screen is not an error.
type Locker interface {
	LockNow(ctx context.Context) error
}

// ProcessLister returns executable names of running processes.
type ProcessLister func() ([]string, error)

// CommandRunner executes argv and waits for it to finish.
type CommandRunner func(ctx context.Context, argv []string) error

// ErrUnsupportedOS indicates the current OS has no known lock command.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// daemonLockers maps locker daemons to the command that asks them to lock.
// Order matters when several are running.
var daemonLockers = []struct {
	// executable is the daemon process name.
	executable string
	// argv locks through that daemon.
	argv []string
}{
	{executable: "xscreensaver", argv: []string{"xscreensaver-command", "-lock"}},
	{executable: "light-locker", argv: []string{"light-locker-command", "-l"}},
	{executable: "gnome-screensaver", argv: []string{"gnome-screensaver-command", "-l"}},
}

// CommandLocker locks the screen by running a host command.
type CommandLocker struct {
	// override replaces detection when not empty.
	override []string
	// goos selects the platform command.
	goos string
	// processes lists running executables for daemon detection.
	processes ProcessLister
	// run executes the command.
	run CommandRunner
}

var _ Locker = (*CommandLocker)(nil)

// Option configures a CommandLocker.
type Option func(*CommandLocker)

// WithOverride sets a fixed lock command.
func WithOverride(argv []string) Option {
	return func(l *CommandLocker) {
		l.override = append([]string(nil), argv...)
	}
}

// WithGOOS overrides the detected operating system.
func WithGOOS(goos string) Option {
	return func(l *CommandLocker) {
		l.goos = strings.ToLower(goos)
	}
}

// WithProcessLister overrides process enumeration.
func WithProcessLister(fn ProcessLister) Option {
	return func(l *CommandLocker) {
		l.processes = fn
	}
}

// WithRunner overrides command execution.
func WithRunner(fn CommandRunner) Option {
	return func(l *CommandLocker) {
		l.run = fn
	}
}

// New creates a locker for the current host.
func New(opts ...Option) *CommandLocker {
	locker := &CommandLocker{
		goos:      runtime.GOOS,
		processes: RunningExecutables,
		run:       runCommand,
	}

	for _, opt := range opts {
		opt(locker)
	}

	return locker
}

// Command returns the argv LockNow would run.
func (l *CommandLocker) Command() ([]string, error) {
	if len(l.override) > 0 {
		return append([]string(nil), l.override...), nil
	}

	switch {
	case strings.Contains(l.goos, "linux"), strings.Contains(l.goos, "bsd"):
		return l.unixCommand(), nil
	case strings.Contains(l.goos, "darwin"):
		return []string{"pmset", "displaysleepnow"}, nil
	case strings.Contains(l.goos, "windows"):
		return []string{"rundll32.exe", "user32.dll,LockWorkStation"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, l.goos)
	}
}

// LockNow runs the lock command. Any failure is reported as lockdown.ErrLockUnavailable.
func (l *CommandLocker) LockNow(ctx context.Context) error {
	argv, err := l.Command()
	if err != nil {
		return fmt.Errorf("resolve lock command: %w: %w", lockdown.ErrLockUnavailable, err)
	}

	logger.DebugKV(ctx, "Locking screen", "command", strings.Join(argv, " "))

	if err = l.run(ctx, argv); err != nil {
		return fmt.Errorf("run %s: %w: %w", argv[0], lockdown.ErrLockUnavailable, err)
	}

	return nil
}

func (l *CommandLocker) unixCommand() []string {
	if l.processes != nil {
		running, err := l.processes()
		if err == nil {
			names := make(map[string]struct{}, len(running))
			for _, name := range running {
				names[name] = struct{}{}
			}

			for _, candidate := range daemonLockers {
				if _, found := names[candidate.executable]; found {
					return append([]string(nil), candidate.argv...)
				}
			}
		}
	}

	return []string{"loginctl", "lock-session"}
}

// RunningExecutables lists executable names of every running process.
func RunningExecutables() ([]string, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	result := make([]string, 0, len(processList))
	for _, process := range processList {
		result = append(result, process.Executable())
	}

	return result, nil
}

func runCommand(ctx context.Context, argv []string) error {
	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput() //nolint:gosec // argv comes from a fixed table or the operator's config.
	if err != nil {
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			return fmt.Errorf("%w: %s", err, trimmed)
		}

		return err
	}

	return nil
}
