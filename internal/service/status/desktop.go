package status

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
)

// Freedesktop icon names for the indicator.
const (
	lockedIconName   = "changes-prevent"
	unlockedIconName = "changes-allow"
)

// indicatorHint makes notification daemons replace the previous indicator bubble.
const indicatorHint = "string:x-canonical-private-synchronous:" + config.AppName

// Runner executes argv and waits for it to finish.
type Runner func(ctx context.Context, argv []string) error

// Desktop shows output through the host notification service.
type Desktop struct {
	// goos selects notify-send or osascript.
	goos string
	// run executes the notification command.
	run Runner
}

var _ Surface = (*Desktop)(nil)

// DesktopOption configures a Desktop sink.
type DesktopOption func(*Desktop)

// WithDesktopGOOS overrides the detected operating system.
func WithDesktopGOOS(goos string) DesktopOption {
	return func(d *Desktop) {
		d.goos = strings.ToLower(goos)
	}
}

// WithDesktopRunner overrides command execution.
func WithDesktopRunner(fn Runner) DesktopOption {
	return func(d *Desktop) {
		d.run = fn
	}
}

// NewDesktop creates a desktop notification sink.
func NewDesktop(opts ...DesktopOption) *Desktop {
	desktop := &Desktop{
		goos: runtime.GOOS,
		run:  execRunner,
	}

	for _, opt := range opts {
		opt(desktop)
	}

	return desktop
}

// Notify shows notice as a normal-urgency bubble.
func (d *Desktop) Notify(ctx context.Context, notice lockdown.Notice) {
	d.show(ctx, IndicatorTitle, notice.Text, "", false)
}

// SetIndicator shows the indicator; an active indicator is critical urgency so it stays on screen.
func (d *Desktop) SetIndicator(ctx context.Context, indicator lockdown.Indicator) {
	icon := unlockedIconName
	if indicator.Icon == lockdown.IconLocked {
		icon = lockedIconName
	}

	d.show(ctx, indicator.Title, indicator.Text, icon, indicator.On)
}

// Command returns the argv used to show a bubble, or nil when unsupported.
func (d *Desktop) Command(title, body, icon string, critical bool) []string {
	switch {
	case strings.Contains(d.goos, "linux"), strings.Contains(d.goos, "bsd"):
		argv := []string{"notify-send", "--app-name=" + config.AppName}

		if icon != "" {
			argv = append(argv, "--icon="+icon, "--hint="+indicatorHint)
		}

		if critical {
			argv = append(argv, "--urgency=critical")
		}

		return append(argv, title, body)
	case strings.Contains(d.goos, "darwin"):
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))

		return []string{"osascript", "-e", script}
	default:
		return nil
	}
}

func (d *Desktop) show(ctx context.Context, title, body, icon string, critical bool) {
	argv := d.Command(title, body, icon, critical)
	if argv == nil {
		return
	}

	if err := d.run(ctx, argv); err != nil {
		logger.WarnKV(ctx, "Desktop notification failed", "command", argv[0], "error", err)
	}
}

func execRunner(ctx context.Context, argv []string) error {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).Run() //nolint:gosec // argv is built from a fixed table.
}
