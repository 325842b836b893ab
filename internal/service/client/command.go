package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/domain/lockdown"
	"github.com/oshokin/lockdown/internal/logger"
	"github.com/oshokin/lockdown/internal/service/common"
	"github.com/oshokin/lockdown/internal/service/privilege"
)

// Options configures the CLI commands.
type Options struct {
	// ConfigPath to YAML settings file, defaults to the XDG location if empty.
	ConfigPath string
	// ServerAddress overrides the daemon address from config when specified.
	ServerAddress string
	// AssumeYes accepts the consent prompt without asking.
	AssumeYes bool
	// Out receives command output; nil means stdout.
	Out io.Writer
}

// controller is the daemon surface used by the commands.
type controller interface {
	StartCountdown(ctx context.Context, seconds string) error
	SetDailyWindow(ctx context.Context, start, end string) error
	CancelDailyWindow(ctx context.Context) error
	LockNow(ctx context.Context) error
	Status(ctx context.Context) (lockdown.Snapshot, error)
}

// granter runs the consent flow.
type granter interface {
	RequestGrant(ctx context.Context, reason string) (lockdown.GrantOutcome, error)
}

// Command output texts.
const (
	textGrantEnabled = "Device Admin enabled"
	textGrantFailed  = "Device Admin activation failed"
	textRevoked      = "Device Admin Revoked"
	textDeviceLocked = "Device locked"
)

// runner executes commands against a controller.
type runner struct {
	// ctl talks to lockdownd.
	ctl controller
	// gate requests consent after a privilege error.
	gate granter
	// out receives user-facing output.
	out io.Writer
	// location renders times.
	location *time.Location
	// now is used for relative times.
	now func() time.Time
}

// Countdown locks the device for seconds.
func Countdown(ctx context.Context, opts *Options, seconds string) error {
	return run(ctx, opts, "lockdown-countdown", func(ctx context.Context, r *runner) error {
		return r.withConsent(ctx, func(ctx context.Context) error {
			if err := r.ctl.StartCountdown(ctx, seconds); err != nil {
				return err
			}

			r.printf("%s\n", countdownText(seconds))

			return nil
		})
	})
}

// Schedule sets the daily window.
func Schedule(ctx context.Context, opts *Options, start, end string) error {
	return run(ctx, opts, "lockdown-schedule", func(ctx context.Context, r *runner) error {
		return r.withConsent(ctx, func(ctx context.Context) error {
			if err := r.ctl.SetDailyWindow(ctx, start, end); err != nil {
				return err
			}

			r.printf("Scheduled lock set from %s to %s\n", start, end)

			return nil
		})
	})
}

// Cancel removes the daily window.
func Cancel(ctx context.Context, opts *Options) error {
	return run(ctx, opts, "lockdown-cancel", func(ctx context.Context, r *runner) error {
		if err := r.ctl.CancelDailyWindow(ctx); err != nil {
			return err
		}

		r.printf("Scheduled lock cancelled\n")

		return nil
	})
}

// Lock locks the device now.
func Lock(ctx context.Context, opts *Options) error {
	return run(ctx, opts, "lockdown-lock", func(ctx context.Context, r *runner) error {
		return r.withConsent(ctx, func(ctx context.Context) error {
			if err := r.ctl.LockNow(ctx); err != nil {
				return err
			}

			r.printf("%s\n", textDeviceLocked)

			return nil
		})
	})
}

// Status prints the daemon snapshot.
func Status(ctx context.Context, opts *Options) error {
	return run(ctx, opts, "lockdown-status", func(ctx context.Context, r *runner) error {
		snapshot, err := r.ctl.Status(ctx)
		if err != nil {
			return err
		}

		r.printf("%s\n", FormatStatus(snapshot, r.now(), r.location))

		return nil
	})
}

// Grant runs the consent flow without contacting the daemon.
func Grant(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "lockdown-grant")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	r := &runner{
		gate: newGate(cfg, opts),
		out:  output(opts),
	}

	if !r.requestConsent(ctx) {
		return lockdown.ErrPrivilegeMissing
	}

	return nil
}

// Revoke removes the privilege grant.
func Revoke(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "lockdown-revoke")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = newGate(cfg, opts).Revoke(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(output(opts), textRevoked)

	return nil
}

// run loads settings, connects to the daemon and executes fn.
func run(ctx context.Context, opts *Options, name string, fn func(ctx context.Context, r *runner) error) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, name)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Use server address from options if provided, otherwise use config.
	serverAddress := cfg.ListenAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	logger.DebugKV(ctx, "Connected to lockdownd", "server_address", serverAddress)

	r := &runner{
		ctl:      client,
		gate:     newGate(cfg, opts),
		out:      output(opts),
		location: cfg.Location,
		now:      time.Now,
	}

	return fn(ctx, r)
}

// withConsent runs call and, if the daemon reports a missing privilege,
// offers consent once and retries on approval.
func (r *runner) withConsent(ctx context.Context, call func(ctx context.Context) error) error {
	err := call(ctx)
	if !errors.Is(err, lockdown.ErrPrivilegeMissing) || r.gate == nil {
		return err
	}

	logger.Info(ctx, "Lock privilege is missing, requesting consent")

	if !r.requestConsent(ctx) {
		return err
	}

	return call(ctx)
}

// requestConsent reports whether the privilege is granted after the prompt.
func (r *runner) requestConsent(ctx context.Context) bool {
	outcome, err := r.gate.RequestGrant(ctx, privilege.DefaultReason)
	if err != nil {
		logger.WarnKV(ctx, "Consent request failed", "error", err)
	}

	if outcome != lockdown.GrantGranted {
		r.printf("%s\n", textGrantFailed)

		return false
	}

	r.printf("%s\n", textGrantEnabled)

	return true
}

// countdownText confirms a started countdown with the duration as the daemon parsed it.
func countdownText(seconds string) string {
	duration, err := lockdown.ParseCountdownSeconds(seconds)
	if err != nil {
		return "Device locked for " + seconds + " seconds"
	}

	return fmt.Sprintf("Device locked for %d seconds", int64(duration/time.Second))
}

func (r *runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func newGate(cfg *config.Config, opts *Options) *privilege.FileGate {
	var prompter privilege.Prompter = privilege.NewTerminalPrompter()
	if opts.AssumeYes {
		prompter = privilege.StaticPrompter(true)
	}

	return privilege.NewFileGate(
		cfg.StatePath(privilege.GrantFilename),
		privilege.WithPrompter(prompter),
		privilege.WithActor(common.DetectActor),
	)
}

func output(opts *Options) io.Writer {
	if opts.Out != nil {
		return opts.Out
	}

	return os.Stdout
}
