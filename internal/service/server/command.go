package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"google.golang.org/grpc"

	api "github.com/oshokin/lockdown/internal/api/grpc/lockdown"
	"github.com/oshokin/lockdown/internal/config"
	"github.com/oshokin/lockdown/internal/logger"
)

// Options controls the lockdownd process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// StateDir overrides the directory holding schedules, alarms and the grant.
	StateDir string
	// LogLevel overrides the log level from settings.
	LogLevel string
}

// ErrAlreadyRunning indicates another lockdownd owns the state directory.
var ErrAlreadyRunning = errors.New("lockdownd is already running")

// Run starts the daemon and blocks until context is canceled or the server stops.
// Loads configuration first, then applies command line overrides.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "lockdownd")

	// Load configuration first to get server settings.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = applyOverrides(settings, opts); err != nil {
		return err
	}

	configureLogging(ctx, settings)

	if err = ensureSingleInstance(ctx, runningProcesses); err != nil {
		return err
	}

	d, err := newDaemon(ctx, settings, dependencies{})
	if err != nil {
		return fmt.Errorf("initialise daemon: %w", err)
	}

	defer d.close(ctx)

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	logger.InfoKV(ctx, "Lockdown daemon listening",
		"listen_address", settings.ListenAddress,
		"state_dir", settings.StateDir,
		"store", settings.Store,
		"timezone", settings.Location.String())

	return d.serve(ctx, lis)
}

// applyOverrides merges command line options into settings and revalidates them.
func applyOverrides(settings *config.Config, opts *Options) error {
	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if opts.StateDir != "" {
		settings.StateDir = opts.StateDir
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	if err := config.Validate(settings); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	return nil
}

// configureLogging applies the level and encoder from settings to the global logger.
func configureLogging(ctx context.Context, settings *config.Config) {
	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	} else if settings.LogLevel != "" {
		logger.WarnKV(ctx, "Unknown log level, keeping default", "log_level", settings.LogLevel)
	}

	if format, ok := logger.ParseFormat(settings.LogFormat); ok && format != logger.FormatConsole {
		logger.SetLogger(logger.NewWithFormat(format, os.Stderr, logger.AtomicLevel()))
	}
}

// serve runs the background loops and the gRPC server until ctx ends.
func (d *daemon) serve(ctx context.Context, lis net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup

	// Background loops stop with ctx, so cancel before waiting on them.
	defer wg.Wait()
	defer cancel()

	if err := d.start(ctx, &wg); err != nil {
		_ = lis.Close()

		return err
	}

	// Create and configure gRPC server with the enforcer.
	grpcServer := grpc.NewServer()
	api.Register(grpcServer, api.NewServer(d.core))

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Lockdown daemon stopped")

	return nil
}
