package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/lockdown/internal/service/server"
	"github.com/oshokin/lockdown/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateDir overrides where schedules, alarms and the grant are kept.
	stateDir string
	// logLevel overrides the log level from settings.
	logLevel string

	// rootCmd represents the base command for running the lockdown daemon.
	rootCmd = &cobra.Command{
		Use:   "lockdownd [listen-address]",
		Short: "Run the lockdown daemon that enforces scheduled screen locks.",
		Long: `Starts the lockdown daemon that keeps this device locked on schedule.

The daemon restores persisted schedules and alarms on start, so it should be
launched after login (for example as a user service). It locks the screen when
a countdown starts or a daily window opens, and reports through desktop
notifications and the log.

Clients talk to the daemon over a local gRPC control API. The listen address
can be provided as argument to override config (e.g., 127.0.0.1:50077).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				StateDir:      stateDir,
				LogLevel:      logLevel,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the lockdownd CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file (default XDG config home)")
	rootCmd.Flags().StringVarP(&stateDir, "state-dir", "s", "", "directory for schedules, alarms and the grant")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
}
