package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	client "github.com/oshokin/lockdown/internal/service/client"
	"github.com/oshokin/lockdown/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the daemon address from config.
	serverAddress string
	// assumeYes accepts the consent prompt without asking.
	assumeYes bool

	// rootCmd represents the base command for controlling lockdownd.
	rootCmd = &cobra.Command{
		Use:   "lockdown",
		Short: "Schedule and control device lockdowns.",
		Long: `Controls the lockdown daemon running on this device.

Start a countdown that locks the screen right away, or set a daily window
during which the device is kept locked. Locking requires a one-time consent,
which is requested automatically the first time it is needed.`,
		SilenceUsage: true,
	}
)

// Execute runs the lockdown CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run executes fn with a context canceled on SIGINT or SIGTERM.
func run(cmd *cobra.Command, fn func(ctx context.Context, opts *client.Options) error) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return fn(ctx, &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		AssumeYes:     assumeYes,
		Out:           cmd.OutOrStdout(),
	})
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file (default XDG config home)")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", "", "lockdownd address, overrides config")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "accept the Device Admin consent without asking")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "countdown <seconds>",
			Short: "Lock the device now for the given number of seconds.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(ctx context.Context, opts *client.Options) error {
					return client.Countdown(ctx, opts, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "schedule <start HH:MM> <end HH:MM>",
			Short: "Keep the device locked every day between start and end.",
			Long: `Sets the daily lock window, replacing any previous one.

An end time at or before the start time wraps past midnight.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd, func(ctx context.Context, opts *client.Options) error {
					return client.Schedule(ctx, opts, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Remove the daily lock window.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, client.Cancel)
			},
		},
		&cobra.Command{
			Use:   "lock",
			Short: "Lock the device immediately.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, client.Lock)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show schedules, armed alarms and recent notices.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, client.Status)
			},
		},
		&cobra.Command{
			Use:   "grant",
			Short: "Give lockdown permission to lock this device.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, client.Grant)
			},
		},
		&cobra.Command{
			Use:   "revoke",
			Short: "Withdraw the permission to lock this device.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, client.Revoke)
			},
		},
	)
}
