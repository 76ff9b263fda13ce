package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovoronin/audiobook-manager/internal/service/healthcheck"
	"github.com/ovoronin/audiobook-manager/internal/version"
)

var (
	// timeout bounds each individual probe.
	timeout time.Duration

	// rootCmd represents the base command for probing a deployed server.
	rootCmd = &cobra.Command{
		Use:   "abm-healthcheck [base-url]",
		Short: "Probe a deployed server and report per-endpoint state.",
		Long: `Probes the health, status, queue and web endpoints of a deployed
audiobook manager and reports which of them answer.

The base URL can be provided as argument, otherwise the local deployment at
` + healthcheck.DefaultBaseURL + ` is probed. Exits non-zero when any
endpoint is down, so the command can gate deploy scripts and cron alerts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use base URL argument if provided, otherwise probe the local server.
			var baseURL string
			if len(args) > 0 {
				baseURL = args[0]
			}

			options := &healthcheck.Options{
				BaseURL: baseURL,
				Timeout: timeout,
			}

			return healthcheck.Run(ctx, options)
		},
	}
)

// Execute runs the abm-healthcheck CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().
		DurationVarP(&timeout, "timeout", "t", healthcheck.DefaultTimeout, "per-probe timeout")
}
