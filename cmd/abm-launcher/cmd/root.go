package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/service/launcher"
	"github.com/ovoronin/audiobook-manager/internal/version"
)

var (
	// deploymentRoot is the directory the launcher enters before anything else.
	deploymentRoot string
	// configPath to the settings YAML file, relative to the deployment root.
	configPath string

	// rootCmd represents the base command for launching a deployed server.
	rootCmd = &cobra.Command{
		Use:   "abm-launcher",
		Short: "Validate a deployment and start the audiobook server.",
		Long: `Production entry point for a deployed audiobook manager.

Enters the deployment root, loads the settings, validates the configuration
(a failed validation aborts the launch), checks free disk space (low disk only
warns) and then starts the server in-process with the fixed production
parameters: bind 0.0.0.0:8000, two download workers, access log enabled and
the Server header suppressed.

The command does not return until the server exits.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &launcher.Options{
				Root:       deploymentRoot,
				ConfigPath: configPath,
			}

			return launcher.Run(ctx, options)
		},
	}
)

// Execute runs the abm-launcher CLI and exits with non-zero status on error.
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
		StringVarP(&deploymentRoot, "root", "r", config.DefaultDeploymentRoot, "deployment root directory")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
