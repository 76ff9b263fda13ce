package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/service/server"
	"github.com/ovoronin/audiobook-manager/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// host is the bind address override.
	host string
	// port is the TCP port override.
	port int
	// workers is the download worker count override.
	workers int
	// accessLog controls per-request logging.
	accessLog bool
	// exposeServerHeader controls the Server response header.
	exposeServerHeader bool

	// rootCmd represents the base command for running the HTTP server.
	rootCmd = &cobra.Command{
		Use:   "abm-server",
		Short: "Run the audiobook manager HTTP server.",
		Long: `Starts the HTTP server that searches for audiobooks, manages the download
queue and serves the web API.

Bind address, port and worker count come from the settings file. Passing any
server flag overrides the configured values with the flag set as a whole.
Download jobs are persisted to the SQLite database and survive restarts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &server.Options{
				ConfigPath: configPath,
				Params:     overrideParams(cmd),
			}

			return server.Run(ctx, options)
		},
	}
)

// overrideParams returns the flag parameter set when any server flag was
// given, nil to rely on the settings file.
func overrideParams(cmd *cobra.Command) *server.Params {
	overridden := false

	for _, name := range []string{"host", "port", "workers", "access-log", "expose-server-header"} {
		if cmd.Flags().Changed(name) {
			overridden = true
			break
		}
	}

	if !overridden {
		return nil
	}

	return &server.Params{
		Host:               host,
		Port:               port,
		Workers:            workers,
		AccessLog:          accessLog,
		ExposeServerHeader: exposeServerHeader,
	}
}

// Execute runs the abm-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&host, "host", config.DefaultServerHost, "bind address")
	rootCmd.Flags().IntVar(&port, "port", config.DefaultServerPort, "TCP port")
	rootCmd.Flags().IntVar(&workers, "workers", config.DefaultServerWorkers, "download worker count")
	rootCmd.Flags().BoolVar(&accessLog, "access-log", true, "log every HTTP request")
	rootCmd.Flags().BoolVar(&exposeServerHeader, "expose-server-header", false, "send the Server response header")
}
