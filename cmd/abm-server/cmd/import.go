package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/service/server"
)

var (
	// importConfigPath to the settings YAML file.
	importConfigPath string

	// importCmd loads search results from a JSON export into the catalog.
	importCmd = &cobra.Command{
		Use:   "import <results-file>",
		Short: "Import search results from a JSON file into the catalog.",
		Long: `Loads search results from a JSON export into the catalog database, so
results gathered outside the server can feed the download queue.

The file holds an array of results with title, author, download URL and
ranking fields. Imported results show up in searches and can be enqueued
for download like any other catalog entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &server.ImportOptions{
				ConfigPath: importConfigPath,
				File:       args[0],
			}

			return server.Import(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	importCmd.Flags().
		StringVarP(&importConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	rootCmd.AddCommand(importCmd)
}
