package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/service/backup"
	"github.com/ovoronin/audiobook-manager/internal/version"
)

var (
	// configPath to the settings YAML file.
	configPath string
	// backupDir is where snapshots are created.
	backupDir string
	// keepCount is how many snapshots survive pruning.
	keepCount int

	// rootCmd represents the base command for backing up a deployment.
	rootCmd = &cobra.Command{
		Use:   "abm-backup",
		Short: "Snapshot the database, settings and logs of a deployment.",
		Long: `Copies the SQLite database, the settings file and the log directory into
a timestamped directory under the backup location, then removes old snapshots
keeping only the newest ones.

Run from the deployment root, by hand before risky changes or from cron.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &backup.Options{
				ConfigPath: configPath,
				BackupDir:  backupDir,
				KeepCount:  keepCount,
			}

			return backup.Run(ctx, options)
		},
	}
)

// Execute runs the abm-backup CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVarP(&backupDir, "dir", "d", backup.DefaultBackupDir, "backup snapshot directory")
	rootCmd.Flags().IntVarP(&keepCount, "keep", "k", backup.DefaultKeepCount, "snapshots to keep after pruning")
}
