package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/logger"
)

// Options controls the backup run.
type Options struct {
	// ConfigPath is the settings file to load and include in the backup.
	ConfigPath string
	// BackupDir is where backup snapshots are created.
	BackupDir string
	// KeepCount is how many snapshots survive pruning.
	KeepCount int
}

const (
	// DefaultBackupDir is the snapshot directory relative to the deployment root.
	DefaultBackupDir = "backups"

	// DefaultKeepCount is how many snapshots are kept by default.
	DefaultKeepCount = 10

	// backupPrefix names snapshot directories; the timestamp suffix makes
	// lexical order equal to creation order.
	backupPrefix = "backup_"

	// timestampLayout is the snapshot directory timestamp format.
	timestampLayout = "20060102_150405"

	dirPermissions = 0o750
)

// Run snapshots the database, settings file and log directory into a
// timestamped directory, then prunes old snapshots.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "abm-backup")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	backupDir := opts.BackupDir
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}

	keepCount := opts.KeepCount
	if keepCount <= 0 {
		keepCount = DefaultKeepCount
	}

	snapshotPath := filepath.Join(backupDir, backupPrefix+time.Now().Format(timestampLayout))
	if err := os.MkdirAll(snapshotPath, dirPermissions); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	if err := snapshot(ctx, cfg, opts.ConfigPath, snapshotPath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Backup completed", "path", snapshotPath)

	if err := prune(ctx, backupDir, keepCount); err != nil {
		return err
	}

	return nil
}

// snapshot copies the database, settings and logs into the snapshot directory.
// Missing sources are skipped: a fresh deployment has no database yet, and a
// backup of what exists is better than none.
func snapshot(ctx context.Context, cfg *config.Config, configPath, snapshotPath string) error {
	if fileExists(cfg.Database.Path) {
		dest := filepath.Join(snapshotPath, "database.db")
		if err := copyFile(cfg.Database.Path, dest); err != nil {
			return fmt.Errorf("back up database: %w", err)
		}

		logger.InfoKV(ctx, "Database backed up", "path", dest)
	}

	if fileExists(configPath) {
		dest := filepath.Join(snapshotPath, "settings.yaml")
		if err := copyFile(configPath, dest); err != nil {
			return fmt.Errorf("back up settings: %w", err)
		}

		logger.InfoKV(ctx, "Settings backed up", "path", dest)
	}

	if cfg.Logging != nil && cfg.Logging.File != "" {
		logsDir := filepath.Dir(cfg.Logging.File)
		if dirExists(logsDir) {
			dest := filepath.Join(snapshotPath, "logs")
			if err := copyTree(logsDir, dest); err != nil {
				return fmt.Errorf("back up logs: %w", err)
			}

			logger.InfoKV(ctx, "Logs backed up", "path", dest)
		}
	}

	return nil
}

// prune removes the oldest snapshots beyond keepCount.
func prune(ctx context.Context, backupDir string, keepCount int) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	var snapshots []string

	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), backupPrefix) {
			snapshots = append(snapshots, entry.Name())
		}
	}

	// Timestamped names sort oldest first.
	sort.Strings(snapshots)

	if len(snapshots) <= keepCount {
		return nil
	}

	for _, name := range snapshots[:len(snapshots)-keepCount] {
		path := filepath.Join(backupDir, name)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove old backup %s: %w", path, err)
		}

		logger.InfoKV(ctx, "Removed old backup", "path", path)
	}

	return nil
}

// copyFile copies one regular file, preserving its permissions.
func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	source, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	destination, err := os.OpenFile(filepath.Clean(dest), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		return err
	}

	return destination.Close()
}

// copyTree copies a directory recursively.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dest, relative)

		if entry.IsDir() {
			return os.MkdirAll(target, dirPermissions)
		}

		return copyFile(path, target)
	})
}

// fileExists reports whether path is an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// dirExists reports whether path is an existing directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
