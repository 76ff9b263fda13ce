package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/logger"
)

// Validator checks that a configuration is complete enough to start the server.
type Validator struct {
	// cfg is the configuration under validation.
	cfg *config.Config
}

// New creates a validator for the provided configuration.
func New(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate reports whether the configuration is deployable.
// Every problem is logged at error level so operators see the full list in
// one run instead of fixing failures one at a time.
func (v *Validator) Validate(ctx context.Context) bool {
	problems := v.collectProblems()

	if len(problems) > 0 {
		for _, problem := range problems {
			logger.Errorf(ctx, "Configuration error: %s", problem)
		}

		return false
	}

	logger.Info(ctx, "Configuration validation passed")

	return true
}

// collectProblems gathers every validation failure without stopping early.
func (v *Validator) collectProblems() []string {
	if v.cfg == nil {
		return []string{"configuration is not loaded"}
	}

	var problems []string

	problems = append(problems, v.missingSections()...)
	problems = append(problems, v.integrationProblems()...)
	problems = append(problems, v.storageProblems()...)

	return problems
}

// missingSections reports required top-level sections absent from the settings file.
func (v *Validator) missingSections() []string {
	var problems []string

	sections := []struct {
		name    string
		present bool
	}{
		{"app", v.cfg.App != nil},
		{"server", v.cfg.Server != nil},
		{"integrations", v.cfg.Integrations != nil},
		{"storage", v.cfg.Storage != nil},
		{"database", v.cfg.Database != nil},
	}

	for _, section := range sections {
		if !section.present {
			problems = append(problems, "missing required configuration section: "+section.name)
		}
	}

	return problems
}

// integrationProblems reports integrations without a configured host.
func (v *Validator) integrationProblems() []string {
	if v.cfg.Integrations == nil {
		return nil
	}

	var problems []string

	integrations := []struct {
		name string
		cfg  *config.IntegrationConfig
	}{
		{"qbittorrent", v.cfg.Integrations.QBittorrent},
		{"prowlarr", v.cfg.Integrations.Prowlarr},
		{"audiobookshelf", v.cfg.Integrations.Audiobookshelf},
	}

	for _, integration := range integrations {
		if integration.cfg == nil || integration.cfg.Host == "" {
			problems = append(problems, "missing host for "+integration.name)
		}
	}

	return problems
}

// storageProblems reports storage paths that are not writable.
func (v *Validator) storageProblems() []string {
	if v.cfg.Storage == nil {
		return nil
	}

	var problems []string

	paths := []struct {
		name string
		path string
	}{
		{"download_path", v.cfg.Storage.DownloadPath},
		{"library_path", v.cfg.Storage.LibraryPath},
	}

	for _, p := range paths {
		if p.path == "" {
			continue
		}

		if !pathWritable(p.path) {
			problems = append(problems, fmt.Sprintf("storage path not writable: %s (%s)", p.path, p.name))
		}
	}

	return problems
}

// pathWritable probes whether files can be created under the path.
// When the path itself does not exist yet, its parent directory is probed,
// matching how deployments precreate only the storage root.
func pathWritable(path string) bool {
	dir := filepath.Clean(path)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return false
	}

	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return true
}
