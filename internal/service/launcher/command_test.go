package launcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/service/server"
)

// gateValidator records its invocation and returns a fixed verdict.
type gateValidator struct {
	verdict bool
	order   *[]string
}

func (v *gateValidator) Validate(context.Context) bool {
	*v.order = append(*v.order, "validate")
	return v.verdict
}

// gateChecker records its invocation and returns a fixed verdict.
// When block is set it never answers, simulating a stuck filesystem call.
type gateChecker struct {
	verdict bool
	block   bool
	order   *[]string
}

func (c *gateChecker) CheckDiskSpace(ctx context.Context) bool {
	*c.order = append(*c.order, "disk")

	if c.block {
		<-ctx.Done()
		return false
	}

	return c.verdict
}

// harness wires a launcher with fake collaborators over a real settings file.
type harness struct {
	launcher *launcher
	order    []string

	// started holds the server options when the start step was reached.
	started *server.Options
}

// newHarness builds a launcher whose environment acquisition succeeds and
// whose gates answer with the provided verdicts.
func newHarness(t *testing.T, configValid, diskSufficient bool) *harness {
	t.Helper()

	h := &harness{}

	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, config.Save(settingsPath, &config.Config{
		Server: &config.ServerConfig{
			Host:    config.DefaultServerHost,
			Port:    config.DefaultServerPort,
			Workers: config.DefaultServerWorkers,
		},
		Storage: &config.StorageConfig{
			DownloadPath: dir,
		},
	}))

	h.launcher = &launcher{
		opts: &Options{
			Root:       dir,
			ConfigPath: settingsPath,
		},
		chdir:           os.Chdir,
		isServerRunning: func(string) (bool, error) { return false, nil },
		newValidator: func(*config.Config) ConfigValidator {
			return &gateValidator{verdict: configValid, order: &h.order}
		},
		newDiskChecker: func(string) DiskChecker {
			return &gateChecker{verdict: diskSufficient, order: &h.order}
		},
		startServer: func(_ context.Context, opts *server.Options) error {
			h.order = append(h.order, "start")
			h.started = opts

			return nil
		},
	}

	return h
}

// TestRun_AllGatesPass reaches the start step with exactly the fixed parameters.
func TestRun_AllGatesPass(t *testing.T) {
	h := newHarness(t, true, true)

	require.NoError(t, h.launcher.run(context.Background()))
	require.Equal(t, []string{"validate", "disk", "start"}, h.order)

	require.NotNil(t, h.started)
	require.Equal(t, &server.Params{
		Host:               "0.0.0.0",
		Port:               8000,
		Workers:            2,
		AccessLog:          true,
		ExposeServerHeader: false,
	}, h.started.Params)
}

// TestRun_InvalidConfigAborts never reaches disk check or server start.
func TestRun_InvalidConfigAborts(t *testing.T) {
	h := newHarness(t, false, true)

	err := h.launcher.run(context.Background())
	require.ErrorIs(t, err, ErrConfigInvalid)
	require.Equal(t, []string{"validate"}, h.order)
	require.Nil(t, h.started)
}

// TestRun_LowDiskWarnsAndContinues still starts the server with identical parameters.
func TestRun_LowDiskWarnsAndContinues(t *testing.T) {
	h := newHarness(t, true, false)

	require.NoError(t, h.launcher.run(context.Background()))
	require.Equal(t, []string{"validate", "disk", "start"}, h.order)
	require.NotNil(t, h.started)
	require.Equal(t, FixedParams(), h.started.Params)
}

// TestRun_StuckDiskCheckTimesOut continues startup after the bounded wait.
func TestRun_StuckDiskCheckTimesOut(t *testing.T) {
	h := newHarness(t, true, true)
	h.launcher.newDiskChecker = func(string) DiskChecker {
		return &gateChecker{block: true, order: &h.order}
	}

	start := time.Now()
	require.NoError(t, h.launcher.run(context.Background()))
	require.NotNil(t, h.started)

	// Bounded: well under a minute even though the checker never answers.
	require.Less(t, time.Since(start), DiskCheckTimeout+5*time.Second)
}

// TestRun_MissingRootIsFatal aborts before any gate runs.
func TestRun_MissingRootIsFatal(t *testing.T) {
	h := newHarness(t, true, true)
	h.launcher.opts.Root = filepath.Join(t.TempDir(), "does-not-exist")
	h.launcher.chdir = os.Chdir

	err := h.launcher.run(context.Background())
	require.Error(t, err)
	require.Empty(t, h.order)
}

// TestRun_UnreadableSettingsIsFatal aborts when the environment cannot be acquired.
func TestRun_UnreadableSettingsIsFatal(t *testing.T) {
	h := newHarness(t, true, true)
	h.launcher.opts.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")

	err := h.launcher.run(context.Background())
	require.Error(t, err)
	require.Empty(t, h.order)
	require.Nil(t, h.started)
}

// TestRun_RefusesDoubleLaunch aborts when the server already runs.
func TestRun_RefusesDoubleLaunch(t *testing.T) {
	h := newHarness(t, true, true)
	h.launcher.isServerRunning = func(string) (bool, error) { return true, nil }

	err := h.launcher.run(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Empty(t, h.order)
}

// TestRun_ProcessScanFailureIsAdvisory proceeds when the scan cannot answer.
func TestRun_ProcessScanFailureIsAdvisory(t *testing.T) {
	h := newHarness(t, true, true)
	h.launcher.isServerRunning = func(string) (bool, error) {
		return false, errors.New("scan failed")
	}

	require.NoError(t, h.launcher.run(context.Background()))
	require.NotNil(t, h.started)
}

// TestRun_ServerErrorPropagates returns the server's exit error as its own.
func TestRun_ServerErrorPropagates(t *testing.T) {
	errServer := errors.New("bind failed")

	h := newHarness(t, true, true)
	h.launcher.startServer = func(context.Context, *server.Options) error {
		return errServer
	}

	require.ErrorIs(t, h.launcher.run(context.Background()), errServer)
}
