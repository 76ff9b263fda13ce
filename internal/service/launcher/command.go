package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/logger"
	"github.com/ovoronin/audiobook-manager/internal/service/common"
	"github.com/ovoronin/audiobook-manager/internal/service/server"
	"github.com/ovoronin/audiobook-manager/internal/sysmon"
	"github.com/ovoronin/audiobook-manager/internal/validator"
	"github.com/ovoronin/audiobook-manager/internal/version"
)

// ConfigValidator is the hard startup gate consumed by the launcher.
type ConfigValidator interface {
	Validate(ctx context.Context) bool
}

// DiskChecker is the advisory disk-space gate consumed by the launcher.
type DiskChecker interface {
	CheckDiskSpace(ctx context.Context) bool
}

// Options controls the launch sequence.
type Options struct {
	// Root is the deployment root directory.
	Root string
	// ConfigPath is the settings path, relative to the root.
	ConfigPath string
	// Params are the server parameters passed on start. The defaults are
	// the fixed production set; deployments normally leave them alone.
	Params *server.Params
}

const (
	// DiskCheckTimeout bounds the advisory disk check so a stuck filesystem
	// call cannot block startup indefinitely.
	DiskCheckTimeout = 5 * time.Second

	// serverExecutableName is scanned for in the process table to refuse
	// double launches.
	serverExecutableName = "abm-server"
)

var (
	// ErrConfigInvalid aborts startup when the configuration gate fails.
	ErrConfigInvalid = errors.New("configuration validation failed")
	// ErrAlreadyRunning aborts startup when the server is already up.
	ErrAlreadyRunning = errors.New("server is already running")
)

// environment is the acquired runtime context the sequence runs against.
// It replaces the ambient state a shell launcher would leave behind
// (working directory, activated dependencies) with an explicit value.
type environment struct {
	// root is the deployment root the process now runs in.
	root string
	// cfg is the loaded configuration.
	cfg *config.Config
}

// launcher sequences the startup gates. Collaborators are fields so tests
// can drive every gate combination.
type launcher struct {
	opts *Options

	// chdir enters the deployment root.
	chdir func(dir string) error
	// isServerRunning scans the process table for a live server.
	isServerRunning func(name string) (bool, error)
	// newValidator builds the hard configuration gate.
	newValidator func(cfg *config.Config) ConfigValidator
	// newDiskChecker builds the advisory disk gate for a storage path.
	newDiskChecker func(path string) DiskChecker
	// startServer transfers control to the server entry point.
	startServer func(ctx context.Context, opts *server.Options) error
}

// FixedParams returns the production server parameter set:
// bind 0.0.0.0:8000, two workers, access log on, Server header suppressed.
func FixedParams() *server.Params {
	return &server.Params{
		Host:               config.DefaultServerHost,
		Port:               config.DefaultServerPort,
		Workers:            config.DefaultServerWorkers,
		AccessLog:          true,
		ExposeServerHeader: false,
	}
}

// Run executes the launch sequence: enter the deployment root, acquire the
// runtime environment, validate configuration (fatal gate), check disk space
// (advisory gate), then hand the process over to the server. It only returns
// once the server exits or a fatal gate fires.
func Run(ctx context.Context, opts *Options) error {
	l := &launcher{
		opts:            opts,
		chdir:           os.Chdir,
		isServerRunning: common.IsProcessRunning,
		newValidator: func(cfg *config.Config) ConfigValidator {
			return validator.New(cfg)
		},
		newDiskChecker: func(path string) DiskChecker {
			return sysmon.New(path)
		},
		startServer: server.Run,
	}

	return l.run(ctx)
}

// run is the sequence itself; see Run for the contract.
func (l *launcher) run(ctx context.Context) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "abm-launcher")

	logger.Infof(ctx, "Audiobook Manager launcher %s", version.Short())

	if actor, err := common.DetectActor(); err == nil {
		logger.InfoKV(ctx, "Launch requested", "by", actor.String())
	}

	env, err := l.acquireEnvironment(ctx)
	if err != nil {
		return err
	}

	if err := l.guardSingleInstance(ctx); err != nil {
		return err
	}

	if err := l.validateConfiguration(ctx, env); err != nil {
		return err
	}

	l.checkDiskSpace(ctx, env)

	return l.start(ctx)
}

// acquireEnvironment enters the deployment root and loads the settings.
// Both failures are fatal: the launcher refuses to start a server whose
// runtime context it could not establish.
func (l *launcher) acquireEnvironment(ctx context.Context) (*environment, error) {
	root := l.opts.Root
	if root == "" {
		root = config.DefaultDeploymentRoot
	}

	if err := l.chdir(root); err != nil {
		return nil, fmt.Errorf("enter deployment root %s: %w", root, err)
	}

	logger.InfoKV(ctx, "Entered deployment root", "root", root)

	cfg, err := config.Load(l.opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("acquire runtime environment: %w", err)
	}

	// The settings decide how chatty the rest of the launch is.
	if cfg.Logging != nil {
		if level, ok := logger.ParseLogLevel(cfg.Logging.Level); ok {
			logger.SetLevel(level)
		}
	}

	logger.Info(ctx, "Runtime environment acquired")

	return &environment{
		root: root,
		cfg:  cfg,
	}, nil
}

// guardSingleInstance refuses to launch over an already-running server.
func (l *launcher) guardSingleInstance(ctx context.Context) error {
	running, err := l.isServerRunning(serverExecutableName)
	if err != nil {
		// The scan is a guard, not a gate: proceed when it cannot answer.
		logger.WarnKV(ctx, "Process scan failed, continuing", "error", err)
		return nil
	}

	if running {
		return ErrAlreadyRunning
	}

	return nil
}

// validateConfiguration runs the hard gate. A false verdict aborts the
// launch; the server is never started over an invalid configuration.
func (l *launcher) validateConfiguration(ctx context.Context, env *environment) error {
	logger.Info(ctx, "Validating configuration")

	if !l.newValidator(env.cfg).Validate(ctx) {
		logger.Error(ctx, "Configuration validation failed, aborting startup")
		return ErrConfigInvalid
	}

	return nil
}

// checkDiskSpace runs the advisory gate with a bounded wait. Low disk and a
// stuck check both warn and continue; disk headroom is an operational
// signal, not a startup precondition.
func (l *launcher) checkDiskSpace(ctx context.Context, env *environment) {
	logger.Info(ctx, "Checking disk space")

	diskPath := sysmon.DefaultDiskPath
	if env.cfg.Storage != nil && env.cfg.Storage.DownloadPath != "" {
		diskPath = env.cfg.Storage.DownloadPath
	}

	checkCtx, cancel := context.WithTimeout(ctx, DiskCheckTimeout)
	defer cancel()

	verdict := make(chan bool, 1)

	go func() {
		verdict <- l.newDiskChecker(diskPath).CheckDiskSpace(checkCtx)
	}()

	select {
	case sufficient := <-verdict:
		if !sufficient {
			logger.Warn(ctx, "Low disk space detected, continuing startup")
		}
	case <-checkCtx.Done():
		logger.WarnKV(ctx, "Disk space check timed out, continuing startup",
			"timeout", DiskCheckTimeout.String())
	}
}

// start hands the process over to the server with the fixed parameter set.
// From the caller's point of view the launcher process is now the server;
// this call does not return until the server exits.
func (l *launcher) start(ctx context.Context) error {
	params := l.opts.Params
	if params == nil {
		params = FixedParams()
	}

	logger.InfoKV(ctx, "Starting server",
		"host", params.Host,
		"port", params.Port,
		"workers", params.Workers,
		"access_log", params.AccessLog,
		"expose_server_header", params.ExposeServerHeader)

	return l.startServer(ctx, &server.Options{
		ConfigPath: l.opts.ConfigPath,
		Params:     params,
	})
}
