package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ovoronin/audiobook-manager/internal/config"
	"github.com/ovoronin/audiobook-manager/internal/logger"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
	"github.com/ovoronin/audiobook-manager/internal/sysmon"
)

// Params are the behavioral parameters of the server entry point.
type Params struct {
	// Host is the bind address.
	Host string
	// Port is the TCP port to listen on.
	Port int
	// Workers is the number of concurrent download workers.
	Workers int
	// AccessLog enables per-request logging.
	AccessLog bool
	// ExposeServerHeader adds a Server identification header to responses.
	ExposeServerHeader bool
}

// Options controls the abm-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Params overrides the bind and behavior parameters from the
	// configuration file. The launcher passes a fixed set here.
	Params *Params
}

const (
	// readHeaderTimeout bounds how long a client may take to send headers.
	readHeaderTimeout = 10 * time.Second

	// shutdownTimeout bounds graceful shutdown once the context is canceled.
	shutdownTimeout = 10 * time.Second
)

// Run starts the HTTP server and download workers, blocking until the
// context is canceled or the server stops. The launcher calls this directly,
// so from its point of view this is the process becoming the server.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "abm-server")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Debug deployments get verbose server logs regardless of the
	// configured level; the other binaries keep their settings.
	if cfg.App != nil && cfg.App.Debug {
		ctx = logger.ToContext(ctx,
			logger.FromContext(ctx).WithOptions(logger.WithLevel(zapcore.DebugLevel)))
	}

	params := resolveParams(cfg, opts.Params)

	// Open the catalog store, creating the schema if needed.
	store, err := repository.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	// Sample the volume that will absorb downloads.
	diskPath := sysmon.DefaultDiskPath
	if cfg.Storage != nil && cfg.Storage.DownloadPath != "" {
		diskPath = cfg.Storage.DownloadPath
	}

	monitor := sysmon.New(diskPath)

	svc := newService(cfg, store, monitor, newRestyFetcher(), params.Workers)

	listenAddress := net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
	httpServer := &http.Server{
		Addr:              listenAddress,
		Handler:           newRouter(svc, params),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.InfoKV(ctx, "Audiobook manager listening",
		"listen_address", listenAddress,
		"workers", params.Workers,
		"access_log", params.AccessLog)

	group, groupCtx := errgroup.WithContext(ctx)

	// Download workers drain the queue until shutdown.
	group.Go(func() error {
		return svc.pool.Run(groupCtx)
	})

	// Serve HTTP until shutdown.
	group.Go(func() error {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil &&
			!errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", serveErr)
		}

		return nil
	})

	// Stop accepting requests once the context is canceled.
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("shutdown http server: %w", shutdownErr)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Audiobook manager stopped")

	return nil
}

// resolveParams merges the configured server section with an override.
// The override wins field by field only when the whole struct is provided,
// because the launcher's parameter set is fixed as a unit.
func resolveParams(cfg *config.Config, override *Params) *Params {
	if override != nil {
		return override
	}

	return &Params{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Workers:   cfg.Server.Workers,
		AccessLog: true,
	}
}
