package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ovoronin/audiobook-manager/internal/logger"
)

// Options controls the health check run.
type Options struct {
	// BaseURL is the server to probe.
	BaseURL string
	// Timeout bounds each individual probe.
	Timeout time.Duration
}

const (
	// DefaultBaseURL probes a locally deployed server.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout is the per-probe timeout.
	DefaultTimeout = 10 * time.Second
)

// ErrUnhealthy is returned when at least one endpoint is down,
// so the CLI exits non-zero for scripting.
var ErrUnhealthy = errors.New("some endpoints are down")

// probe is one endpoint to check.
type probe struct {
	// path is the request path.
	path string
	// name is the human-readable endpoint name.
	name string
}

// probes lists the endpoints a deployed server must answer.
//
//nolint:gochecknoglobals // Static probe table.
var probes = []probe{
	{path: "/health", name: "Health Check"},
	{path: "/api/v1/status", name: "API Status"},
	{path: "/api/v1/queue", name: "Download Queue"},
	{path: "/", name: "Web Interface"},
}

// Run probes every endpoint and reports per-endpoint state.
// It returns ErrUnhealthy when any probe fails, nil when all are up.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "abm-healthcheck")

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	logger.InfoKV(ctx, "Checking deployed server", "base_url", baseURL)

	allHealthy := true

	for _, p := range probes {
		if !checkEndpoint(ctx, client, p) {
			allHealthy = false
		}
	}

	if !allHealthy {
		logger.Error(ctx, "Some systems are down")
		return ErrUnhealthy
	}

	logger.Info(ctx, "All systems operational")

	return nil
}

// checkEndpoint probes one endpoint and logs its state.
func checkEndpoint(ctx context.Context, client *resty.Client, p probe) bool {
	response, err := client.R().SetContext(ctx).Get(p.path)
	if err != nil {
		logger.ErrorKV(ctx, "Endpoint error", "endpoint", p.name, "error", err)
		return false
	}

	if response.StatusCode() != http.StatusOK {
		logger.ErrorKV(ctx, "Endpoint down", "endpoint", p.name, "status", response.Status())
		return false
	}

	logger.InfoKV(ctx, "Endpoint up", "endpoint", p.name, "status", response.Status())

	return true
}
