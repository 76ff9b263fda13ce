package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ovoronin/audiobook-manager/internal/config"
	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
	"github.com/ovoronin/audiobook-manager/internal/logger"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
	"github.com/ovoronin/audiobook-manager/internal/sysmon"
)

// service encapsulates the audiobook-manager business logic and keeps the
// HTTP transport decoupled from storage and workers.
type service struct {
	// cfg is the loaded configuration.
	cfg *config.Config
	// repo stores search results and download jobs.
	repo repository.Repository
	// monitor samples host statistics for the status endpoint.
	monitor *sysmon.Monitor
	// pool runs the download workers.
	pool *pool
}

// ErrJobFinished is returned when a cancel targets a job already in a terminal state.
var ErrJobFinished = errors.New("job already finished")

// defaultQueueLimit caps queue listings when the client does not ask for a limit.
const defaultQueueLimit = 100

// newService wires the service with its repository, monitor and worker pool.
func newService(
	cfg *config.Config,
	repo repository.Repository,
	monitor *sysmon.Monitor,
	fetcher Fetcher,
	workers int,
) *service {
	downloadDir := ""
	libraryDir := ""

	if cfg.Storage != nil {
		downloadDir = cfg.Storage.DownloadPath
		libraryDir = cfg.Storage.LibraryPath
	}

	return &service{
		cfg:     cfg,
		repo:    repo,
		monitor: monitor,
		pool:    newPool(repo, fetcher, downloadDir, libraryDir, workers),
	}
}

// Search returns stored catalog results for the query, best score first.
func (s *service) Search(ctx context.Context, query string, limit int) ([]*domain.SearchResult, error) {
	return s.repo.SearchResults(ctx, query, limit)
}

// Enqueue creates a pending download job for a stored search result and
// wakes the workers. Returns the job together with the result it downloads.
func (s *service) Enqueue(ctx context.Context, resultID uint) (*domain.Job, *domain.SearchResult, error) {
	result, err := s.repo.SearchResultByID(ctx, resultID)
	if err != nil {
		return nil, nil, err
	}

	job, err := s.repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.InfoKV(ctx, "Download enqueued", "job_id", job.ID, "title", result.Title)
	s.pool.Wake()

	return job, result, nil
}

// Job returns the current state of one download job.
func (s *service) Job(ctx context.Context, jobID uint) (*domain.Job, error) {
	return s.repo.JobByID(ctx, jobID)
}

// Queue returns download jobs, newest first.
func (s *service) Queue(ctx context.Context, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = defaultQueueLimit
	}

	return s.repo.Jobs(ctx, limit)
}

// Cancel stops a download job. Pending jobs are cancelled directly; active
// jobs are interrupted through the pool and persisted by their worker.
func (s *service) Cancel(ctx context.Context, jobID uint, deleteFiles bool) (*domain.Job, error) {
	job, err := s.repo.JobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch {
	case job.Status.Terminal():
		return nil, ErrJobFinished
	case job.Status.Active():
		// An active row may have lost its worker to a crash or restart.
		// Cancel it directly so it does not stay downloading forever.
		if !s.pool.Cancel(job.ID) {
			if err := s.cancelDirectly(ctx, job); err != nil {
				return nil, err
			}
		}
	default:
		if err := s.cancelDirectly(ctx, job); err != nil {
			return nil, err
		}
	}

	if deleteFiles && job.DownloadPath != "" {
		if removeErr := os.Remove(job.DownloadPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.WarnKV(ctx, "Failed to delete downloaded file",
				"job_id", job.ID, "path", job.DownloadPath, "error", removeErr)
		}
	}

	logger.InfoKV(ctx, "Download cancelled", "job_id", job.ID, "delete_files", deleteFiles)

	return job, nil
}

// cancelDirectly persists the cancelled state without going through a worker.
func (s *service) cancelDirectly(ctx context.Context, job *domain.Job) error {
	completedAt := time.Now()
	job.Status = domain.StatusCancelled
	job.CompletedAt = &completedAt

	return s.repo.UpdateJob(ctx, job)
}

// StatusReport is the payload of the status endpoint.
type StatusReport struct {
	// App identifies the running application.
	App AppInfo `json:"app"`
	// System is the host resource snapshot.
	System *sysmon.Stats `json:"system"`
	// Queue counts download jobs per status.
	Queue map[domain.Status]int64 `json:"queue"`
}

// AppInfo identifies the application in API responses.
type AppInfo struct {
	// Name is the configured application name.
	Name string `json:"name"`
	// Version is the configured application version.
	Version string `json:"version"`
}

// Status assembles the application, system and queue snapshot.
func (s *service) Status(ctx context.Context) (*StatusReport, error) {
	stats, err := s.monitor.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect system stats: %w", err)
	}

	counts, err := s.repo.JobCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	report := &StatusReport{
		System: stats,
		Queue:  counts,
	}

	if s.cfg.App != nil {
		report.App = AppInfo{
			Name:    s.cfg.App.Name,
			Version: s.cfg.App.Version,
		}
	}

	return report, nil
}
