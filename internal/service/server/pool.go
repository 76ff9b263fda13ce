package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
	"github.com/ovoronin/audiobook-manager/internal/logger"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
)

// pool drains the download queue with a fixed number of workers.
type pool struct {
	// repo claims and updates jobs.
	repo repository.Repository
	// fetcher performs the actual transfer.
	fetcher Fetcher
	// downloadDir is where payloads are written.
	downloadDir string
	// libraryDir is where completed payloads are organized; empty disables it.
	libraryDir string
	// workers is the concurrency bound.
	workers int
	// wake nudges idle workers when a job is enqueued.
	wake chan struct{}

	// mu protects active.
	mu sync.Mutex
	// active maps running job IDs to their cancel functions.
	active map[uint]context.CancelFunc
}

const (
	// pollInterval is how often an idle worker rechecks the queue, as a safety
	// net for wake signals lost across restarts.
	pollInterval = 5 * time.Second

	// purgeInterval is how often old finished jobs are purged.
	purgeInterval = time.Hour

	// finishedJobRetention is how long finished jobs stay in the queue listing.
	finishedJobRetention = 7 * 24 * time.Hour

	// libraryDirPermissions is used when creating library directories.
	libraryDirPermissions = 0o750
)

// errNoDownloadURL is recorded on jobs whose search result has no direct link.
var errNoDownloadURL = errors.New("search result has no download URL")

// newPool creates a pool; workers below one are raised to one.
func newPool(repo repository.Repository, fetcher Fetcher, downloadDir, libraryDir string, workers int) *pool {
	if workers < 1 {
		workers = 1
	}

	return &pool{
		repo:        repo,
		fetcher:     fetcher,
		downloadDir: downloadDir,
		libraryDir:  libraryDir,
		workers:     workers,
		wake:        make(chan struct{}, 1),
		active:      make(map[uint]context.CancelFunc),
	}
}

// Wake nudges the workers without blocking the caller.
func (p *pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Cancel interrupts the worker processing the given job. It reports whether
// a worker actually owned the job; false means the active status is stale.
func (p *pool) Cancel(jobID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.active[jobID]
	if ok {
		cancel()
	}

	return ok
}

// Run blocks processing jobs until the context is canceled.
func (p *pool) Run(ctx context.Context) error {
	// Jobs a previous run left in an active state have no owning worker
	// anymore; requeue them so they resume instead of hanging forever.
	if requeued, err := p.repo.ResetAbandonedJobs(ctx); err != nil {
		logger.ErrorKV(ctx, "Failed to requeue abandoned jobs", "error", err)
	} else if requeued > 0 {
		logger.InfoKV(ctx, "Requeued jobs abandoned by a previous run", "count", requeued)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		worker := i

		group.Go(func() error {
			workerCtx := logger.WithKV(groupCtx, "worker", worker)

			return p.workerLoop(workerCtx)
		})
	}

	group.Go(func() error {
		return p.janitorLoop(groupCtx)
	})

	return group.Wait()
}

// janitorLoop periodically purges finished jobs past their retention.
func (p *pool) janitorLoop(ctx context.Context) error {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	p.purge(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.purge(ctx)
		}
	}
}

// purge removes finished jobs older than the retention window.
func (p *pool) purge(ctx context.Context) {
	purged, err := p.repo.PurgeFinishedJobs(ctx, finishedJobRetention)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to purge old jobs", "error", err)
		return
	}

	if purged > 0 {
		logger.InfoKV(ctx, "Purged old finished jobs", "count", purged)
	}
}

// workerLoop alternates between draining the queue and waiting for work.
func (p *pool) workerLoop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// Pick up jobs left over from a previous run before the first tick.
	p.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
		case <-ticker.C:
		}

		p.drain(ctx)
	}
}

// drain claims and processes jobs until the queue is empty.
func (p *pool) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.repo.ClaimNextPending(ctx)
		if err != nil {
			if !errors.Is(err, repository.ErrNoPendingJobs) {
				logger.ErrorKV(ctx, "Failed to claim job", "error", err)
			}

			return
		}

		logger.DebugKV(ctx, "Claimed job", "job_id", job.ID)

		p.process(ctx, job)
	}
}

// process runs one claimed job to a terminal state.
func (p *pool) process(ctx context.Context, job *domain.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.register(job.ID, cancel)
	defer p.unregister(job.ID)

	result, err := p.repo.SearchResultByID(ctx, job.SearchResultID)
	if err != nil {
		p.finish(ctx, job, fmt.Errorf("load search result: %w", err))
		return
	}

	if result.DownloadURL == "" {
		p.finish(ctx, job, errNoDownloadURL)
		return
	}

	job.Status = domain.StatusDownloading
	job.DownloadPath = filepath.Join(p.downloadDir, destinationName(job.ID, result.Title))

	if err := p.repo.UpdateJob(ctx, job); err != nil {
		logger.ErrorKV(ctx, "Failed to mark job downloading", "job_id", job.ID, "error", err)
		return
	}

	logger.InfoKV(ctx, "Download started", "job_id", job.ID, "title", result.Title)

	transferErr := p.fetcher.Fetch(jobCtx, result.DownloadURL, job.DownloadPath)
	if transferErr == nil {
		p.organize(ctx, job, result)
	}

	p.finish(ctx, job, transferErr)
}

// organize moves a finished payload into the library under an author/title
// layout and records the final path on the job. Failures keep the payload in
// the download directory; a finished download is never failed over filing.
func (p *pool) organize(ctx context.Context, job *domain.Job, result *domain.SearchResult) {
	if p.libraryDir == "" {
		return
	}

	author := libraryComponent(result.Author, "Unknown_Author")
	title := libraryComponent(result.Title, "audiobook")

	destDir := filepath.Join(p.libraryDir, author, title)
	if err := os.MkdirAll(destDir, libraryDirPermissions); err != nil {
		logger.WarnKV(ctx, "Failed to create library directory",
			"job_id", job.ID, "path", destDir, "error", err)
		return
	}

	dest := filepath.Join(destDir, filepath.Base(job.DownloadPath))
	if err := os.Rename(job.DownloadPath, dest); err != nil {
		logger.WarnKV(ctx, "Failed to move download into library",
			"job_id", job.ID, "path", dest, "error", err)
		return
	}

	job.DownloadPath = dest

	logger.InfoKV(ctx, "Organized into library",
		"job_id", job.ID, "author", author, "title", title)
}

// finish persists the terminal state derived from the transfer outcome.
// The surrounding context is used for persistence so a cancelled transfer
// can still record its state.
func (p *pool) finish(ctx context.Context, job *domain.Job, transferErr error) {
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case transferErr == nil:
		job.Status = domain.StatusCompleted
		job.Progress = 100

		logger.InfoKV(ctx, "Download completed", "job_id", job.ID, "path", job.DownloadPath)
	case errors.Is(transferErr, context.Canceled):
		job.Status = domain.StatusCancelled

		logger.InfoKV(ctx, "Download cancelled by request", "job_id", job.ID)
	default:
		job.Status = domain.StatusFailed
		job.ErrorMessage = transferErr.Error()

		logger.ErrorKV(ctx, "Download failed", "job_id", job.ID, "error", transferErr)
	}

	if err := p.repo.UpdateJob(ctx, job); err != nil {
		logger.ErrorKV(ctx, "Failed to persist job state", "job_id", job.ID, "error", err)
	}
}

// register records the cancel function for a running job.
func (p *pool) register(jobID uint, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active[jobID] = cancel
}

// unregister forgets a finished job.
func (p *pool) unregister(jobID uint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, jobID)
}

// destinationName builds a collision-free, filesystem-safe file name.
func destinationName(jobID uint, title string) string {
	return fmt.Sprintf("%d-%s", jobID, libraryComponent(title, "audiobook"))
}

// libraryComponent sanitizes a name into a filesystem-safe path component.
func libraryComponent(name, fallback string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)

	if safe == "" {
		return fallback
	}

	return safe
}
