package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
)

// waitForStatus polls until the job reaches the wanted status or times out.
func waitForStatus(t *testing.T, repo *memoryRepository, jobID uint, wanted domain.Status) {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case <-deadline:
			t.Fatalf("job %d never reached status %s (currently %s)",
				jobID, wanted, repo.jobStatus(t, jobID))
		case <-time.After(10 * time.Millisecond):
			if repo.jobStatus(t, jobID) == wanted {
				return
			}
		}
	}
}

// startPool runs the pool in the background and returns a stopper.
func startPool(t *testing.T, p *pool) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- p.Run(ctx)
	}()

	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

// TestPool_CompletesJob drives one job from pending to completed.
func TestPool_CompletesJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{
		Title:       "Hyperion",
		DownloadURL: "http://example.com/hyperion.m4b",
	})

	fetcher := &stubFetcher{}
	p := newPool(repo, fetcher, t.TempDir(), "", 2)

	stop := startPool(t, p)
	defer stop()

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	p.Wake()
	waitForStatus(t, repo, job.ID, domain.StatusCompleted)

	reloaded, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	require.InDelta(t, 100, reloaded.Progress, 0.01)
	require.NotNil(t, reloaded.CompletedAt)
	require.Contains(t, reloaded.DownloadPath, "Hyperion")
	require.Equal(t, []string{"http://example.com/hyperion.m4b"}, fetcher.fetched())
}

// TestPool_FailsJobOnTransferError records the failure message on the job.
func TestPool_FailsJobOnTransferError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{
		Title:       "Hyperion",
		DownloadURL: "http://example.com/hyperion.m4b",
	})

	p := newPool(repo, &stubFetcher{err: errStubTransfer}, t.TempDir(), "", 1)

	stop := startPool(t, p)
	defer stop()

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	p.Wake()
	waitForStatus(t, repo, job.ID, domain.StatusFailed)

	reloaded, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)
	require.Contains(t, reloaded.ErrorMessage, "stub transfer failed")
}

// TestPool_FailsJobWithoutURL rejects results that cannot be fetched.
func TestPool_FailsJobWithoutURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{Title: "Hyperion"})

	p := newPool(repo, &stubFetcher{}, t.TempDir(), "", 1)

	stop := startPool(t, p)
	defer stop()

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	p.Wake()
	waitForStatus(t, repo, job.ID, domain.StatusFailed)
}

// TestPool_CancelInterruptsActiveJob cancels a transfer in flight.
func TestPool_CancelInterruptsActiveJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{
		Title:       "Hyperion",
		DownloadURL: "http://example.com/hyperion.m4b",
	})

	fetcher := &stubFetcher{block: make(chan struct{})}
	p := newPool(repo, fetcher, t.TempDir(), "", 1)

	stop := startPool(t, p)
	defer stop()

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	p.Wake()
	waitForStatus(t, repo, job.ID, domain.StatusDownloading)

	p.Cancel(job.ID)
	waitForStatus(t, repo, job.ID, domain.StatusCancelled)
}

// TestPool_ResumesAbandonedJobs requeues active jobs a previous run left
// behind, so they complete instead of hanging forever.
func TestPool_ResumesAbandonedJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{
		Title:       "Hyperion",
		DownloadURL: "http://example.com/hyperion.m4b",
	})

	// An active job with no owning worker, as left by a crashed run.
	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusDownloading,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	p := newPool(repo, &stubFetcher{}, t.TempDir(), "", 1)

	stop := startPool(t, p)
	defer stop()

	waitForStatus(t, repo, job.ID, domain.StatusCompleted)
}

// TestPool_OrganizesCompletedDownload files the payload into the library
// under author/title and records the final path on the job.
func TestPool_OrganizesCompletedDownload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{
		Title:       "The Fall of Hyperion",
		Author:      "Dan Simmons",
		DownloadURL: "http://example.com/hyperion2.m4b",
	})

	libraryDir := t.TempDir()
	p := newPool(repo, &stubFetcher{payload: "audio"}, t.TempDir(), libraryDir, 1)

	stop := startPool(t, p)
	defer stop()

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: result.ID,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	p.Wake()
	waitForStatus(t, repo, job.ID, domain.StatusCompleted)

	reloaded, err := repo.JobByID(ctx, job.ID)
	require.NoError(t, err)

	wantDir := filepath.Join(libraryDir, "Dan_Simmons", "The_Fall_of_Hyperion")
	require.Equal(t, wantDir, filepath.Dir(reloaded.DownloadPath))
	require.FileExists(t, reloaded.DownloadPath)
}

// TestDestinationName sanitizes titles into safe file names.
func TestDestinationName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "7-The_Fall_of_Hyperion", destinationName(7, "The Fall of Hyperion"))
	require.Equal(t, "7-audiobook", destinationName(7, "///"))
}

// TestLibraryComponent falls back when nothing survives sanitizing.
func TestLibraryComponent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Dan_Simmons", libraryComponent("Dan Simmons", "Unknown_Author"))
	require.Equal(t, "Unknown_Author", libraryComponent("///", "Unknown_Author"))
	require.Equal(t, "Unknown_Author", libraryComponent("", "Unknown_Author"))
}
