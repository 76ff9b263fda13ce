package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ovoronin/audiobook-manager/internal/config"
	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
	"github.com/ovoronin/audiobook-manager/internal/sysmon"
)

// memoryRepository is a minimal in-memory Repository implementation for tests.
type memoryRepository struct {
	// mu protects the maps.
	mu sync.Mutex
	// results holds stored search results by identifier.
	results map[uint]*domain.SearchResult
	// jobs holds download jobs by identifier.
	jobs map[uint]*domain.Job
	// nextID is the next identifier to assign.
	nextID uint
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		results: make(map[uint]*domain.SearchResult),
		jobs:    make(map[uint]*domain.Job),
		nextID:  1,
	}
}

func (m *memoryRepository) addResult(result *domain.SearchResult) *domain.SearchResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result.ID = m.nextID
	m.nextID++
	m.results[result.ID] = result

	return result
}

func (m *memoryRepository) SaveSearchResults(_ context.Context, results []*domain.SearchResult) error {
	for _, result := range results {
		m.addResult(result)
	}

	return nil
}

func (m *memoryRepository) SearchResults(_ context.Context, query string, _ int) ([]*domain.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []*domain.SearchResult

	for _, result := range m.results {
		if query == "" || result.Query == query || strings.Contains(result.Title, query) {
			found = append(found, result.Clone())
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Score > found[j].Score })

	return found, nil
}

func (m *memoryRepository) SearchResultByID(_ context.Context, id uint) (*domain.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, ok := m.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return result.Clone(), nil
}

func (m *memoryRepository) CreateJob(_ context.Context, job *domain.Job) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cloned := job.Clone()
	cloned.ID = m.nextID
	m.nextID++
	m.jobs[cloned.ID] = cloned

	return cloned.Clone(), nil
}

func (m *memoryRepository) JobByID(_ context.Context, id uint) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return job.Clone(), nil
}

func (m *memoryRepository) Jobs(_ context.Context, _ int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.Clone())
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })

	return jobs, nil
}

func (m *memoryRepository) UpdateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}

	m.jobs[job.ID] = job.Clone()

	return nil
}

func (m *memoryRepository) ClaimNextPending(_ context.Context) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *domain.Job

	for _, job := range m.jobs {
		if job.Status != domain.StatusPending {
			continue
		}

		if oldest == nil || job.ID < oldest.ID {
			oldest = job
		}
	}

	if oldest == nil {
		return nil, repository.ErrNoPendingJobs
	}

	oldest.Status = domain.StatusStarting

	return oldest.Clone(), nil
}

func (m *memoryRepository) ResetAbandonedJobs(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var requeued int64

	for _, job := range m.jobs {
		if job.Status.Active() {
			job.Status = domain.StatusPending
			requeued++
		}
	}

	return requeued, nil
}

func (m *memoryRepository) PurgeFinishedJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	var purged int64

	for id, job := range m.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(m.jobs, id)
			purged++
		}
	}

	return purged, nil
}

func (m *memoryRepository) JobCounts(_ context.Context) (map[domain.Status]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.Status]int64)
	for _, job := range m.jobs {
		counts[job.Status]++
	}

	return counts, nil
}

// jobStatus reads a job's status directly, bypassing the repository interface.
func (m *memoryRepository) jobStatus(t *testing.T, id uint) domain.Status {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	require.True(t, ok)

	return job.Status
}

// testConfig builds a minimal configuration over a temporary directory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		App: &config.AppConfig{
			Name:    "Audiobook Manager",
			Version: "1.0.0",
		},
		Storage: &config.StorageConfig{
			DownloadPath: t.TempDir(),
		},
	}
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// newTestService builds a service over the in-memory repository.
func newTestService(t *testing.T, repo repository.Repository, fetcher Fetcher) *service {
	t.Helper()

	cfg := testConfig(t)

	return newService(cfg, repo, sysmon.New(cfg.Storage.DownloadPath), fetcher, 2)
}

// TestEnqueue_CreatesPendingJob verifies job creation and the not-found path.
func TestEnqueue_CreatesPendingJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{
		Title:       "Hyperion",
		DownloadURL: "http://example.com/hyperion.m4b",
	})

	svc := newTestService(t, repo, &stubFetcher{})

	job, forResult, err := svc.Enqueue(ctx, result.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, job.Status)
	require.Equal(t, result.Title, forResult.Title)

	_, _, err = svc.Enqueue(ctx, 9999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// TestCancel_PendingAndFinished covers the direct cancel and conflict paths.
func TestCancel_PendingAndFinished(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()
	result := repo.addResult(&domain.SearchResult{Title: "Hyperion"})

	svc := newTestService(t, repo, &stubFetcher{})

	job, _, err := svc.Enqueue(ctx, result.ID)
	require.NoError(t, err)

	// Pending jobs cancel directly.
	_, err = svc.Cancel(ctx, job.ID, false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, repo.jobStatus(t, job.ID))

	// Terminal jobs conflict.
	_, err = svc.Cancel(ctx, job.ID, false)
	require.ErrorIs(t, err, ErrJobFinished)

	// Unknown jobs are not found.
	_, err = svc.Cancel(ctx, 9999, false)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// TestCancel_OrphanedActiveJob cancels an active job no worker owns, the
// state a crashed run leaves behind.
func TestCancel_OrphanedActiveJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: 1,
		Status:         domain.StatusDownloading,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	svc := newTestService(t, repo, &stubFetcher{})

	cancelled, err := svc.Cancel(ctx, job.ID, false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)
	require.Equal(t, domain.StatusCancelled, repo.jobStatus(t, job.ID))
}

// TestCancel_DeletesFiles removes the downloaded payload on request.
func TestCancel_DeletesFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemoryRepository()

	dir := t.TempDir()
	payload := filepath.Join(dir, "payload.m4b")
	require.NoError(t, writeFile(payload, "data"))

	job, err := repo.CreateJob(ctx, &domain.Job{
		SearchResultID: 1,
		Status:         domain.StatusPending,
		DownloadPath:   payload,
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)

	svc := newTestService(t, repo, &stubFetcher{})

	_, err = svc.Cancel(ctx, job.ID, true)
	require.NoError(t, err)
	require.NoFileExists(t, payload)
}

// stubFetcher fails or succeeds according to its error and can block until released.
type stubFetcher struct {
	// err is returned from Fetch.
	err error
	// block, when non-nil, is closed to release a blocked Fetch.
	block chan struct{}
	// payload, when non-empty, is written to the destination on success.
	payload string

	// mu protects calls.
	mu sync.Mutex
	// calls records fetched URLs.
	calls []string
}

func (f *stubFetcher) Fetch(ctx context.Context, url, dest string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.err != nil {
		return f.err
	}

	if f.payload != "" {
		if err := writeFile(dest, f.payload); err != nil {
			return err
		}
	}

	return ctx.Err()
}

func (f *stubFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// writeFile is a tiny helper for test fixtures.
func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

// errStubTransfer is a reusable transfer failure.
var errStubTransfer = errors.New("stub transfer failed")
