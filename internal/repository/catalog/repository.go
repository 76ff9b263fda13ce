package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
)

// Repository defines persistence operations for the audiobook catalog.
type Repository interface {
	SaveSearchResults(ctx context.Context, results []*domain.SearchResult) error
	SearchResults(ctx context.Context, query string, limit int) ([]*domain.SearchResult, error)
	SearchResultByID(ctx context.Context, id uint) (*domain.SearchResult, error)
	CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error)
	JobByID(ctx context.Context, id uint) (*domain.Job, error)
	Jobs(ctx context.Context, limit int) ([]*domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job) error
	ClaimNextPending(ctx context.Context) (*domain.Job, error)
	ResetAbandonedJobs(ctx context.Context) (int64, error)
	PurgeFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	JobCounts(ctx context.Context) (map[domain.Status]int64, error)
}

// Store persists the catalog in a SQLite database through gorm.
type Store struct {
	// db is the gorm handle over the SQLite file.
	db *gorm.DB
}

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoPendingJobs is returned when no job is waiting to be claimed.
	ErrNoPendingJobs = errors.New("no pending jobs")

	// errJobIsNotSet is returned when a nil job is provided.
	errJobIsNotSet = errors.New("job is not set")
)

// defaultDirPermissions is used when creating the database directory.
const defaultDirPermissions = 0o750

// Open creates the database file (and its directory) if needed,
// migrates the schema and returns a ready store.
func Open(path string) (*Store, error) {
	cleaned := filepath.Clean(path)

	if dir := filepath.Dir(cleaned); dir != "." {
		if err := os.MkdirAll(dir, defaultDirPermissions); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cleaned), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Schema has always been created in place rather than via migration files.
	if err := db.AutoMigrate(&searchResultRecord{}, &downloadJobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// searchResultRecord is the persistence shape of domain.SearchResult.
type searchResultRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Query       string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Author      string
	Narrator    string
	Size        int64
	Seeders     int
	Leechers    int
	DownloadURL string `gorm:"type:text"`
	MagnetURL   string `gorm:"type:text"`
	Indexer     string
	Quality     string
	Format      string
	// Languages is stored as a JSON-encoded string array.
	Languages string `gorm:"type:text"`
	Score     float64
	AgeDays   float64
	CreatedAt time.Time
}

// TableName keeps the table name the schema has always used.
func (searchResultRecord) TableName() string {
	return "search_results"
}

// downloadJobRecord is the persistence shape of domain.Job.
type downloadJobRecord struct {
	ID             uint   `gorm:"primaryKey"`
	SearchResultID uint   `gorm:"not null;index"`
	TorrentHash    string
	Status         string `gorm:"index;default:pending"`
	Progress       float64
	DownloadPath   string
	CreatedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string `gorm:"type:text"`
}

// TableName keeps the table name the schema has always used.
func (downloadJobRecord) TableName() string {
	return "download_jobs"
}

// SaveSearchResults stores a batch of search results.
func (s *Store) SaveSearchResults(ctx context.Context, results []*domain.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	records := make([]*searchResultRecord, 0, len(results))
	for _, result := range results {
		records = append(records, searchResultToRecord(result))
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("save search results: %w", err)
	}

	for i, record := range records {
		results[i].ID = record.ID
	}

	return nil
}

// SearchResults returns stored results matching the query, best score first.
// An empty query returns the most recent results instead.
func (s *Store) SearchResults(ctx context.Context, query string, limit int) ([]*domain.SearchResult, error) {
	tx := s.db.WithContext(ctx).Model(&searchResultRecord{})

	if query != "" {
		pattern := "%" + query + "%"
		tx = tx.Where("query = ? OR title LIKE ? OR author LIKE ?", query, pattern, pattern).
			Order("score DESC")
	} else {
		tx = tx.Order("created_at DESC")
	}

	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var records []*searchResultRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query search results: %w", err)
	}

	results := make([]*domain.SearchResult, 0, len(records))
	for _, record := range records {
		results = append(results, searchResultFromRecord(record))
	}

	return results, nil
}

// SearchResultByID returns one stored result.
func (s *Store) SearchResultByID(ctx context.Context, id uint) (*domain.SearchResult, error) {
	var record searchResultRecord

	err := s.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("query search result: %w", err)
	}

	return searchResultFromRecord(&record), nil
}

// CreateJob stores a new download job and returns it with the assigned identifier.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job == nil {
		return nil, errJobIsNotSet
	}

	record := jobToRecord(job)
	if record.Status == "" {
		record.Status = string(domain.StatusPending)
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	return jobFromRecord(record), nil
}

// JobByID returns one download job.
func (s *Store) JobByID(ctx context.Context, id uint) (*domain.Job, error) {
	var record downloadJobRecord

	err := s.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("query job: %w", err)
	}

	return jobFromRecord(&record), nil
}

// Jobs returns download jobs, newest first.
func (s *Store) Jobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	tx := s.db.WithContext(ctx).Model(&downloadJobRecord{}).Order("created_at DESC, id DESC")

	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var records []*downloadJobRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(records))
	for _, record := range records {
		jobs = append(jobs, jobFromRecord(record))
	}

	return jobs, nil
}

// UpdateJob persists the current state of a job.
func (s *Store) UpdateJob(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return errJobIsNotSet
	}

	record := jobToRecord(job)

	result := s.db.WithContext(ctx).Model(&downloadJobRecord{}).
		Where("id = ?", record.ID).
		Select("TorrentHash", "Status", "Progress", "DownloadPath", "CompletedAt", "ErrorMessage").
		Updates(record)
	if result.Error != nil {
		return fmt.Errorf("update job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ClaimNextPending atomically moves the oldest pending job to the starting
// state and returns it, so concurrent workers never claim the same job.
func (s *Store) ClaimNextPending(ctx context.Context) (*domain.Job, error) {
	var claimed *downloadJobRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record downloadJobRecord

		err := tx.Where("status = ?", string(domain.StatusPending)).
			Order("created_at ASC, id ASC").
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingJobs
			}

			return fmt.Errorf("find pending job: %w", err)
		}

		update := tx.Model(&downloadJobRecord{}).
			Where("id = ? AND status = ?", record.ID, string(domain.StatusPending)).
			Update("status", string(domain.StatusStarting))
		if update.Error != nil {
			return fmt.Errorf("claim job: %w", update.Error)
		}

		if update.RowsAffected == 0 {
			return ErrNoPendingJobs
		}

		record.Status = string(domain.StatusStarting)
		claimed = &record

		return nil
	})
	if err != nil {
		return nil, err
	}

	return jobFromRecord(claimed), nil
}

// ResetAbandonedJobs returns jobs stuck in an active state to pending.
// Active rows with no owning worker are what a crash or restart leaves
// behind; requeueing lets the next pool run pick them up again.
func (s *Store) ResetAbandonedJobs(ctx context.Context) (int64, error) {
	active := []string{string(domain.StatusStarting), string(domain.StatusDownloading)}

	result := s.db.WithContext(ctx).Model(&downloadJobRecord{}).
		Where("status IN ?", active).
		Update("status", string(domain.StatusPending))
	if result.Error != nil {
		return 0, fmt.Errorf("reset abandoned jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// PurgeFinishedJobs deletes terminal jobs created before the retention window.
func (s *Store) PurgeFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	terminal := []string{
		string(domain.StatusCompleted),
		string(domain.StatusFailed),
		string(domain.StatusCancelled),
	}
	cutoff := time.Now().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", terminal, cutoff).
		Delete(&downloadJobRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// JobCounts returns the number of jobs per status.
func (s *Store) JobCounts(ctx context.Context) (map[domain.Status]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var rows []statusCount

	err := s.db.WithContext(ctx).Model(&downloadJobRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}

	return counts, nil
}

// searchResultToRecord converts the domain model into its persistence shape.
func searchResultToRecord(result *domain.SearchResult) *searchResultRecord {
	return &searchResultRecord{
		ID:          result.ID,
		Query:       result.Query,
		Title:       result.Title,
		Author:      result.Author,
		Narrator:    result.Narrator,
		Size:        result.Size,
		Seeders:     result.Seeders,
		Leechers:    result.Leechers,
		DownloadURL: result.DownloadURL,
		MagnetURL:   result.MagnetURL,
		Indexer:     result.Indexer,
		Quality:     result.Quality,
		Format:      result.Format,
		Languages:   encodeLanguages(result.Languages),
		Score:       result.Score,
		AgeDays:     result.AgeDays,
		CreatedAt:   result.CreatedAt,
	}
}

// searchResultFromRecord converts the persistence shape into the domain model.
func searchResultFromRecord(record *searchResultRecord) *domain.SearchResult {
	return &domain.SearchResult{
		ID:          record.ID,
		Query:       record.Query,
		Title:       record.Title,
		Author:      record.Author,
		Narrator:    record.Narrator,
		Size:        record.Size,
		Seeders:     record.Seeders,
		Leechers:    record.Leechers,
		DownloadURL: record.DownloadURL,
		MagnetURL:   record.MagnetURL,
		Indexer:     record.Indexer,
		Quality:     record.Quality,
		Format:      record.Format,
		Languages:   decodeLanguages(record.Languages),
		Score:       record.Score,
		AgeDays:     record.AgeDays,
		CreatedAt:   record.CreatedAt,
	}
}

// jobToRecord converts the domain model into its persistence shape.
func jobToRecord(job *domain.Job) *downloadJobRecord {
	return &downloadJobRecord{
		ID:             job.ID,
		SearchResultID: job.SearchResultID,
		TorrentHash:    job.TorrentHash,
		Status:         string(job.Status),
		Progress:       job.Progress,
		DownloadPath:   job.DownloadPath,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
		ErrorMessage:   job.ErrorMessage,
	}
}

// jobFromRecord converts the persistence shape into the domain model.
func jobFromRecord(record *downloadJobRecord) *domain.Job {
	return &domain.Job{
		ID:             record.ID,
		SearchResultID: record.SearchResultID,
		TorrentHash:    record.TorrentHash,
		Status:         domain.Status(record.Status),
		Progress:       record.Progress,
		DownloadPath:   record.DownloadPath,
		CreatedAt:      record.CreatedAt,
		CompletedAt:    record.CompletedAt,
		ErrorMessage:   record.ErrorMessage,
	}
}

// encodeLanguages stores the language list as a JSON string.
func encodeLanguages(languages []string) string {
	if len(languages) == 0 {
		return ""
	}

	data, err := json.Marshal(languages)
	if err != nil {
		return ""
	}

	return string(data)
}

// decodeLanguages tolerates empty and malformed values, returning nil for both.
func decodeLanguages(encoded string) []string {
	if encoded == "" {
		return nil
	}

	var languages []string
	if err := json.Unmarshal([]byte(encoded), &languages); err != nil {
		return nil
	}

	return languages
}
