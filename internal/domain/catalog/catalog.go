package catalog

import "time"

// Status is the lifecycle state of a download job.
type Status string

const (
	// StatusPending means the job is queued and waiting for a worker.
	StatusPending Status = "pending"
	// StatusStarting means a worker has claimed the job.
	StatusStarting Status = "starting"
	// StatusDownloading means the transfer is in progress.
	StatusDownloading Status = "downloading"
	// StatusCompleted means the transfer finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the transfer failed; ErrorMessage holds the cause.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled before completion.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the job lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	case StatusPending, StatusStarting, StatusDownloading:
		return false
	default:
		return false
	}
}

// Active reports whether a worker currently owns the job.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusDownloading
}

// SearchResult is one audiobook found by a search, as stored in the catalog.
type SearchResult struct {
	// ID is the catalog identifier.
	ID uint
	// Query is the search query that produced this result.
	Query string
	// Title is the audiobook title.
	Title string
	// Author is the audiobook author.
	Author string
	// Narrator is the audiobook narrator.
	Narrator string
	// Size is the release size in bytes.
	Size int64
	// Seeders is the seeder count reported by the indexer.
	Seeders int
	// Leechers is the leecher count reported by the indexer.
	Leechers int
	// DownloadURL is the direct download link.
	DownloadURL string
	// MagnetURL is the magnet link, when the indexer provides one.
	MagnetURL string
	// Indexer names the source that produced the result.
	Indexer string
	// Quality is the release quality label.
	Quality string
	// Format is the audio format label.
	Format string
	// Languages lists the audio languages.
	Languages []string
	// Score is the ranking score assigned at search time.
	Score float64
	// AgeDays is the release age in days at search time.
	AgeDays float64
	// CreatedAt is when the result was stored.
	CreatedAt time.Time
}

// Clone returns a deep copy of the result.
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}

	cloned := *r

	if r.Languages != nil {
		cloned.Languages = append([]string(nil), r.Languages...)
	}

	return &cloned
}

// Job tracks one download through its lifecycle.
type Job struct {
	// ID is the job identifier.
	ID uint
	// SearchResultID references the catalog entry being downloaded.
	SearchResultID uint
	// TorrentHash identifies the transfer in the torrent client, when known.
	TorrentHash string
	// Status is the current lifecycle state.
	Status Status
	// Progress is the completion fraction from 0 to 100.
	Progress float64
	// DownloadPath is where the payload is written.
	DownloadPath string
	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time
	// CompletedAt is when the job reached a terminal state, if it has.
	CompletedAt *time.Time
	// ErrorMessage describes the failure for failed jobs.
	ErrorMessage string
}

// Clone returns a copy of the job to avoid leaking internal references.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}

	cloned := *j

	if j.CompletedAt != nil {
		completedAt := *j.CompletedAt
		cloned.CompletedAt = &completedAt
	}

	return &cloned
}
