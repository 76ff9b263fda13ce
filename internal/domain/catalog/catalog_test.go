package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestStatusClassification checks terminal and active classification for every status.
func TestStatusClassification(t *testing.T) {
	t.Parallel()

	require.False(t, StatusPending.Terminal())
	require.False(t, StatusStarting.Terminal())
	require.False(t, StatusDownloading.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusCancelled.Terminal())

	require.True(t, StatusStarting.Active())
	require.True(t, StatusDownloading.Active())
	require.False(t, StatusPending.Active())
	require.False(t, StatusCompleted.Active())
}

// TestJobClone ensures clones do not share the CompletedAt pointer.
func TestJobClone(t *testing.T) {
	t.Parallel()

	completedAt := time.Unix(100, 0)
	job := &Job{
		ID:          1,
		Status:      StatusCompleted,
		CompletedAt: &completedAt,
	}

	cloned := job.Clone()
	require.Equal(t, job, cloned)
	require.NotSame(t, job.CompletedAt, cloned.CompletedAt)
}

// TestSearchResultClone ensures clones do not share the languages slice.
func TestSearchResultClone(t *testing.T) {
	t.Parallel()

	result := &SearchResult{
		Title:     "The Fall of Hyperion",
		Languages: []string{"english"},
	}

	cloned := result.Clone()
	require.Equal(t, result, cloned)

	cloned.Languages[0] = "german"
	require.Equal(t, "english", result.Languages[0])
}
