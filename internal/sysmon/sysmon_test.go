package sysmon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCheckDiskSpace_Thresholds drives the sufficiency verdict with extreme thresholds.
func TestCheckDiskSpace_Thresholds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	// Any real volume sits below 101% usage.
	m := New(dir, WithThreshold(101))
	require.True(t, m.CheckDiskSpace(ctx))

	// And above -1%.
	m = New(dir, WithThreshold(-1))
	require.False(t, m.CheckDiskSpace(ctx))
}

// TestCheckDiskSpace_BadPath ensures sampling failures report insufficient space.
func TestCheckDiskSpace_BadPath(t *testing.T) {
	t.Parallel()

	m := New("/nonexistent-volume/nowhere")
	require.False(t, m.CheckDiskSpace(context.Background()))
}

// TestStats returns a populated snapshot for a real volume.
func TestStats(t *testing.T) {
	t.Parallel()

	m := New(t.TempDir())

	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	require.Positive(t, stats.MemoryTotalGB)
	require.Positive(t, stats.DiskTotalGB)
	require.GreaterOrEqual(t, stats.DiskPercent, 0.0)
}
