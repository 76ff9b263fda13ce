package sysmon

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/ovoronin/audiobook-manager/internal/logger"
)

// Monitor samples host statistics and answers the disk sufficiency question.
type Monitor struct {
	// path is the filesystem path whose volume is sampled for disk usage.
	path string
	// threshold is the used-percent value at which disk space stops being sufficient.
	threshold float64
}

// Option configures monitor behaviour.
type Option func(*Monitor)

// WithThreshold overrides the disk usage threshold percentage.
func WithThreshold(percent float64) Option {
	return func(m *Monitor) {
		m.threshold = percent
	}
}

const (
	// DefaultDiskPath is the volume sampled when none is configured.
	DefaultDiskPath = "/"

	// DefaultDiskThreshold is the used-percent value above which disk space is insufficient.
	DefaultDiskThreshold = 90.0

	// cpuSampleInterval is how long CPU usage is sampled for a stats snapshot.
	cpuSampleInterval = 1 * time.Second

	bytesPerMB = 1 << 20
	bytesPerGB = 1 << 30
)

// New creates a monitor sampling the volume containing path.
// An empty path falls back to the root volume.
func New(path string, opts ...Option) *Monitor {
	if path == "" {
		path = DefaultDiskPath
	}

	m := &Monitor{
		path:      path,
		threshold: DefaultDiskThreshold,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// CheckDiskSpace reports whether the sampled volume has headroom below the threshold.
// Sampling errors count as insufficient so callers surface the warning.
func (m *Monitor) CheckDiskSpace(ctx context.Context) bool {
	usage, err := disk.UsageWithContext(ctx, m.path)
	if err != nil {
		logger.ErrorKV(ctx, "Disk space check failed", "path", m.path, "error", err)
		return false
	}

	logger.DebugKV(ctx, "Disk usage sampled",
		"path", m.path,
		"used_percent", fmt.Sprintf("%.1f", usage.UsedPercent))

	return usage.UsedPercent < m.threshold
}

// Stats is a point-in-time snapshot of host and process resource usage.
type Stats struct {
	// CPUPercent is the host CPU utilization over the sample interval.
	CPUPercent float64 `json:"cpu_percent"`
	// MemoryPercent is the host memory utilization.
	MemoryPercent float64 `json:"memory_percent"`
	// MemoryUsedGB is the used host memory in gigabytes.
	MemoryUsedGB float64 `json:"memory_used_gb"`
	// MemoryTotalGB is the total host memory in gigabytes.
	MemoryTotalGB float64 `json:"memory_total_gb"`
	// DiskPercent is the sampled volume utilization.
	DiskPercent float64 `json:"disk_percent"`
	// DiskUsedGB is the used space on the sampled volume in gigabytes.
	DiskUsedGB float64 `json:"disk_used_gb"`
	// DiskTotalGB is the total space on the sampled volume in gigabytes.
	DiskTotalGB float64 `json:"disk_total_gb"`
	// ProcessMemoryMB is this process's resident memory in megabytes.
	ProcessMemoryMB float64 `json:"process_memory_mb"`
}

// Stats collects a snapshot of CPU, memory, disk and process usage.
// The CPU figure blocks for the sample interval, mirroring how the status
// endpoint has always behaved.
func (m *Monitor) Stats(ctx context.Context) (*Stats, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return nil, fmt.Errorf("sample cpu: %w", err)
	}

	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	memory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sample memory: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, m.path)
	if err != nil {
		return nil, fmt.Errorf("sample disk: %w", err)
	}

	stats := &Stats{
		CPUPercent:    cpuPercent,
		MemoryPercent: memory.UsedPercent,
		MemoryUsedGB:  float64(memory.Used) / bytesPerGB,
		MemoryTotalGB: float64(memory.Total) / bytesPerGB,
		DiskPercent:   usage.UsedPercent,
		DiskUsedGB:    float64(usage.Used) / bytesPerGB,
		DiskTotalGB:   float64(usage.Total) / bytesPerGB,
	}

	// Process memory is best effort; the snapshot is still useful without it.
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err == nil {
		if info, memErr := proc.MemoryInfoWithContext(ctx); memErr == nil {
			stats.ProcessMemoryMB = float64(info.RSS) / bytesPerMB
		}
	}

	return stats, nil
}
