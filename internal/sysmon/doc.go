// Package sysmon samples host statistics (CPU, memory, disk, process RSS)
// and implements the advisory disk-space check consulted during launch.
//
// Disk space is considered sufficient while the sampled volume is below the
// usage threshold; sampling failures are reported as insufficient.
package sysmon
