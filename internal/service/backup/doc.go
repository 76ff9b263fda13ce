// Package backup snapshots a deployment's database, settings and logs into
// timestamped directories and prunes old snapshots, keeping the newest few.
package backup
