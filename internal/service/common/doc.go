// Package common holds helpers shared by several services.
//
// It provides detection of the current system actor (hostname/username) for
// audit purposes and a process-table scan used to refuse double launches.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
