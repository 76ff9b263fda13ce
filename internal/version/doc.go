// Package version exposes build metadata injected via ldflags and a helper
// to attach a `version` subcommand to each binary's cobra root.
package version
