// Package validator implements the deployment-level configuration gate run
// before the server starts: required sections present, every integration has
// a host, and storage paths are writable.
//
// It is deliberately separate from config.Validate, which only guards values
// the binaries cannot run without. A configuration can be structurally valid
// yet undeployable; this package decides the latter.
package validator
