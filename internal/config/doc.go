// Package config defines the settings file shared by the audiobook-manager
// binaries and provides helpers to load, validate and save it in YAML format.
//
// The Config type mirrors config/settings.yaml: application identity, HTTP
// server bind parameters, external integrations, storage paths, database
// location and logging options.
package config
