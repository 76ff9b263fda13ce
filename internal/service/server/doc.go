// Package server runs the audiobook-manager HTTP application: the REST API
// over the catalog, the status endpoint, and the download worker pool.
//
// Run is the server entry point. Its behavioral parameters (bind address,
// worker count, access logging, Server header exposure) come from the
// configuration file or, when the launcher starts the server, from the
// launcher's fixed parameter set.
package server
