// Package daemon hosts the long-running crucible process: the HTTP API, the
// event stream, and the wiring between the registry, pipeline, and storage.
package daemon
