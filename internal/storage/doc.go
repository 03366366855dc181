// Package storage persists submitted and corrected artifacts on disk and
// keeps a SQLite index of them. It is the durable counterpart to the
// volatile task registry.
package storage
