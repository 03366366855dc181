// Package tasks holds the in-memory task registry, the single source of
// truth for task and stage lifecycle state. Every read hands out a deep
// copy; every mutation goes through a transition method that enforces the
// forward-only lifecycle and stage ordering rules.
package tasks
