// Package pipeline executes tasks stage by stage. The runner owns retry
// policy, per-attempt timeouts, and the goroutine each task runs on; state
// lives in the registry and every change is broadcast to subscribers.
package pipeline
