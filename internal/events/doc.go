// Package events implements per-task status fan-out. Consumers subscribe to
// one task and receive a snapshot of its current state followed by every
// subsequent event, in order and without gaps. Slow consumers are
// disconnected rather than allowed to stall the pipeline.
package events
