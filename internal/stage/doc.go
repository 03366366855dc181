// Package stage defines the contract every pipeline stage implements and the
// value types the runner exchanges with stages.
package stage
