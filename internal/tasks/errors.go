package tasks

import "errors"

var (
	// ErrNotFound indicates the requested task does not exist, either
	// because the identifier is unknown or the record was pruned.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates a status change that would violate
	// the forward-only task lifecycle or the stage ordering rules.
	ErrInvalidTransition = errors.New("invalid transition")
)
