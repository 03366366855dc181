package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, transport
	// errors, upstream overload.
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks an operation that exceeded its deadline. Treated as
	// retryable by the pipeline.
	ErrTimeout = errors.New("timeout")
	// ErrValidation marks malformed input or responses. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrExternalTool marks a definitive upstream rejection. Never retried.
	ErrExternalTool = errors.New("external service error")
	// ErrConfiguration marks missing or unusable configuration. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a lookup for an unknown identifier.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a stage error should be retried by the
// pipeline executor. Only transient and timeout failures qualify;
// everything else is permanent.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
