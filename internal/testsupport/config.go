// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"crucible/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Reasoner.APIKey = "test"
	cfg.Paths.UploadDir = filepath.Join(base, "uploads")
	cfg.Paths.DerivedDir = filepath.Join(base, "fixed")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.IndexDB = filepath.Join(base, "index.db")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithReasonerKey sets the reasoner API key on the test config.
func WithReasonerKey(key string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Reasoner.APIKey = key
	}
}

// WithAPIToken enables bearer auth on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}

// WithRetryPolicy overrides the stage retry policy on the test config.
func WithRetryPolicy(maxRetries, backoffMillis int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.MaxStageRetries = maxRetries
		cfg.Pipeline.RetryBackoffMillis = backoffMillis
	}
}
