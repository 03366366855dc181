package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crucible/internal/config"
)

func TestDefaultValidatesWithAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Reasoner.APIKey = "test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "reasoner.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
upload_dir = "` + filepath.Join(dir, "uploads") + `"
derived_dir = "` + filepath.Join(dir, "fixed") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
index_db = "` + filepath.Join(dir, "artifacts.db") + `"
api_bind = "127.0.0.1:0"

[reasoner]
api_key = "k"

[pipeline]
max_stage_retries = 1

[intake]
allowed_extensions = ["py", ".GO"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
	if cfg.Pipeline.MaxStageRetries != 1 {
		t.Fatalf("unexpected retries: %d", cfg.Pipeline.MaxStageRetries)
	}
	// Defaults survive for keys the file omits.
	if cfg.Pipeline.StageTimeoutSeconds <= 0 {
		t.Fatal("expected default stage timeout")
	}
	if !filepath.IsAbs(cfg.Paths.UploadDir) {
		t.Fatalf("upload dir not absolute: %s", cfg.Paths.UploadDir)
	}
	if got := cfg.Intake.AllowedExtensions; len(got) != 2 || got[0] != ".py" || got[1] != ".go" {
		t.Fatalf("extensions not normalized: %v", got)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[reasoner]
api_key = "k"

[logging]
level = "verbose"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestAllowsExtension(t *testing.T) {
	cfg := config.Default()
	cases := []struct {
		name string
		want bool
	}{
		{"main.py", true},
		{"main.PY", true},
		{"lib.go", true},
		{"notes.txt", false},
		{"README", false},
	}
	for _, tc := range cases {
		if got := cfg.AllowsExtension(tc.name); got != tc.want {
			t.Fatalf("AllowsExtension(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("CRUCIBLE_REASONER_API_KEY", "from-env")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Reasoner.APIKey != "from-env" {
		t.Fatalf("unexpected api key: %q", cfg.Reasoner.APIKey)
	}
}
