package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	UploadDir  string `toml:"upload_dir"`
	DerivedDir string `toml:"derived_dir"`
	LogDir     string `toml:"log_dir"`
	IndexDB    string `toml:"index_db"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Reasoner contains connection settings for the chat-completions backend
// that powers the analysis stages.
type Reasoner struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Pipeline contains executor timing and retry policy.
type Pipeline struct {
	// MaxStageRetries is the number of retries after the first attempt.
	MaxStageRetries     int `toml:"max_stage_retries"`
	RetryBackoffMillis  int `toml:"retry_backoff_ms"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	SubscriberBuffer    int `toml:"subscriber_buffer"`
	// RetainLimit prunes the oldest terminal tasks beyond this count.
	// Zero keeps every task for the life of the process.
	RetainLimit int `toml:"retain_limit"`
}

// Intake contains submission validation settings.
type Intake struct {
	AllowedExtensions []string `toml:"allowed_extensions"`
	MaxFileBytes      int64    `toml:"max_file_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Crucible.
//
// Configuration sections by subsystem:
//   - Paths: artifact directories, index database, and API bind address
//   - Reasoner: chat-completions backend for the analysis stages
//   - Pipeline: stage retry, backoff, and timeout policy
//   - Intake: submission validation limits
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Reasoner Reasoner `toml:"reasoner"`
	Pipeline Pipeline `toml:"pipeline"`
	Intake   Intake   `toml:"intake"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/crucible/config.toml")
}

// ExpandPath expands a leading tilde and returns a cleaned absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// SampleConfig returns the embedded documented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("crucible.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	if key := strings.TrimSpace(os.Getenv("CRUCIBLE_REASONER_API_KEY")); key != "" {
		c.Reasoner.APIKey = key
	}

	for _, field := range []*string{
		&c.Paths.UploadDir,
		&c.Paths.DerivedDir,
		&c.Paths.LogDir,
		&c.Paths.IndexDB,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Reasoner.BaseURL = strings.TrimRight(strings.TrimSpace(c.Reasoner.BaseURL), "/")
	c.Reasoner.Model = strings.TrimSpace(c.Reasoner.Model)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	normalized := make([]string, 0, len(c.Intake.AllowedExtensions))
	for _, ext := range c.Intake.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.Intake.AllowedExtensions = normalized

	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.DerivedDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.IndexDB); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory %q: %w", dir, err)
		}
	}
	return nil
}

// AllowsExtension reports whether a submitted filename passes the intake allowlist.
func (c *Config) AllowsExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range c.Intake.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
