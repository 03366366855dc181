package config

const (
	defaultUploadDir           = "~/.local/share/crucible/uploads"
	defaultDerivedDir          = "~/.local/share/crucible/fixed"
	defaultLogDir              = "~/.local/share/crucible/logs"
	defaultIndexDB             = "~/.local/share/crucible/artifacts.db"
	defaultAPIBind             = "127.0.0.1:7319"
	defaultReasonerBaseURL     = "https://api.deepseek.com"
	defaultReasonerModel       = "deepseek-reasoner"
	defaultReasonerTimeout     = 120
	defaultMaxStageRetries     = 2
	defaultRetryBackoffMillis  = 500
	defaultStageTimeoutSeconds = 120
	defaultSubscriberBuffer    = 64
	defaultMaxFileBytes        = 1 << 20
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultAllowedExtensions() []string {
	return []string{".py", ".go", ".js", ".ts", ".java", ".c", ".cpp", ".rs", ".rb"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:  defaultUploadDir,
			DerivedDir: defaultDerivedDir,
			LogDir:     defaultLogDir,
			IndexDB:    defaultIndexDB,
			APIBind:    defaultAPIBind,
		},
		Reasoner: Reasoner{
			BaseURL:        defaultReasonerBaseURL,
			Model:          defaultReasonerModel,
			TimeoutSeconds: defaultReasonerTimeout,
		},
		Pipeline: Pipeline{
			MaxStageRetries:     defaultMaxStageRetries,
			RetryBackoffMillis:  defaultRetryBackoffMillis,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			SubscriberBuffer:    defaultSubscriberBuffer,
		},
		Intake: Intake{
			AllowedExtensions: defaultAllowedExtensions(),
			MaxFileBytes:      defaultMaxFileBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
