// Package config loads the orchestration core's configuration from the
// environment. A .env file in the working directory is read first when
// present; real environment variables win.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the Growen orchestration core.
type Config struct {
	Port      int    `env:"GROWEN_PORT" envDefault:"8080"`
	Version   string `env:"GROWEN_VERSION" envDefault:"0.1.0"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AI        AIConfig
	Tools     ToolsConfig
	Chat      ChatConfig
	Disambig  DisambigConfig
	History   HistoryConfig
	Catalog   CatalogConfig
	Auth      AuthConfig
	Guard     GuardConfig
	Telemetry TelemetryConfig
}

// AIConfig selects and configures the model providers.
type AIConfig struct {
	// Mode is auto, force_local or force_remote.
	Mode          string `env:"AI_MODE" envDefault:"auto"`
	AllowExternal bool   `env:"AI_ALLOW_EXTERNAL" envDefault:"true"`

	OllamaURL       string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaModel     string        `env:"OLLAMA_MODEL" envDefault:"llama3.1"`
	OllamaTimeout   time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"30s"`
	AvailabilityTTL time.Duration `env:"OLLAMA_AVAILABILITY_TTL" envDefault:"30s"`

	OpenAIBaseURL string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIModel   string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAITimeout time.Duration `env:"OPENAI_TIMEOUT" envDefault:"45s"`

	Temperature float64 `env:"AI_TEMPERATURE" envDefault:"0.3"`
	MaxTokens   int     `env:"AI_MAX_TOKENS" envDefault:"800"`
}

// ToolsConfig points at the internal tool server.
type ToolsConfig struct {
	// BaseURL empty means tools are served from the local catalog.
	BaseURL          string        `env:"TOOLS_BASE_URL"`
	Secret           string        `env:"TOOLS_INTERNAL_SECRET"`
	Timeout          time.Duration `env:"TOOLS_TIMEOUT" envDefault:"5s"`
	MaxCallsPerRound int           `env:"TOOLS_MAX_CALLS_PER_ROUND" envDefault:"3"`
}

// ChatConfig tunes the session front end.
type ChatConfig struct {
	MaxMessageChars int           `env:"CHAT_MAX_MESSAGE_CHARS" envDefault:"2000"`
	ReadTimeout     time.Duration `env:"CHAT_READ_TIMEOUT" envDefault:"120s"`
	Keepalive       time.Duration `env:"CHAT_KEEPALIVE" envDefault:"25s"`
	StreamDefault   bool          `env:"CHAT_STREAM_DEFAULT" envDefault:"false"`
	HistoryTurns    int           `env:"CHAT_HISTORY_TURNS" envDefault:"6"`
	AllowedOrigins  []string      `env:"CHAT_ALLOWED_ORIGINS" envDefault:"*"`
}

// DisambigConfig configures the disambiguation memory.
type DisambigConfig struct {
	TTL time.Duration `env:"DISAMBIG_TTL" envDefault:"5m"`
	// RedisURL empty keeps the memory in-process.
	RedisURL string `env:"DISAMBIG_REDIS_URL"`
}

// HistoryConfig configures conversation persistence.
type HistoryConfig struct {
	// SQLitePath empty keeps history in memory.
	SQLitePath string `env:"HISTORY_SQLITE_PATH"`

	// Retention zero disables pruning.
	Retention     time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" envDefault:"1h"`
}

// CatalogConfig selects the product catalog reader.
type CatalogConfig struct {
	PostgresDSN string `env:"CATALOG_DATABASE_URL"`
	SeedFile    string `env:"CATALOG_SEED_FILE"`
}

// AuthConfig configures caller identification.
type AuthConfig struct {
	SessionSecret string `env:"AUTH_SESSION_SECRET"`
	TrustHeaders  bool   `env:"AUTH_TRUST_HEADERS" envDefault:"false"`
	ProxySecret   string `env:"AUTH_PROXY_SECRET"`
}

// GuardConfig configures inbound checks.
type GuardConfig struct {
	BlockedWords []string `env:"GUARD_BLOCKED_WORDS"`
	Sensitivity  string   `env:"GUARD_SENSITIVITY" envDefault:"medium"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName  string  `env:"OTEL_SERVICE_NAME" envDefault:"growen-ai-core"`
	SampleRatio  float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
	// Headers are sent with every export, e.g. "authorization:Bearer x".
	Headers       map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ExportTimeout time.Duration     `env:"OTEL_EXPORTER_OTLP_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (if any) and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("GROWEN_PORT out of range: %d", c.Port))
	}
	switch c.AI.Mode {
	case "auto", "force_local", "force_remote":
	default:
		errs = append(errs, fmt.Errorf("AI_MODE must be auto, force_local or force_remote, got %q", c.AI.Mode))
	}
	for name, d := range map[string]time.Duration{
		"OLLAMA_TIMEOUT":    c.AI.OllamaTimeout,
		"OPENAI_TIMEOUT":    c.AI.OpenAITimeout,
		"TOOLS_TIMEOUT":     c.Tools.Timeout,
		"CHAT_READ_TIMEOUT": c.Chat.ReadTimeout,
		"CHAT_KEEPALIVE":    c.Chat.Keepalive,
		"DISAMBIG_TTL":      c.Disambig.TTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Chat.Keepalive > 0 && c.Chat.ReadTimeout > 0 && c.Chat.Keepalive >= c.Chat.ReadTimeout {
		errs = append(errs, errors.New("CHAT_KEEPALIVE must be shorter than CHAT_READ_TIMEOUT"))
	}
	if c.History.Retention < 0 {
		errs = append(errs, errors.New("HISTORY_RETENTION must not be negative"))
	}
	if c.History.Retention > 0 && c.History.PruneInterval < time.Minute {
		errs = append(errs, errors.New("HISTORY_PRUNE_INTERVAL must be at least 1m"))
	}
	if c.Tools.MaxCallsPerRound < 1 {
		errs = append(errs, errors.New("TOOLS_MAX_CALLS_PER_ROUND must be at least 1"))
	}
	if c.Tools.BaseURL != "" && c.Tools.Secret == "" {
		errs = append(errs, errors.New("TOOLS_INTERNAL_SECRET is required when TOOLS_BASE_URL is set"))
	}
	if c.Chat.MaxMessageChars < 1 {
		errs = append(errs, errors.New("CHAT_MAX_MESSAGE_CHARS must be at least 1"))
	}
	switch c.Guard.Sensitivity {
	case "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("GUARD_SENSITIVITY must be medium or high, got %q", c.Guard.Sensitivity))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be between 0 and 1"))
	}
	return errors.Join(errs...)
}
