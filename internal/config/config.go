package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Gmail      GmailConfig      `mapstructure:"gmail"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host" validate:"required"`
	Port           int      `mapstructure:"port" validate:"required,min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains the Postgres tracker database settings. An empty
// DSN runs the service without persistence.
type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.DSN != ""
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider" validate:"required,oneof=gemini openai genai"`
	Model             string  `mapstructure:"model"`
	MaxTokens         int     `mapstructure:"max_tokens" validate:"min=0"`
	Temperature       float64 `mapstructure:"temperature" validate:"min=0,max=2"`
	GeminiAPIKey      string  `mapstructure:"gemini_api_key"`
	OpenAIAPIKey      string  `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string  `mapstructure:"openai_base_url" validate:"omitempty,url"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// APIKey returns the key of the selected provider.
func (l LLMConfig) APIKey() string {
	if l.Provider == "openai" {
		return l.OpenAIAPIKey
	}
	return l.GeminiAPIKey
}

// ExtractorConfig limits accepted documents.
type ExtractorConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"min=1"`
}

// NormalizerConfig toggles the relaxed literal fallback.
type NormalizerConfig struct {
	RelaxedLiterals bool `mapstructure:"relaxed_literals"`
}

// PipelineConfig controls stage execution.
type PipelineConfig struct {
	StagesDir      string        `mapstructure:"stages_dir"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout" validate:"min=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	Backoff        time.Duration `mapstructure:"backoff" validate:"min=0"`
	MaxConcurrency int           `mapstructure:"max_concurrency" validate:"min=1"`
}

// StorageConfig holds filesystem locations.
type StorageConfig struct {
	UploadDir    string `mapstructure:"upload_dir" validate:"required"`
	ArtifactsDir string `mapstructure:"artifacts_dir" validate:"required"`
}

// GmailConfig configures the application status watcher.
type GmailConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CredentialsFile string        `mapstructure:"credentials_file" validate:"required_if=Enabled true"`
	TokenFile       string        `mapstructure:"token_file" validate:"required_if=Enabled true"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"min=0"`
	BootstrapDays   int           `mapstructure:"bootstrap_days" validate:"min=1"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// Load reads .env (when present), the optional YAML file at path and
// CAREERBOOST_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CAREERBOOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.burst", 1)

	v.SetDefault("extractor.max_file_size", 5*1024*1024)

	v.SetDefault("normalizer.relaxed_literals", false)

	v.SetDefault("pipeline.stages_dir", "")
	v.SetDefault("pipeline.stage_timeout", 2*time.Minute)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff", 2*time.Second)
	v.SetDefault("pipeline.max_concurrency", 4)

	v.SetDefault("storage.upload_dir", "uploads")
	v.SetDefault("storage.artifacts_dir", "data")

	v.SetDefault("gmail.enabled", false)
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.poll_interval", 2*time.Minute)
	v.SetDefault("gmail.bootstrap_days", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// bindEnvVars maps the unprefixed secrets the job tracker already reads from
// .env onto their config keys.
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"llm.gemini_api_key": {"CAREERBOOST_LLM_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"llm.openai_api_key": {"CAREERBOOST_LLM_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"database.dsn":       {"CAREERBOOST_DATABASE_DSN", "DATABASE_DSN"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the validate tags of cfg.
func Validate(cfg *Config) error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}
