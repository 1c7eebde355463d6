// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.askcorpus/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder, temperature
//   - Retrieval: chunking, top-K, fallback threshold, ambiguity penalty
//   - Storage: PostgreSQL connection (see storage.go)
//   - Crawler: page limits and politeness settings
//   - Telemetry: optional OTLP trace export
//
// Validation is fail-fast: Load returns a ConfigurationError-family sentinel
// before the system can serve with an invalid retrieval setup. A dimension or
// threshold mistake here would silently produce wrong answers, so every knob
// is range-checked in validation.go.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration failures. All of them are fatal at
// startup; none are retryable.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates the selected provider's API key
	// environment variable is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is invalid or
	// inconsistent with the vector index schema.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunking indicates chunk size/overlap values that cannot
	// produce a covering sequence of chunks.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidThreshold indicates the fallback threshold is outside [0,1].
	ErrInvalidThreshold = errors.New("invalid fallback threshold")

	// ErrInvalidGapPenalty indicates the ambiguity gap penalty is outside [0,1].
	ErrInvalidGapPenalty = errors.New("invalid ambiguity gap penalty")

	// ErrInvalidTemperature indicates the generation temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidIndexBackend indicates an unknown vector index backend.
	ErrInvalidIndexBackend = errors.New("invalid index backend")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidCrawler indicates crawler limits are out of range.
	ErrInvalidCrawler = errors.New("invalid crawler configuration")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Vector index backend identifiers used in Config.IndexBackend.
const (
	IndexBackendPostgres = "postgres"
	IndexBackendMemory   = "memory"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions, which is
	// what the chunks table schema uses.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbeddingDimension matches the vector(768) column in
	// db/migrations.
	DefaultEmbeddingDimension = 768

	// DefaultFallbackThreshold is the confidence below which a query is
	// answered with the fallback message instead of grounded generation.
	// Treat as a calibration parameter; validate against a labeled query
	// set before changing in production.
	DefaultFallbackThreshold = 0.3
)

// CrawlerConfig holds support-site crawler settings.
type CrawlerConfig struct {
	// MaxPages caps the number of pages fetched per crawl (default: 200)
	MaxPages int `mapstructure:"max_pages" json:"max_pages"`
	// Parallelism is max concurrent requests per domain (default: 2)
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	// DelayMs is delay between requests in milliseconds (default: 1000)
	DelayMs int `mapstructure:"delay_ms" json:"delay_ms"`
	// TimeoutMs is the per-request timeout in milliseconds (default: 30000)
	TimeoutMs int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// TelemetryConfig holds optional OTLP trace export settings.
// Traces are exported to a local collector over OTLP HTTP; the collector
// handles authentication and forwarding.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Embedding configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Retrieval configuration
	ChunkSize           int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap        int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK                int     `mapstructure:"top_k" json:"top_k"`
	FallbackThreshold   float64 `mapstructure:"fallback_threshold" json:"fallback_threshold"`
	AmbiguityGapPenalty float64 `mapstructure:"ambiguity_gap_penalty" json:"ambiguity_gap_penalty"`

	// Vector index backend: "postgres" (default) or "memory"
	IndexBackend string `mapstructure:"index_backend" json:"index_backend"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // never logged
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler" json:"crawler"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".askcorpus")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	// Low temperature keeps answers close to the retrieved context.
	v.SetDefault("temperature", 0.1)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Embedding defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	// Retrieval defaults (chunk sizes follow the original corpus tuning:
	// 1000-character chunks with 200-character overlap)
	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("top_k", 10)
	v.SetDefault("fallback_threshold", DefaultFallbackThreshold)
	v.SetDefault("ambiguity_gap_penalty", 0.1)

	// Index backend
	v.SetDefault("index_backend", IndexBackendPostgres)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "askcorpus")
	v.SetDefault("postgres_password", "askcorpus_dev_password")
	v.SetDefault("postgres_db_name", "askcorpus")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Crawler defaults
	v.SetDefault("crawler.max_pages", 200)
	v.SetDefault("crawler.parallelism", 2)
	v.SetDefault("crawler.delay_ms", 1000)
	v.SetDefault("crawler.timeout_ms", 30000)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "askcorpus")
	v.SetDefault("telemetry.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
//
// GEMINI_API_KEY / OPENAI_API_KEY are read directly by the Genkit provider
// plugins, not via viper; Validate checks their presence per provider.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ASKCORPUS_PROVIDER")
	mustBind("model_name", "ASKCORPUS_MODEL_NAME")
	mustBind("ollama_host", "ASKCORPUS_OLLAMA_HOST")
	mustBind("embedder_model", "ASKCORPUS_EMBEDDER_MODEL")
	mustBind("index_backend", "ASKCORPUS_INDEX_BACKEND")
	mustBind("fallback_threshold", "ASKCORPUS_FALLBACK_THRESHOLD")
	mustBind("top_k", "ASKCORPUS_TOP_K")
	mustBind("telemetry.enabled", "ASKCORPUS_TELEMETRY_ENABLED")
	mustBind("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}
