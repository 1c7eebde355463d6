package config

import (
	"fmt"
	"os"
	"strings"
)

// validSSLModes are the PostgreSQL SSL modes accepted by pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks all configuration values and returns the first violation.
// Called from Load; a non-nil error must prevent the system from serving.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (expected one of: gemini, ollama, openai)", ErrInvalidProvider, c.Provider)
	}

	// Provider plugins read their API keys from the environment at init;
	// check here so a missing key fails at startup, not mid-pipeline.
	// Ollama is local and needs no key.
	switch c.Provider {
	case ProviderGemini:
		if strings.TrimSpace(os.Getenv("GEMINI_API_KEY")) == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"  export GEMINI_API_KEY=your-api-key", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required\n"+
				"  export OPENAI_API_KEY=your-api-key", ErrMissingAPIKey)
		}
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: got %d, must be positive", ErrInvalidDimension, c.EmbeddingDimension)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: got %.2f, must be in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size %d must be positive", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap %d must not be negative", ErrInvalidChunking, c.ChunkOverlap)
	}
	// overlap >= size would make the chunker's step non-positive and the
	// chunk sequence non-terminating.
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be smaller than chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: got %d, must be in [1, 100]", ErrInvalidTopK, c.TopK)
	}

	if c.FallbackThreshold < 0 || c.FallbackThreshold > 1 {
		return fmt.Errorf("%w: got %.3f, must be in [0, 1]", ErrInvalidThreshold, c.FallbackThreshold)
	}

	if c.AmbiguityGapPenalty < 0 || c.AmbiguityGapPenalty > 1 {
		return fmt.Errorf("%w: got %.3f, must be in [0, 1]", ErrInvalidGapPenalty, c.AmbiguityGapPenalty)
	}

	switch c.IndexBackend {
	case IndexBackendPostgres, IndexBackendMemory:
	default:
		return fmt.Errorf("%w: %q (expected postgres or memory)", ErrInvalidIndexBackend, c.IndexBackend)
	}

	if c.IndexBackend == IndexBackendPostgres {
		if strings.TrimSpace(c.PostgresHost) == "" {
			return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: got %d, must be in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if strings.TrimSpace(c.PostgresDBName) == "" {
			return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
		}
		if !validSSLModes[c.PostgresSSLMode] {
			return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
		}
	}

	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("%w: max_pages %d must be positive", ErrInvalidCrawler, c.Crawler.MaxPages)
	}
	if c.Crawler.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism %d must be positive", ErrInvalidCrawler, c.Crawler.Parallelism)
	}
	if c.Crawler.DelayMs < 0 || c.Crawler.TimeoutMs <= 0 {
		return fmt.Errorf("%w: delay_ms %d / timeout_ms %d out of range",
			ErrInvalidCrawler, c.Crawler.DelayMs, c.Crawler.TimeoutMs)
	}

	return nil
}
