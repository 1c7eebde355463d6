package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/askcorpus/askcorpus/db"
	"github.com/askcorpus/askcorpus/internal/chunk"
	"github.com/askcorpus/askcorpus/internal/config"
	"github.com/askcorpus/askcorpus/internal/crawler"
	"github.com/askcorpus/askcorpus/internal/embed"
	"github.com/askcorpus/askcorpus/internal/extract"
	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
	"github.com/askcorpus/askcorpus/internal/rag"
)

// embedRatePerSecond throttles embedding calls; provider free tiers sit
// well under this.
const embedRatePerSecond = 5

// Setup builds the application from validated configuration. On error,
// everything already initialized is torn down.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	provider := provideAIEmbedder(g, cfg)
	if provider == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	embedder, err := embed.NewGenkitEmbedder(provider, cfg.EmbeddingDimension, logger,
		embed.WithRateLimit(embedRatePerSecond, 1))
	if err != nil {
		return nil, err
	}
	a.Embedder = embedder

	idx, pool, dbCleanup, err := provideIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx
	a.DBPool = pool
	a.dbCleanup = dbCleanup

	service, err := provideService(a, g)
	if err != nil {
		return nil, err
	}
	a.Service = service

	a.Crawler = crawler.New(crawler.Options{
		MaxPages:    cfg.Crawler.MaxPages,
		Parallelism: cfg.Crawler.Parallelism,
		Delay:       time.Duration(cfg.Crawler.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Crawler.TimeoutMs) * time.Millisecond,
	}, logger)

	return a, nil
}

// provideOtelShutdown wires OTLP HTTP trace export into Genkit's tracer
// provider. Runs before provideGenkit so spans from initialization are
// captured. A broken exporter disables tracing but never fails startup.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	if !cfg.Telemetry.Enabled {
		return func() {}
	}

	if cfg.Telemetry.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Telemetry.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Telemetry.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	logger.Debug("tracing enabled",
		"endpoint", cfg.Telemetry.Endpoint,
		"service", cfg.Telemetry.ServiceName)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; models register explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
	}

	logger.Info("genkit initialized", "provider", cfg.Provider, "model", cfg.ModelName)
	return g, nil
}

// provideAIEmbedder looks up the embedder registered by the provider plugin.
func provideAIEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		// Keyed by server address, registered in provideGenkit.
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// ModelName returns the provider-qualified model name for generation.
func ModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	case config.ProviderOpenAI:
		return "openai/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}

// provideIndex selects the vector index backend. The postgres backend runs
// migrations and owns a connection pool; the memory backend is for
// development and tests.
func provideIndex(ctx context.Context, cfg *config.Config, logger log.Logger) (index.Index, *pgxpool.Pool, func(), error) {
	if cfg.IndexBackend == config.IndexBackendMemory {
		idx, err := index.NewMemory(cfg.EmbeddingDimension, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("using in-memory vector index", "dimension", cfg.EmbeddingDimension)
		return idx, nil, nil, nil
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	idx, err := index.NewPostgres(pool, cfg.EmbeddingDimension, logger)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	logger.Info("using postgres vector index",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
		"dimension", cfg.EmbeddingDimension)
	return idx, pool, pool.Close, nil
}

// provideService assembles the question-answering pipeline.
func provideService(a *App, g *genkit.Genkit) (*rag.Service, error) {
	cfg := a.Config

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	retriever, err := rag.NewRetriever(a.Embedder, a.Index, cfg.TopK, a.Logger)
	if err != nil {
		return nil, err
	}

	gate, err := rag.NewGate(cfg.FallbackThreshold, cfg.AmbiguityGapPenalty)
	if err != nil {
		return nil, err
	}

	synthesizer, err := rag.NewSynthesizer(g, ModelName(cfg), cfg.Temperature, a.Logger)
	if err != nil {
		return nil, err
	}

	extractor := extract.NewExtractor(&http.Client{
		Timeout: time.Duration(cfg.Crawler.TimeoutMs) * time.Millisecond,
	}, a.Logger)

	return rag.NewService(rag.ServiceParams{
		Extractor: extractor,
		Splitter:  splitter,
		Embedder:  a.Embedder,
		Index:     a.Index,
		Retriever: retriever,
		Gate:      gate,
		Generator: synthesizer,
		Logger:    a.Logger,
	})
}
