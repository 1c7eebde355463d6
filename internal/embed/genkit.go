package embed

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/askcorpus/askcorpus/internal/log"
)

// defaultBatchSize bounds texts per provider call. Embedding APIs cap batch
// sizes well below this; 32 keeps requests small enough for all three
// supported providers.
const defaultBatchSize = 32

// GenkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface.
// It batches inputs, rate-limits provider calls, and enforces the configured
// vector dimension on every response.
type GenkitEmbedder struct {
	embedder  ai.Embedder
	dimension int
	batchSize int
	limiter   *rate.Limiter
	logger    log.Logger
}

// GenkitOption configures a GenkitEmbedder.
type GenkitOption func(*GenkitEmbedder)

// WithBatchSize overrides the per-call batch size.
func WithBatchSize(n int) GenkitOption {
	return func(g *GenkitEmbedder) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithRateLimit throttles provider calls to r requests per second with the
// given burst. Zero r disables throttling.
func WithRateLimit(r float64, burst int) GenkitOption {
	return func(g *GenkitEmbedder) {
		if r > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// NewGenkitEmbedder wraps a Genkit embedder. dimension must match the vector
// index schema; every returned vector is checked against it.
func NewGenkitEmbedder(embedder ai.Embedder, dimension int, logger log.Logger, opts ...GenkitOption) (*GenkitEmbedder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d must be positive", ErrDimensionMismatch, dimension)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	g := &GenkitEmbedder{
		embedder:  embedder,
		dimension: dimension,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dimension returns the configured vector dimension.
func (g *GenkitEmbedder) Dimension() int { return g.dimension }

// Embed returns one vector per text, in order. A response with the wrong
// count or dimension is rejected rather than silently truncated.
func (g *GenkitEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (g *GenkitEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrEmbedding, err)
		}
	}

	input := make([]*ai.Document, len(texts))
	for i, text := range texts {
		input[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbedding, i)
		}
		if len(emb.Embedding) != g.dimension {
			return nil, fmt.Errorf("%w: provider returned %d dimensions, index expects %d",
				ErrDimensionMismatch, len(emb.Embedding), g.dimension)
		}
		vectors[i] = emb.Embedding
	}

	return vectors, nil
}
