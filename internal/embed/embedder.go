// Package embed maps text to fixed-dimension dense vectors.
//
// The Embedder interface is the single seam between the retrieval core and
// the concrete embedding provider; no other package may depend on the
// provider. Queries and chunks go through the same embedder so they live in
// the same vector space.
package embed

import (
	"context"
	"errors"
)

// ErrEmbedding indicates a provider failure. Terminal for the affected
// ingestion or query call; the caller may retry with backoff.
var ErrEmbedding = errors.New("embedding failed")

// ErrDimensionMismatch indicates the provider returned vectors whose
// dimension does not match the configured index dimension. This is a fatal
// configuration error, not a retryable one.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder maps texts to vectors of a fixed dimension.
//
// Embed returns one vector per input text, in input order — implementations
// must never reorder or drop entries. Blocking implementations must honor
// ctx cancellation.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
