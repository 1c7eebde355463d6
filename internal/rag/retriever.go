package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/askcorpus/askcorpus/internal/embed"
	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
)

// maxTopK caps how many chunks a single query may pull regardless of the
// requested K.
const maxTopK = 100

// Retriever embeds a query and finds its nearest chunks in the index.
type Retriever struct {
	embedder embed.Embedder
	idx      index.Index
	topK     int
	logger   log.Logger
}

// NewRetriever creates a Retriever with the given default K.
func NewRetriever(embedder embed.Embedder, idx index.Index, topK int, logger log.Logger) (*Retriever, error) {
	if embedder == nil || idx == nil {
		return nil, fmt.Errorf("%w: embedder and index are required", ErrRetrieval)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: default top K %d must be at least 1", ErrRetrieval, topK)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{embedder: embedder, idx: idx, topK: clampK(topK), logger: logger}, nil
}

// Retrieve returns up to k chunks by descending similarity. k <= 0 selects
// the configured default; oversized k is clamped, not rejected. Results
// carry no duplicate chunk IDs and every similarity lies in [0,1].
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]index.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuestion
	}
	if k <= 0 {
		k = r.topK
	}
	k = clampK(k)

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d query vectors", ErrRetrieval, len(vectors))
	}

	hits, err := r.idx.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	hits = dedupeHits(hits)
	r.logger.Debug("retrieved chunks", "k", k, "hits", len(hits))
	return hits, nil
}

func clampK(k int) int {
	if k > maxTopK {
		return maxTopK
	}
	return k
}

// dedupeHits drops repeated chunk IDs, keeping the first (highest ranked)
// occurrence. Backends already guarantee uniqueness; this holds the contract
// even if one does not.
func dedupeHits(hits []index.Hit) []index.Hit {
	seen := make(map[string]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if seen[h.Entry.ChunkID] {
			continue
		}
		seen[h.Entry.ChunkID] = true
		out = append(out, h)
	}
	return out
}
