package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Mock is a deterministic in-process Embedder for tests and the memory
// backend in development. Texts sharing words produce similar vectors, so
// cosine retrieval behaves plausibly without a provider.
//
// Fixed vectors can be pinned per exact text to make retrieval scores
// fully controlled in tests.
type Mock struct {
	Dim    int
	Fixed  map[string][]float32 // exact-text overrides, must have length Dim
	Err    error                // returned by every Embed call when set
	Calls  int                  // number of Embed invocations
	Hanged bool                 // when true, Embed blocks until ctx is done
}

// NewMock creates a Mock embedder with the given dimension.
func NewMock(dim int) *Mock {
	return &Mock{Dim: dim}
}

// Dimension returns the mock's vector dimension.
func (m *Mock) Dimension() int { return m.Dim }

// Embed returns one deterministic vector per text, in order.
func (m *Mock) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls++

	if m.Hanged {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.Fixed[text]; ok {
			out[i] = v
			continue
		}
		out[i] = m.hashVector(text)
	}
	return out, nil
}

// hashVector buckets word hashes into the vector and L2-normalizes, a tiny
// bag-of-words embedding.
func (m *Mock) hashVector(text string) []float32 {
	vec := make([]float32, m.Dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%m.Dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
