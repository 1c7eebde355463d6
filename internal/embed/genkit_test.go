package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/askcorpus/askcorpus/internal/log"
)

// fakeProvider implements ai.Embedder for adapter tests.
type fakeProvider struct {
	dim        int
	embedErr   error
	shortBy    int           // drop this many embeddings from each response
	wrongDim   int           // when non-zero, return vectors of this dimension
	delay      time.Duration // per-call processing delay
	calls      int
	batchSizes []int
}

func (f *fakeProvider) Name() string { return "fake-embedder" }

func (f *fakeProvider) Register(r api.Registry) {}

func (f *fakeProvider) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	f.calls++
	f.batchSizes = append(f.batchSizes, len(req.Input))

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}

	dim := f.dim
	if f.wrongDim != 0 {
		dim = f.wrongDim
	}

	n := len(req.Input) - f.shortBy
	embeddings := make([]*ai.Embedding, 0, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		embeddings = append(embeddings, &ai.Embedding{Embedding: vec})
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestGenkitEmbedder_OrderAndCount(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	e, err := NewGenkitEmbedder(provider, 4, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	texts := []string{"first", "second", "third"}
	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if v[0] != float32(i+1) {
			t.Errorf("vector %d out of order: lead value %f", i, v[0])
		}
	}
}

func TestGenkitEmbedder_EmptyInput(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	e, _ := NewGenkitEmbedder(provider, 4, log.NewNop())

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("expected (nil, nil) for empty input, got (%v, %v)", vectors, err)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times for empty input", provider.calls)
	}
}

func TestGenkitEmbedder_Batching(t *testing.T) {
	provider := &fakeProvider{dim: 2}
	e, _ := NewGenkitEmbedder(provider, 2, log.NewNop(), WithBatchSize(3))

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = "chunk"
	}

	vectors, err := e.Embed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 8 {
		t.Errorf("got %d vectors, want 8", len(vectors))
	}
	want := []int{3, 3, 2}
	if len(provider.batchSizes) != len(want) {
		t.Fatalf("batch sizes %v, want %v", provider.batchSizes, want)
	}
	for i := range want {
		if provider.batchSizes[i] != want[i] {
			t.Errorf("batch %d size %d, want %d", i, provider.batchSizes[i], want[i])
		}
	}
}

func TestGenkitEmbedder_ProviderError(t *testing.T) {
	provider := &fakeProvider{dim: 4, embedErr: errors.New("quota exceeded")}
	e, _ := NewGenkitEmbedder(provider, 4, log.NewNop())

	_, err := e.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding, got %v", err)
	}
}

func TestGenkitEmbedder_DimensionMismatch(t *testing.T) {
	provider := &fakeProvider{dim: 4, wrongDim: 768}
	e, _ := NewGenkitEmbedder(provider, 4, log.NewNop())

	_, err := e.Embed(context.Background(), []string{"text"})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	// A dimension mismatch must not look retryable.
	if errors.Is(err, ErrEmbedding) {
		t.Errorf("dimension mismatch must not wrap ErrEmbedding")
	}
}

func TestGenkitEmbedder_MiscountedResponse(t *testing.T) {
	provider := &fakeProvider{dim: 4, shortBy: 1}
	e, _ := NewGenkitEmbedder(provider, 4, log.NewNop())

	_, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding for dropped entries, got %v", err)
	}
}

func TestGenkitEmbedder_ContextTimeout(t *testing.T) {
	provider := &fakeProvider{dim: 4, delay: 200 * time.Millisecond}
	e, _ := NewGenkitEmbedder(provider, 4, log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := e.Embed(ctx, []string{"slow"})
	if !errors.Is(err, ErrEmbedding) {
		t.Errorf("expected ErrEmbedding on timeout, got %v", err)
	}
}

func TestGenkitEmbedder_RejectsNilProvider(t *testing.T) {
	if _, err := NewGenkitEmbedder(nil, 4, log.NewNop()); err == nil {
		t.Error("expected error for nil provider")
	}
}

func TestGenkitEmbedder_RejectsBadDimension(t *testing.T) {
	provider := &fakeProvider{dim: 4}
	if _, err := NewGenkitEmbedder(provider, 0, log.NewNop()); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for zero dimension, got %v", err)
	}
}
