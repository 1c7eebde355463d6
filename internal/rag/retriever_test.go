package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/askcorpus/askcorpus/internal/embed"
	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
)

func newTestRetriever(t *testing.T, dim, topK int) (*Retriever, *embed.Mock, *index.Memory) {
	t.Helper()
	emb := embed.NewMock(dim)
	idx, err := index.NewMemory(dim, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRetriever(emb, idx, topK, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return r, emb, idx
}

func TestNewRetriever_Validation(t *testing.T) {
	emb := embed.NewMock(2)
	idx, _ := index.NewMemory(2, log.NewNop())

	if _, err := NewRetriever(nil, idx, 5, log.NewNop()); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewRetriever(emb, nil, 5, log.NewNop()); err == nil {
		t.Error("expected error for nil index")
	}
	if _, err := NewRetriever(emb, idx, 0, log.NewNop()); err == nil {
		t.Error("expected error for zero top K")
	}
}

func TestRetriever_EmptyQuestion(t *testing.T) {
	r, _, _ := newTestRetriever(t, 2, 5)

	for _, q := range []string{"", "   ", "\n\t"} {
		if _, err := r.Retrieve(context.Background(), q, 0); !errors.Is(err, ErrEmptyQuestion) {
			t.Errorf("Retrieve(%q): got %v, want ErrEmptyQuestion", q, err)
		}
	}
}

func TestRetriever_DefaultAndExplicitK(t *testing.T) {
	r, emb, idx := newTestRetriever(t, 2, 2)
	ctx := context.Background()

	emb.Fixed = map[string][]float32{"query": {1, 0}}
	entries := make([]index.Entry, 5)
	for i := range entries {
		entries[i] = index.Entry{
			ChunkID:    ChunkID("doc_a", i),
			DocumentID: "doc_a",
			Seq:        i,
			Content:    "chunk",
			Vector:     []float32{1, 0},
		}
	}
	if err := idx.Upsert(ctx, entries); err != nil {
		t.Fatal(err)
	}

	hits, err := r.Retrieve(ctx, "query", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("default K: got %d hits, want 2", len(hits))
	}

	hits, err = r.Retrieve(ctx, "query", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 4 {
		t.Errorf("explicit K: got %d hits, want 4", len(hits))
	}

	// Oversized K clamps to the corpus, not an error.
	hits, err = r.Retrieve(ctx, "query", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 5 {
		t.Errorf("oversized K: got %d hits, want 5", len(hits))
	}
}

func TestRetriever_EmbedErrorPropagates(t *testing.T) {
	r, emb, _ := newTestRetriever(t, 2, 5)

	sentinel := errors.New("provider down")
	emb.Err = sentinel

	_, err := r.Retrieve(context.Background(), "query", 0)
	if !errors.Is(err, sentinel) {
		t.Errorf("got %v, want wrapped provider error", err)
	}
}

func TestDedupeHits(t *testing.T) {
	hits := []index.Hit{
		{Entry: index.Entry{ChunkID: "doc_a:0"}, Similarity: 0.9},
		{Entry: index.Entry{ChunkID: "doc_a:1"}, Similarity: 0.8},
		{Entry: index.Entry{ChunkID: "doc_a:0"}, Similarity: 0.7},
	}

	out := dedupeHits(hits)
	if len(out) != 2 {
		t.Fatalf("got %d hits, want 2", len(out))
	}
	if out[0].Similarity != 0.9 {
		t.Error("dedupe must keep the highest-ranked occurrence")
	}
}
