// Package index stores chunk embeddings with denormalized document metadata
// and serves nearest-neighbor search.
//
// Two implementations share one contract: Memory for tests and local
// development, Postgres (pgvector) for production. Both normalize cosine
// similarity to [0,1], where 1 means an identical vector and 0 a maximally
// dissimilar one, so downstream thresholding never depends on the backend's
// native metric. Ties are broken by ascending chunk ID, which keeps
// retrieval deterministic for testing.
//
// Writes are serialized per document: ReplaceDocument is atomic from a
// reader's perspective, so a concurrent search sees either the fully old or
// the fully new entry set for that document, never a mix.
package index

import (
	"context"
	"errors"
)

// ErrIndex indicates a storage failure. Terminal for the affected call.
var ErrIndex = errors.New("index failure")

// ErrDimensionMismatch indicates a vector whose dimension does not match the
// index schema. Configuration error, not retryable.
var ErrDimensionMismatch = errors.New("index dimension mismatch")

// Entry pairs a chunk with its embedding and the denormalized document
// metadata needed to answer without a join back to a document store.
// Entries are immutable; re-ingestion of the owning document replaces them.
type Entry struct {
	ChunkID    string // "<docID>:<seq>", unique across the corpus
	DocumentID string
	Locator    string // source path or URL of the owning document
	SourceType string // "pdf" or "web"
	Title      string
	Seq        int    // chunk position within the document
	Content    string // chunk text
	Start      int    // rune offset into the parent text, inclusive
	End        int    // rune offset, exclusive
	Vector     []float32
}

// Hit is a search result: an entry plus its normalized similarity.
// The Vector field of the embedded entry is not populated on reads.
type Hit struct {
	Entry      Entry
	Similarity float64 // in [0,1], 1 = identical vector
}

// DocumentInfo summarizes one ingested document.
type DocumentInfo struct {
	DocumentID string
	Locator    string
	SourceType string
	Title      string
	ChunkCount int
}

// Index is the vector storage contract shared by all backends.
//
// Implementations must tolerate concurrent reads during writes without
// exposing partially-written entries.
type Index interface {
	// Upsert inserts entries, replacing any existing entry with the same
	// chunk ID.
	Upsert(ctx context.Context, entries []Entry) error

	// ReplaceDocument atomically swaps all entries of a document for the
	// given set. Passing no entries is equivalent to DeleteDocument.
	ReplaceDocument(ctx context.Context, documentID string, entries []Entry) error

	// DeleteDocument removes every entry belonging to the document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns up to k entries by descending similarity, ties broken
	// by ascending chunk ID, without duplicate chunk IDs. k larger than the
	// index is clamped, not an error.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Documents lists ingested documents in stable (document ID) order.
	Documents(ctx context.Context) ([]DocumentInfo, error)
}
