package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// FallbackAnswer is returned verbatim when confidence falls below the
// threshold. Callers compare IsFallback, never this string.
const FallbackAnswer = "I Don't know"

// ErrRetrieval indicates the retrieval stage failed. Terminal for the query.
var ErrRetrieval = errors.New("retrieval failure")

// ErrSynthesis indicates answer generation failed after successful
// retrieval. Terminal for the query, never converted to a fallback.
var ErrSynthesis = errors.New("synthesis failure")

// ErrEmptyQuestion is returned for questions that are empty or whitespace.
var ErrEmptyQuestion = errors.New("question is empty")

// Answer is the result of one query.
type Answer struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"` // in [0,1]
	Sources    []Source `json:"sources"`    // empty when IsFallback
	IsFallback bool     `json:"is_fallback"`
}

// Source attributes part of an answer to a document.
type Source struct {
	Locator    string  `json:"locator"`
	Title      string  `json:"title,omitempty"`
	Similarity float64 `json:"similarity"` // best chunk similarity for this document
}

// IngestResult reports one successfully ingested document.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Locator    string `json:"locator"`
	Chunks     int    `json:"chunks"`
}

// IngestFailure records a document skipped during batch ingestion.
type IngestFailure struct {
	Locator string `json:"locator"`
	Reason  string `json:"reason"`
}

// Report summarizes a batch ingestion. Per-document extraction failures are
// recorded here rather than aborting the batch.
type Report struct {
	Ingested []IngestResult  `json:"ingested"`
	Failures []IngestFailure `json:"failures"`
}

// DocumentRef names one document to ingest.
type DocumentRef struct {
	Locator    string
	SourceType string // "pdf" or "web"
}

// DocumentID derives the stable identifier for a locator. Re-ingesting the
// same locator always maps to the same document.
func DocumentID(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	return "doc_" + hex.EncodeToString(sum[:16])
}

// ChunkID names one chunk within a document.
func ChunkID(documentID string, seq int) string {
	return fmt.Sprintf("%s:%d", documentID, seq)
}
