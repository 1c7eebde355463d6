// Package extract turns heterogeneous corpus sources (support PDFs, web
// pages) into plain text plus structural metadata.
//
// Extraction failures are per-document: callers report them and continue
// with the rest of the corpus. All failures wrap ErrExtraction so ingestion
// can classify them with errors.Is.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/askcorpus/askcorpus/internal/log"
)

// ErrExtraction indicates an unreadable or corrupt source. Per-document,
// never fatal for the rest of an ingestion batch.
var ErrExtraction = errors.New("extraction failed")

// SourceType identifies the kind of corpus source behind a locator.
type SourceType string

const (
	// SourceTypePDF is a local PDF file, locator is a filesystem path.
	SourceTypePDF SourceType = "pdf"

	// SourceTypeWeb is a support web page, locator is a URL.
	SourceTypeWeb SourceType = "web"
)

// Valid reports whether st is a known source type.
func (st SourceType) Valid() bool {
	return st == SourceTypePDF || st == SourceTypeWeb
}

// Result is the extracted content of a single source.
type Result struct {
	Text     string            // cleaned plain text
	Title    string            // document title when the source carries one
	Metadata map[string]string // structural metadata (page count, headings)
}

// Extractor dispatches extraction by source type. Safe for concurrent use.
type Extractor struct {
	client *http.Client
	logger log.Logger
}

// NewExtractor creates an Extractor. A nil client gets a default with a
// 30-second timeout; a nil logger discards output.
func NewExtractor(client *http.Client, logger log.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Extractor{client: client, logger: logger}
}

// Extract returns the plain text and metadata of the source behind locator.
// Reads the source; no other side effects.
func (e *Extractor) Extract(ctx context.Context, locator string, sourceType SourceType) (Result, error) {
	switch sourceType {
	case SourceTypePDF:
		return e.extractPDF(locator)
	case SourceTypeWeb:
		return e.extractWeb(ctx, locator)
	default:
		return Result{}, fmt.Errorf("%w: unknown source type %q for %s", ErrExtraction, sourceType, locator)
	}
}
