package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/askcorpus/askcorpus/internal/chunk"
	"github.com/askcorpus/askcorpus/internal/embed"
	"github.com/askcorpus/askcorpus/internal/extract"
	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
)

// ingestConcurrency bounds parallel document ingestion in IngestAll.
// Extraction is I/O bound; embedding calls are already rate-limited.
const ingestConcurrency = 4

// Service wires the full pipeline: extract, chunk, embed, store, retrieve,
// gate, synthesize.
type Service struct {
	extractor *extract.Extractor
	splitter  *chunk.Splitter
	embedder  embed.Embedder
	idx       index.Index
	retriever *Retriever
	gate      Gate
	generator Generator
	logger    log.Logger
}

// ServiceParams collects Service dependencies.
type ServiceParams struct {
	Extractor *extract.Extractor
	Splitter  *chunk.Splitter
	Embedder  embed.Embedder
	Index     index.Index
	Retriever *Retriever
	Gate      Gate
	Generator Generator
	Logger    log.Logger
}

// NewService validates and assembles the pipeline.
func NewService(p ServiceParams) (*Service, error) {
	if p.Extractor == nil || p.Splitter == nil || p.Embedder == nil ||
		p.Index == nil || p.Retriever == nil || p.Generator == nil {
		return nil, fmt.Errorf("service: missing dependency")
	}
	if p.Logger == nil {
		p.Logger = log.NewNop()
	}
	return &Service{
		extractor: p.Extractor,
		splitter:  p.Splitter,
		embedder:  p.Embedder,
		idx:       p.Index,
		retriever: p.Retriever,
		gate:      p.Gate,
		generator: p.Generator,
		logger:    p.Logger,
	}, nil
}

// Ingest extracts, chunks, embeds, and stores one document, atomically
// replacing any previous version of the same locator.
func (s *Service) Ingest(ctx context.Context, ref DocumentRef) (*IngestResult, error) {
	docID := DocumentID(ref.Locator)
	logger := s.logger.With("document_id", docID, "locator", ref.Locator)

	res, err := s.extractor.Extract(ctx, ref.Locator, extract.SourceType(ref.SourceType))
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", ref.Locator, err)
	}

	chunks := s.splitter.Split(res.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingest %s: %w: no text survived extraction", ref.Locator, extract.ErrExtraction)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", ref.Locator, err)
	}

	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{
			ChunkID:    ChunkID(docID, c.Index),
			DocumentID: docID,
			Locator:    ref.Locator,
			SourceType: ref.SourceType,
			Title:      res.Title,
			Seq:        c.Index,
			Content:    c.Text,
			Start:      c.Start,
			End:        c.End,
			Vector:     vectors[i],
		}
	}

	if err := s.idx.ReplaceDocument(ctx, docID, entries); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", ref.Locator, err)
	}

	logger.Info("document ingested", "chunks", len(entries), "title", res.Title)
	return &IngestResult{DocumentID: docID, Locator: ref.Locator, Chunks: len(entries)}, nil
}

// IngestAll ingests documents concurrently. A document that fails
// extraction is recorded in the report and skipped; embedding and index
// failures abort the batch because every remaining document would hit the
// same broken dependency.
func (s *Service) IngestAll(ctx context.Context, refs []DocumentRef) (*Report, error) {
	batchID := uuid.NewString()
	logger := s.logger.With("batch_id", batchID)
	logger.Info("batch ingestion started", "documents", len(refs))

	var mu sync.Mutex
	report := &Report{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)

	for _, ref := range refs {
		g.Go(func() error {
			result, err := s.Ingest(ctx, ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, extract.ErrExtraction) {
					logger.Warn("document skipped", "locator", ref.Locator, "error", err)
					report.Failures = append(report.Failures, IngestFailure{
						Locator: ref.Locator,
						Reason:  err.Error(),
					})
					return nil
				}
				return err
			}
			report.Ingested = append(report.Ingested, *result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, err)
	}

	sort.Slice(report.Ingested, func(i, j int) bool {
		return report.Ingested[i].Locator < report.Ingested[j].Locator
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Locator < report.Failures[j].Locator
	})

	logger.Info("batch ingestion finished",
		"ingested", len(report.Ingested),
		"failed", len(report.Failures))
	return report, nil
}

// QueryOption overrides per-query parameters.
type QueryOption func(*queryOptions)

type queryOptions struct {
	topK      int
	threshold float64
	hasTau    bool
}

// WithTopK overrides how many chunks the query retrieves.
func WithTopK(k int) QueryOption {
	return func(o *queryOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithThreshold overrides the fallback threshold for one query.
func WithThreshold(tau float64) QueryOption {
	return func(o *queryOptions) {
		if tau >= 0 && tau <= 1 {
			o.threshold = tau
			o.hasTau = true
		}
	}
}

// Query answers a question from the corpus. Low confidence yields the
// fallback answer with no sources; infrastructure failures return an error
// and never a fallback.
func (s *Service) Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	queryID := uuid.NewString()
	logger := s.logger.With("query_id", queryID)

	hits, err := s.retriever.Retrieve(ctx, question, o.topK)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	gate := s.gate
	if o.hasTau {
		gate.Threshold = o.threshold
	}
	decision := gate.Score(hits)

	if decision.Fallback {
		logger.Info("fallback answer",
			"confidence", decision.Confidence,
			"threshold", gate.Threshold,
			"hits", len(hits))
		return &Answer{
			Answer:     FallbackAnswer,
			Confidence: decision.Confidence,
			Sources:    []Source{},
			IsFallback: true,
		}, nil
	}

	text, err := s.generator.Generate(ctx, question, hits)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	logger.Info("question answered",
		"confidence", decision.Confidence,
		"hits", len(hits),
		"sources", len(hits))
	return &Answer{
		Answer:     text,
		Confidence: decision.Confidence,
		Sources:    collectSources(hits),
		IsFallback: false,
	}, nil
}

// Documents lists the ingested corpus.
func (s *Service) Documents(ctx context.Context) ([]index.DocumentInfo, error) {
	return s.idx.Documents(ctx)
}

// Delete removes a document by locator.
func (s *Service) Delete(ctx context.Context, locator string) error {
	return s.idx.DeleteDocument(ctx, DocumentID(locator))
}

// collectSources folds chunk hits into per-document sources, keeping each
// document's best similarity, ordered best first.
func collectSources(hits []index.Hit) []Source {
	byDoc := make(map[string]*Source)
	var order []string
	for _, h := range hits {
		if src, ok := byDoc[h.Entry.DocumentID]; ok {
			if h.Similarity > src.Similarity {
				src.Similarity = h.Similarity
			}
			continue
		}
		byDoc[h.Entry.DocumentID] = &Source{
			Locator:    h.Entry.Locator,
			Title:      h.Entry.Title,
			Similarity: h.Similarity,
		}
		order = append(order, h.Entry.DocumentID)
	}

	sources := make([]Source, 0, len(order))
	for _, docID := range order {
		sources = append(sources, *byDoc[docID])
	}
	return sources
}
