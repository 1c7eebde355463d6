package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/askcorpus/askcorpus/internal/log"
)

// Memory is an in-process Index backed by a map under a RWMutex. Search is
// brute-force cosine over every entry, fine for test corpora and local
// development, not for large indexes.
type Memory struct {
	mu        sync.RWMutex
	entries   map[string]Entry // keyed by chunk ID
	dimension int
	logger    log.Logger
}

// NewMemory creates an empty in-memory index for vectors of the given
// dimension.
func NewMemory(dimension int, logger log.Logger) (*Memory, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d must be positive", ErrDimensionMismatch, dimension)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Memory{
		entries:   make(map[string]Entry),
		dimension: dimension,
		logger:    logger,
	}, nil
}

// Upsert inserts entries under the write lock, replacing same-ID entries.
func (m *Memory) Upsert(ctx context.Context, entries []Entry) error {
	if err := m.validate(entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(entries)
	return nil
}

// ReplaceDocument swaps a document's entries under a single write lock hold,
// so concurrent readers see the old set or the new set, never a mix.
func (m *Memory) ReplaceDocument(ctx context.Context, documentID string, entries []Entry) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document ID", ErrIndex)
	}
	if err := m.validate(entries); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.deleteDocumentLocked(documentID)
	m.insertLocked(entries)

	m.logger.Debug("document replaced",
		"document_id", documentID,
		"removed", removed,
		"inserted", len(entries))
	return nil
}

// DeleteDocument removes all entries of the document. Unknown documents are
// not an error.
func (m *Memory) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document ID", ErrIndex)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteDocumentLocked(documentID)
	return nil
}

// Search scores every entry by normalized cosine similarity and returns the
// top k, descending, ties broken by ascending chunk ID.
func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(vector), m.dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrIndex, k)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.entries))
	for _, entry := range m.entries {
		e := entry
		e.Vector = nil
		hits = append(hits, Hit{Entry: e, Similarity: normalizedCosine(vector, entry.Vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Entry.ChunkID < hits[j].Entry.ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Documents lists stored documents ordered by document ID.
func (m *Memory) Documents(ctx context.Context) ([]DocumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := make(map[string]*DocumentInfo)
	for _, entry := range m.entries {
		info, ok := byID[entry.DocumentID]
		if !ok {
			info = &DocumentInfo{
				DocumentID: entry.DocumentID,
				Locator:    entry.Locator,
				SourceType: entry.SourceType,
				Title:      entry.Title,
			}
			byID[entry.DocumentID] = info
		}
		info.ChunkCount++
	}

	docs := make([]DocumentInfo, 0, len(byID))
	for _, info := range byID {
		docs = append(docs, *info)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID < docs[j].DocumentID })
	return docs, nil
}

func (m *Memory) validate(entries []Entry) error {
	for _, entry := range entries {
		if entry.ChunkID == "" || entry.DocumentID == "" {
			return fmt.Errorf("%w: entry missing chunk or document ID", ErrIndex)
		}
		if len(entry.Vector) != m.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, index expects %d",
				ErrDimensionMismatch, entry.ChunkID, len(entry.Vector), m.dimension)
		}
	}
	return nil
}

// insertLocked copies vectors so callers cannot mutate stored entries.
func (m *Memory) insertLocked(entries []Entry) {
	for _, entry := range entries {
		vec := make([]float32, len(entry.Vector))
		copy(vec, entry.Vector)
		entry.Vector = vec
		m.entries[entry.ChunkID] = entry
	}
}

func (m *Memory) deleteDocumentLocked(documentID string) int {
	removed := 0
	for id, entry := range m.entries {
		if entry.DocumentID == documentID {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// normalizedCosine maps cosine similarity from [-1,1] to [0,1]. A zero
// vector on either side scores 0.
func normalizedCosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return clamp01((cos + 1) / 2)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
