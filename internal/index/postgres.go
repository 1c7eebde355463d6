package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/askcorpus/askcorpus/internal/log"
)

// Postgres is the production Index backed by pgvector. Cosine distance from
// the <=> operator lies in [0,2]; similarity is normalized as 1 - distance/2
// so results match the Memory backend bit for bit in meaning.
//
// ReplaceDocument runs delete and insert in one transaction, which gives
// readers the same old-or-new atomicity the in-memory backend gets from its
// write lock.
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
	logger    log.Logger
}

// NewPostgres wraps a connection pool. The schema must already be migrated
// and its vector column width must equal dimension.
func NewPostgres(pool *pgxpool.Pool, dimension int, logger log.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: connection pool is required", ErrIndex)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d must be positive", ErrDimensionMismatch, dimension)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{pool: pool, dimension: dimension, logger: logger}, nil
}

const upsertChunkSQL = `
	INSERT INTO chunks (chunk_id, document_id, locator, source_type, title, seq, content, start_off, end_off, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (chunk_id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		locator     = EXCLUDED.locator,
		source_type = EXCLUDED.source_type,
		title       = EXCLUDED.title,
		seq         = EXCLUDED.seq,
		content     = EXCLUDED.content,
		start_off   = EXCLUDED.start_off,
		end_off     = EXCLUDED.end_off,
		embedding   = EXCLUDED.embedding`

// Upsert writes entries in one batch round trip.
func (p *Postgres) Upsert(ctx context.Context, entries []Entry) error {
	if err := p.validate(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	batch := queueInserts(&pgx.Batch{}, entries)
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: upsert %d entries: %v", ErrIndex, len(entries), err)
	}
	return nil
}

// ReplaceDocument deletes and reinserts a document's entries transactionally.
func (p *Postgres) ReplaceDocument(ctx context.Context, documentID string, entries []Entry) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document ID", ErrIndex)
	}
	if err := p.validate(entries); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin replace: %v", ErrIndex, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", ErrIndex, documentID, err)
	}

	if len(entries) > 0 {
		batch := queueInserts(&pgx.Batch{}, entries)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%w: insert document %s: %v", ErrIndex, documentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit replace: %v", ErrIndex, err)
	}

	p.logger.Debug("document replaced",
		"document_id", documentID,
		"removed", tag.RowsAffected(),
		"inserted", len(entries))
	return nil
}

// DeleteDocument removes all entries of the document.
func (p *Postgres) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document ID", ErrIndex)
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("%w: delete document %s: %v", ErrIndex, documentID, err)
	}
	return nil
}

const searchSQL = `
	SELECT chunk_id, document_id, locator, source_type, title, seq, content, start_off, end_off,
	       embedding <=> $1 AS distance
	FROM chunks
	ORDER BY distance ASC, chunk_id ASC
	LIMIT $2`

// Search returns the k nearest entries by cosine distance, ties broken by
// ascending chunk ID in the query itself.
func (p *Postgres) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(vector), p.dimension)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrIndex, k)
	}

	rows, err := p.pool.Query(ctx, searchSQL, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrIndex, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var distance float64
		if err := rows.Scan(
			&hit.Entry.ChunkID, &hit.Entry.DocumentID, &hit.Entry.Locator,
			&hit.Entry.SourceType, &hit.Entry.Title, &hit.Entry.Seq,
			&hit.Entry.Content, &hit.Entry.Start, &hit.Entry.End,
			&distance,
		); err != nil {
			return nil, fmt.Errorf("%w: scan hit: %v", ErrIndex, err)
		}
		hit.Similarity = clamp01(1 - distance/2)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows: %v", ErrIndex, err)
	}
	return hits, nil
}

// Count returns the number of stored entries.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrIndex, err)
	}
	return count, nil
}

const documentsSQL = `
	SELECT document_id, locator, source_type, MAX(title), COUNT(*)
	FROM chunks
	GROUP BY document_id, locator, source_type
	ORDER BY document_id`

// Documents lists stored documents ordered by document ID.
func (p *Postgres) Documents(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := p.pool.Query(ctx, documentsSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", ErrIndex, err)
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var info DocumentInfo
		if err := rows.Scan(&info.DocumentID, &info.Locator, &info.SourceType, &info.Title, &info.ChunkCount); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", ErrIndex, err)
		}
		docs = append(docs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: document rows: %v", ErrIndex, err)
	}
	return docs, nil
}

func (p *Postgres) validate(entries []Entry) error {
	for _, entry := range entries {
		if entry.ChunkID == "" || entry.DocumentID == "" {
			return fmt.Errorf("%w: entry missing chunk or document ID", ErrIndex)
		}
		if len(entry.Vector) != p.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, index expects %d",
				ErrDimensionMismatch, entry.ChunkID, len(entry.Vector), p.dimension)
		}
	}
	return nil
}

func queueInserts(batch *pgx.Batch, entries []Entry) *pgx.Batch {
	for _, entry := range entries {
		batch.Queue(upsertChunkSQL,
			entry.ChunkID, entry.DocumentID, entry.Locator, entry.SourceType,
			entry.Title, entry.Seq, entry.Content, entry.Start, entry.End,
			pgvector.NewVector(entry.Vector))
	}
	return batch
}
