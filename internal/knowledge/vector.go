package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"supportwatch/internal/models"
)

// EntryVector is one knowledge entry's embedding ready for indexing
type EntryVector struct {
	EntryID  int64
	Category *string
	Vector   []float32
}

// VectorQuery is a similarity search restricted to one embedding family
type VectorQuery struct {
	Vector     []float32
	Family     string
	Categories []string
	Limit      int
	Threshold  float64 // cosine similarity floor, inclusive
}

// VectorHit is one entry scored by cosine similarity (0..1)
type VectorHit struct {
	EntryID    int64   `db:"id"`
	Similarity float64 `db:"similarity"`
}

// VectorIndex stores entry vectors and answers similarity queries
type VectorIndex interface {
	Upsert(ctx context.Context, family string, vectors []EntryVector) error
	Search(ctx context.Context, q VectorQuery) ([]VectorHit, error)
}

// FormatVector converts a float32 slice to pgvector literal format
// Example output: "[0.1,0.2,0.3]"
func FormatVector(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// PGVectorIndex keeps vectors in the knowledge_entries.embedding column
type PGVectorIndex struct {
	db *sqlx.DB
}

// NewPGVectorIndex creates a pgvector-backed index
func NewPGVectorIndex(db *sqlx.DB) *PGVectorIndex {
	return &PGVectorIndex{db: db}
}

// The family filter must run before the distance operator: vectors from
// different families can have different dimensions and pgvector rejects
// comparing them.
const pgvectorSearchQuery = `
	WITH candidates AS MATERIALIZED (
		SELECT id, embedding FROM knowledge_entries
		WHERE is_active = TRUE
			AND embedding IS NOT NULL
			AND embedding_status = $2
			AND embedding_family = $3
			AND ($4::text[] IS NULL OR category = ANY($4::text[]))
	)
	SELECT id, 1 - (embedding <=> $1::vector) AS similarity
	FROM candidates
	WHERE 1 - (embedding <=> $1::vector) >= $5
	ORDER BY similarity DESC, id
	LIMIT $6
`

// Search returns entries of q.Family at or above the similarity threshold
func (p *PGVectorIndex) Search(ctx context.Context, q VectorQuery) ([]VectorHit, error) {
	if len(q.Vector) == 0 || q.Limit <= 0 {
		return nil, nil
	}

	var allow interface{}
	if len(q.Categories) > 0 {
		allow = pq.Array(q.Categories)
	}

	var hits []VectorHit
	err := p.db.SelectContext(ctx, &hits, pgvectorSearchQuery,
		FormatVector(q.Vector), models.EmbeddingStatusReady, q.Family, allow, q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge vectors: %w", err)
	}
	return hits, nil
}

// Upsert writes each entry's vector. The embedding family is recorded by
// the caller once the vector is stored.
func (p *PGVectorIndex) Upsert(ctx context.Context, family string, vectors []EntryVector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin vector upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, v := range vectors {
		if _, err := tx.ExecContext(ctx, `
			UPDATE knowledge_entries SET embedding = $2::vector, updated_at = NOW() WHERE id = $1
		`, v.EntryID, FormatVector(v.Vector)); err != nil {
			return fmt.Errorf("failed to store %s embedding for entry %d: %w", family, v.EntryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vector upsert: %w", err)
	}
	return nil
}
