package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"supportwatch/internal/models"
)

const knowledgeColumns = `id, question, answer, category, keywords, is_active, usage_count,
	embedding_family, embedding_status, created_at, updated_at`

// knowledgeRow scans the keywords array which the model does not map
type knowledgeRow struct {
	models.KnowledgeEntry
	Keywords pq.StringArray `db:"keywords"`
}

func (r knowledgeRow) entry() models.KnowledgeEntry {
	e := r.KnowledgeEntry
	e.Keywords = []string(r.Keywords)
	return e
}

func toEntries(rows []knowledgeRow) []models.KnowledgeEntry {
	entries := make([]models.KnowledgeEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry()
	}
	return entries
}

// CreateKnowledgeEntry inserts an entry with a pending embedding
func (s *Store) CreateKnowledgeEntry(ctx context.Context, entry *models.KnowledgeEntry) error {
	row := s.db.QueryRowxContext(ctx, `
		INSERT INTO knowledge_entries (question, answer, category, keywords, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, usage_count, embedding_status, created_at, updated_at
	`, entry.Question, entry.Answer, entry.Category, pq.Array(entry.Keywords), entry.IsActive)

	if err := row.Scan(&entry.ID, &entry.UsageCount, &entry.EmbeddingStatus, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return mapErr(err, "failed to create knowledge entry")
	}
	return nil
}

// GetKnowledgeEntry returns one entry
func (s *Store) GetKnowledgeEntry(ctx context.Context, id int64) (*models.KnowledgeEntry, error) {
	var row knowledgeRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+knowledgeColumns+` FROM knowledge_entries WHERE id = $1`, id); err != nil {
		return nil, mapErr(err, "failed to get knowledge entry %d", id)
	}
	entry := row.entry()
	return &entry, nil
}

// ListActiveKnowledge returns active entries, restricted to the category
// allow-list when one is given.
func (s *Store) ListActiveKnowledge(ctx context.Context, categories []string) ([]models.KnowledgeEntry, error) {
	var allow interface{}
	if len(categories) > 0 {
		allow = pq.Array(categories)
	}

	var rows []knowledgeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+knowledgeColumns+` FROM knowledge_entries
		WHERE is_active = TRUE
			AND ($1::text[] IS NULL OR category = ANY($1::text[]))
		ORDER BY id
	`, allow)
	if err != nil {
		return nil, mapErr(err, "failed to list active knowledge entries")
	}
	return toEntries(rows), nil
}

// ListKnowledgeByIDs returns entries by id in the order the ids were given
func (s *Store) ListKnowledgeByIDs(ctx context.Context, ids []int64) ([]models.KnowledgeEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []knowledgeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+knowledgeColumns+` FROM knowledge_entries WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, mapErr(err, "failed to list knowledge entries")
	}

	byID := make(map[int64]models.KnowledgeEntry, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.entry()
	}
	ordered := make([]models.KnowledgeEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

// ListKnowledgeForEmbedding returns active entries that need an embedding in
// the given family. With all set, every active entry is returned.
func (s *Store) ListKnowledgeForEmbedding(ctx context.Context, family string, all bool) ([]models.KnowledgeEntry, error) {
	var rows []knowledgeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+knowledgeColumns+` FROM knowledge_entries
		WHERE is_active = TRUE
			AND ($2 OR embedding_status <> $3 OR embedding_family IS DISTINCT FROM $1)
		ORDER BY id
	`, family, all, models.EmbeddingStatusReady)
	if err != nil {
		return nil, mapErr(err, "failed to list knowledge entries for embedding")
	}
	return toEntries(rows), nil
}

// MarkEmbeddingReady records that an entry is embedded in family
func (s *Store) MarkEmbeddingReady(ctx context.Context, id int64, family string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries
		SET embedding_family = $2, embedding_status = $3, embedding_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, family, models.EmbeddingStatusReady)
	if err != nil {
		return mapErr(err, "failed to mark knowledge entry %d embedded", id)
	}
	return nil
}

// MarkEmbeddingFailed records an embedding failure for one entry
func (s *Store) MarkEmbeddingFailed(ctx context.Context, id int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries
		SET embedding_status = $2, embedding_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.EmbeddingStatusFailed, reason)
	if err != nil {
		return mapErr(err, "failed to mark knowledge entry %d failed", id)
	}
	return nil
}

// IncrementKnowledgeUsage bumps the usage counter of each entry once
func (s *Store) IncrementKnowledgeUsage(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_entries SET usage_count = usage_count + 1 WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to increment knowledge usage: %w", err)
	}
	return nil
}

// InsertAutoReplyLog appends one retrieval decision
func (s *Store) InsertAutoReplyLog(ctx context.Context, entry *models.AutoReplyLog) error {
	row := s.db.QueryRowxContext(ctx, `
		INSERT INTO auto_reply_logs (
			conversation_id, message_id, query, matched, confidence, knowledge_entry_id,
			is_generated, source, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, entry.ConversationID, entry.MessageID, entry.Query, entry.Matched, entry.Confidence,
		entry.KnowledgeEntryID, entry.IsGenerated, entry.Source, entry.Error)

	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return mapErr(err, "failed to insert auto-reply log")
	}
	return nil
}
