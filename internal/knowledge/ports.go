package knowledge

import (
	"context"

	"supportwatch/internal/ai"
	"supportwatch/internal/models"
)

// Store is the persistence the retrieval engine reads and writes
type Store interface {
	ListActiveKnowledge(ctx context.Context, categories []string) ([]models.KnowledgeEntry, error)
	ListKnowledgeByIDs(ctx context.Context, ids []int64) ([]models.KnowledgeEntry, error)
	IncrementKnowledgeUsage(ctx context.Context, ids []int64) error
	InsertAutoReplyLog(ctx context.Context, entry *models.AutoReplyLog) error
}

// EmbeddingStore is the persistence used by batch embedding generation
type EmbeddingStore interface {
	ListKnowledgeForEmbedding(ctx context.Context, family string, all bool) ([]models.KnowledgeEntry, error)
	MarkEmbeddingReady(ctx context.Context, id int64, family string) error
	MarkEmbeddingFailed(ctx context.Context, id int64, reason string) error
}

// QueryEmbedder embeds search queries with the preferred available backend
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) (ai.Embedding, error)
}

// FamilyEmbedder embeds texts for the index, pinned to one family per run
type FamilyEmbedder interface {
	QueryEmbedder
	EmbedFamily(ctx context.Context, family string, texts []string) (ai.Embedding, error)
}

// Synthesizer composes one answer from several candidate entries
type Synthesizer interface {
	SynthesizeAnswer(ctx context.Context, query string, entries []ai.KnowledgeSnippet) (ai.Synthesis, ai.BackendType, error)
}

// Backend is everything the engine and the embedder need from the AI layer.
// *ai.Orchestrator satisfies it.
type Backend interface {
	FamilyEmbedder
	Synthesizer
}

// Tracker records retrieval analytics
type Tracker interface {
	TrackKnowledgeSearch(source string, matched, generated bool) error
}

type noopTracker struct{}

func (noopTracker) TrackKnowledgeSearch(string, bool, bool) error { return nil }
