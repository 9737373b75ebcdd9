package knowledge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"supportwatch/internal/ai"
	"supportwatch/internal/models"
	"supportwatch/internal/utils"
)

// Default retrieval tuning
const (
	DefaultResultLimit         = 5
	DefaultSimilarityThreshold = 0.3
	DefaultConfidenceThreshold = 50
)

// ErrEmptyQuery is set on the result of a blank query
var ErrEmptyQuery = errors.New("empty query")

// Config tunes retrieval
type Config struct {
	ConfidenceThreshold int     // a candidate at or above this is strong
	SimilarityThreshold float64 // vector floor (0..1)
	ResultLimit         int
	CacheScope          string // embedding backend order, part of the cache key
	CacheTTL            time.Duration
}

// Query is one retrieval request
type Query struct {
	Text           string
	ConversationID *string
	MessageID      *int64
	Categories     []string
	Source         string // models.AutoReplySource*
}

// Result is the outcome of one retrieval attempt
type Result struct {
	Matched     bool
	Answer      string
	Confidence  int
	Category    *string
	EntryID     *int64
	IsGenerated bool
	Backend     ai.BackendType // set when the answer was synthesized
	Candidates  []Candidate
	Err         error
}

// Response converts the result to the API shape
func (r *Result) Response() models.KnowledgeSearchResponse {
	resp := models.KnowledgeSearchResponse{
		Matched:     r.Matched,
		Confidence:  r.Confidence,
		Category:    r.Category,
		IsGenerated: r.IsGenerated,
		EntryID:     r.EntryID,
	}
	if r.Matched {
		answer := r.Answer
		resp.Answer = &answer
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

// Engine answers queries from the knowledge base
type Engine struct {
	store   Store
	index   VectorIndex
	backend Backend
	cache   EmbeddingCache
	tracker Tracker
	cfg     Config
	logger  zerolog.Logger
}

// NewEngine creates a retrieval engine. index and cache may be nil; without
// an index retrieval is keyword-only.
func NewEngine(store Store, index VectorIndex, backend Backend, cache EmbeddingCache, tracker Tracker, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = DefaultResultLimit
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultEmbeddingCacheTTL
	}
	if tracker == nil {
		tracker = noopTracker{}
	}
	return &Engine{
		store:   store,
		index:   index,
		backend: backend,
		cache:   cache,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger.With().Str("component", "knowledge").Logger(),
	}
}

// Threshold is the confidence a single candidate needs to be answered directly
func (e *Engine) Threshold() int {
	return e.cfg.ConfidenceThreshold
}

// Search runs one retrieval attempt and records it in the auto-reply log.
// The returned error is also set on the result; it is non-nil only when no
// answer could be produced because the store or every synthesis backend
// failed.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Source == "" {
		q.Source = models.AutoReplySourceAutoReply
	}
	text := strings.TrimSpace(q.Text)
	logger := e.logger.With().Str("source", q.Source).Logger()
	if q.ConversationID != nil {
		logger = logger.With().Str("conversation_id", *q.ConversationID).Logger()
	}

	result := &Result{}
	if text == "" {
		result.Err = ErrEmptyQuery
		e.record(ctx, q, text, result, logger)
		return result, nil
	}

	candidates, err := e.candidates(ctx, text, q.Categories, logger)
	if err != nil {
		result.Err = err
		e.record(ctx, q, text, result, logger)
		return result, err
	}
	result.Candidates = candidates

	if err := e.decide(ctx, text, result, logger); err != nil {
		result.Err = err
		e.record(ctx, q, text, result, logger)
		return result, err
	}

	e.record(ctx, q, text, result, logger)
	return result, nil
}

// candidates runs the vector path and falls back to keywords when it finds
// nothing strong.
func (e *Engine) candidates(ctx context.Context, text string, categories []string, logger zerolog.Logger) ([]Candidate, error) {
	vector := e.vectorCandidates(ctx, text, categories, logger)
	if len(vector) > 0 && vector[0].Confidence >= e.cfg.ConfidenceThreshold {
		return vector, nil
	}

	entries, err := e.store.ListActiveKnowledge(ctx, categories)
	if err != nil {
		if len(vector) > 0 {
			logger.Warn().Err(err).Msg("Keyword fallback unavailable, using vector candidates only")
			return vector, nil
		}
		return nil, fmt.Errorf("failed to load knowledge for keyword search: %w", err)
	}

	keyword := MatchKeywords(text, entries, e.cfg.ResultLimit)
	logger.Debug().
		Int("vector_candidates", len(vector)).
		Int("keyword_candidates", len(keyword)).
		Msg("Keyword fallback")
	return mergeCandidates(e.cfg.ResultLimit, vector, keyword), nil
}

// vectorCandidates never fails: embedding or index errors degrade to the
// keyword path.
func (e *Engine) vectorCandidates(ctx context.Context, text string, categories []string, logger zerolog.Logger) []Candidate {
	if e.index == nil || e.backend == nil {
		return nil
	}

	embedding, ok := e.queryEmbedding(ctx, text, logger)
	if !ok {
		return nil
	}

	hits, err := e.index.Search(ctx, VectorQuery{
		Vector:     embedding.Vector,
		Family:     embedding.Family,
		Categories: categories,
		Limit:      e.cfg.ResultLimit,
		Threshold:  e.cfg.SimilarityThreshold,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Vector search failed, falling back to keywords")
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.EntryID
	}
	entries, err := e.store.ListKnowledgeByIDs(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load vector hits, falling back to keywords")
		return nil
	}

	byID := make(map[int64]models.KnowledgeEntry, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
	}

	allowed := categorySet(categories)
	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		entry, ok := byID[h.EntryID]
		// an external index can lag behind deactivation or recategorization
		if !ok || !entry.IsActive || !allowed(entry.Category) {
			continue
		}
		candidates = append(candidates, Candidate{
			Entry:      entry,
			Confidence: similarityConfidence(h.Similarity),
			Source:     SourceVector,
		})
	}
	sortCandidates(candidates)
	return candidates
}

func (e *Engine) queryEmbedding(ctx context.Context, text string, logger zerolog.Logger) (CachedEmbedding, bool) {
	key := e.cfg.CacheScope + "|" + utils.NormalizeText(text)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			return cached, true
		}
	}

	embedding, err := e.backend.Embed(ctx, []string{text})
	if err != nil || len(embedding.Vectors) == 0 {
		logger.Warn().Err(err).Msg("Query embedding failed, falling back to keywords")
		return CachedEmbedding{}, false
	}

	value := CachedEmbedding{Vector: embedding.Vectors[0], Family: embedding.Family}
	// a fallback vector would hide entries embedded by the preferred family
	// for the whole TTL
	if e.cache != nil && !embedding.Fallback {
		e.cache.Set(ctx, key, value, e.cfg.CacheTTL)
	} else if embedding.Fallback {
		logger.Debug().Str("family", embedding.Family).Msg("Not caching fallback query embedding")
	}
	return value, true
}

// decide turns candidates into an answer: exactly one strong candidate is
// answered directly, anything else goes through synthesis.
func (e *Engine) decide(ctx context.Context, text string, result *Result, logger zerolog.Logger) error {
	candidates := result.Candidates
	if len(candidates) == 0 {
		return nil
	}

	var strong []Candidate
	for _, c := range candidates {
		if c.Confidence >= e.cfg.ConfidenceThreshold {
			strong = append(strong, c)
		}
	}

	if len(strong) == 1 {
		entry := strong[0].Entry
		result.Matched = true
		result.Answer = entry.Answer
		result.Confidence = strong[0].Confidence
		result.Category = entry.Category
		result.EntryID = &entry.ID
		e.incrementUsage(ctx, []int64{entry.ID}, logger)
		return nil
	}

	if e.backend == nil {
		result.Confidence = candidates[0].Confidence
		return nil
	}

	snippets := make([]ai.KnowledgeSnippet, len(candidates))
	for i, c := range candidates {
		snippets[i] = ai.KnowledgeSnippet{Question: c.Entry.Question, Answer: c.Entry.Answer, Category: c.Entry.Category}
	}

	synthesis, backend, err := e.backend.SynthesizeAnswer(ctx, text, snippets)
	if err != nil {
		return fmt.Errorf("failed to synthesize answer: %w", err)
	}

	result.IsGenerated = true
	result.Backend = backend
	result.Confidence = synthesis.Confidence
	if !synthesis.CanAnswer || strings.TrimSpace(synthesis.Answer) == "" {
		logger.Info().Int("candidates", len(candidates)).Msg("Synthesis declined to answer")
		return nil
	}

	result.Matched = true
	result.Answer = strings.TrimSpace(synthesis.Answer)

	used := make([]int64, 0, len(synthesis.UsedEntryIndices))
	for _, idx := range synthesis.UsedEntryIndices {
		used = append(used, candidates[idx].Entry.ID)
	}
	if len(synthesis.UsedEntryIndices) > 0 {
		first := candidates[synthesis.UsedEntryIndices[0]].Entry
		result.Category = first.Category
	}
	if len(used) == 1 {
		result.EntryID = &used[0]
	}
	e.incrementUsage(ctx, dedupeIDs(used), logger)
	return nil
}

func (e *Engine) incrementUsage(ctx context.Context, ids []int64, logger zerolog.Logger) {
	if err := e.store.IncrementKnowledgeUsage(ctx, ids); err != nil {
		logger.Warn().Err(err).Msg("Failed to increment knowledge usage")
	}
}

// record writes the auto-reply log row for every attempt
func (e *Engine) record(ctx context.Context, q Query, text string, result *Result, logger zerolog.Logger) {
	entry := &models.AutoReplyLog{
		ConversationID:   q.ConversationID,
		MessageID:        q.MessageID,
		Query:            text,
		Matched:          result.Matched,
		Confidence:       result.Confidence,
		KnowledgeEntryID: result.EntryID,
		IsGenerated:      result.IsGenerated,
		Source:           q.Source,
	}
	if result.Err != nil {
		msg := result.Err.Error()
		entry.Error = &msg
	}

	if err := e.store.InsertAutoReplyLog(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("Failed to write auto-reply log")
	}
	if err := e.tracker.TrackKnowledgeSearch(q.Source, result.Matched, result.IsGenerated); err != nil {
		logger.Warn().Err(err).Msg("Failed to track knowledge search")
	}

	logger.Info().
		Bool("matched", result.Matched).
		Int("confidence", result.Confidence).
		Bool("generated", result.IsGenerated).
		Int("candidates", len(result.Candidates)).
		Msg("Knowledge search")
}

func similarityConfidence(similarity float64) int {
	c := int(math.Round(similarity * 100))
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

func categorySet(categories []string) func(*string) bool {
	if len(categories) == 0 {
		return func(*string) bool { return true }
	}
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return func(category *string) bool {
		if category == nil {
			return false
		}
		_, ok := set[*category]
		return ok
	}
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
