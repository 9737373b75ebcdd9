package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"supportwatch/internal/models"
)

// Batch embedding defaults
const (
	DefaultEmbeddingBatchSize  = 10
	DefaultEmbeddingBatchPause = time.Second
	defaultRetryConcurrency    = 4
)

// familyProbe is embedded once per run to pick the family every vector of
// the run is produced in.
const familyProbe = "knowledge base"

// EmbedOptions selects what a batch embedding run covers
type EmbedOptions struct {
	All    bool   // re-embed entries that are already ready
	Family string // pin the family instead of probing the backend order
}

// EmbedReport summarizes a batch embedding run
type EmbedReport struct {
	Family   string `json:"family"`
	Total    int    `json:"total"`
	Embedded int    `json:"embedded"`
	Failed   int    `json:"failed"`
}

// Embedder generates embeddings for knowledge entries in paced groups
type Embedder struct {
	store       EmbeddingStore
	backend     FamilyEmbedder
	index       VectorIndex
	batchSize   int
	pause       time.Duration
	concurrency int
	logger      zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewEmbedder creates a batch embedder
func NewEmbedder(store EmbeddingStore, backend FamilyEmbedder, index VectorIndex, batchSize int, pause time.Duration, logger zerolog.Logger) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	if pause < 0 {
		pause = 0
	}
	return &Embedder{
		store:       store,
		backend:     backend,
		index:       index,
		batchSize:   batchSize,
		pause:       pause,
		concurrency: defaultRetryConcurrency,
		logger:      logger.With().Str("component", "embedder").Logger(),
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run embeds every active entry lacking a vector in the run's family. A
// failed group is retried entry by entry; entries that still fail are
// marked failed and the run continues.
func (e *Embedder) Run(ctx context.Context, opts EmbedOptions) (*EmbedReport, error) {
	family := opts.Family
	if family == "" {
		probe, err := e.backend.Embed(ctx, []string{familyProbe})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve embedding family: %w", err)
		}
		family = probe.Family
	}

	entries, err := e.store.ListKnowledgeForEmbedding(ctx, family, opts.All)
	if err != nil {
		return nil, err
	}

	report := &EmbedReport{Family: family, Total: len(entries)}
	logger := e.logger.With().Str("family", family).Logger()
	totalBatches := (len(entries) + e.batchSize - 1) / e.batchSize
	logger.Info().Int("entries", len(entries)).Int("batches", totalBatches).Msg("Starting embedding generation")

	for i := 0; i < len(entries); i += e.batchSize {
		if i > 0 {
			if err := e.sleep(ctx, e.pause); err != nil {
				return report, err
			}
		}

		end := i + e.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batchNum := (i / e.batchSize) + 1

		embedded, failed := e.processBatch(ctx, family, entries[i:end], logger)
		report.Embedded += embedded
		report.Failed += failed
		logger.Info().
			Int("batch", batchNum).
			Int("of", totalBatches).
			Int("embedded", embedded).
			Int("failed", failed).
			Msg("Completed batch")

		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	logger.Info().Int("embedded", report.Embedded).Int("failed", report.Failed).Msg("Embedding generation complete")
	return report, nil
}

func (e *Embedder) processBatch(ctx context.Context, family string, batch []models.KnowledgeEntry, logger zerolog.Logger) (embedded, failed int) {
	texts := make([]string, len(batch))
	for i, entry := range batch {
		texts[i] = entry.EmbeddingText()
	}

	result, err := e.backend.EmbedFamily(ctx, family, texts)
	if err == nil && len(result.Vectors) == len(batch) {
		if err := e.persist(ctx, family, batch, result.Vectors); err != nil {
			logger.Error().Err(err).Msg("Failed to store batch embeddings")
			for _, entry := range batch {
				e.markFailed(ctx, entry.ID, err, logger)
			}
			return 0, len(batch)
		}
		return len(batch), 0
	}

	if err == nil {
		err = fmt.Errorf("expected %d embeddings, got %d", len(batch), len(result.Vectors))
	}
	logger.Warn().Err(err).Int("entries", len(batch)).Msg("Batch embedding failed, retrying entries one by one")
	return e.retryEach(ctx, family, batch, logger)
}

// retryEach embeds entries individually so one bad entry cannot sink its
// group. Per-entry failures are recorded, never returned.
func (e *Embedder) retryEach(ctx context.Context, family string, batch []models.KnowledgeEntry, logger zerolog.Logger) (embedded, failed int) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, entry := range batch {
		g.Go(func() error {
			err := e.embedOne(gctx, family, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				e.markFailed(ctx, entry.ID, err, logger)
				return nil
			}
			embedded++
			return nil
		})
	}
	_ = g.Wait()
	return embedded, failed
}

func (e *Embedder) embedOne(ctx context.Context, family string, entry models.KnowledgeEntry) error {
	result, err := e.backend.EmbedFamily(ctx, family, []string{entry.EmbeddingText()})
	if err != nil {
		return err
	}
	if len(result.Vectors) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(result.Vectors))
	}
	return e.persist(ctx, family, []models.KnowledgeEntry{entry}, result.Vectors)
}

func (e *Embedder) persist(ctx context.Context, family string, entries []models.KnowledgeEntry, vectors [][]float32) error {
	points := make([]EntryVector, len(entries))
	for i, entry := range entries {
		points[i] = EntryVector{EntryID: entry.ID, Category: entry.Category, Vector: vectors[i]}
	}
	if err := e.index.Upsert(ctx, family, points); err != nil {
		return err
	}

	for _, entry := range entries {
		if err := e.store.MarkEmbeddingReady(ctx, entry.ID, family); err != nil {
			return err
		}
	}
	return nil
}

func (e *Embedder) markFailed(ctx context.Context, id int64, cause error, logger zerolog.Logger) {
	logger.Warn().Err(cause).Int64("entry_id", id).Msg("Embedding failed for knowledge entry")
	if err := e.store.MarkEmbeddingFailed(ctx, id, cause.Error()); err != nil {
		logger.Error().Err(err).Int64("entry_id", id).Msg("Failed to mark embedding failure")
	}
}
