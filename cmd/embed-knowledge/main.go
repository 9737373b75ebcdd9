package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportwatch/internal/ai"
	"supportwatch/internal/analytics"
	"supportwatch/internal/config"
	"supportwatch/internal/database"
	"supportwatch/internal/knowledge"
)

func main() {
	all := flag.Bool("all", false, "Re-embed every active entry, not only those missing an embedding")
	family := flag.String("family", "", "Embedding family to use (default: first available backend)")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger().With().Str("command", "embed-knowledge").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	store, err := database.NewStore(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to prepare schema")
	}

	orchestrator, err := ai.NewOrchestratorFromConfig(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure AI backends")
	}

	tracker, err := analytics.NewService(db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize analytics")
	}
	orchestrator.SetObserver(tracker.TrackBackendCall)

	index, closeIndex, err := knowledge.NewIndexFromConfig(cfg, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure vector index")
	}
	defer closeIndex()

	embedder := knowledge.NewEmbedder(store, orchestrator, index, cfg.EmbeddingBatchSize, knowledge.BatchPause(cfg), logger)

	start := time.Now()
	report, err := embedder.Run(ctx, knowledge.EmbedOptions{All: *all, Family: *family})
	if err != nil {
		logger.Error().Err(err).Msg("Embedding run failed")
		os.Exit(1)
	}

	if err := tracker.TrackEvent(analytics.EventEmbeddingRun, 1, map[string]interface{}{
		"family":   report.Family,
		"embedded": report.Embedded,
		"failed":   report.Failed,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to track embedding run")
	}

	logger.Info().
		Str("family", report.Family).
		Int("total", report.Total).
		Int("embedded", report.Embedded).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Embedding run complete")
}
