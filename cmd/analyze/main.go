package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportwatch/internal/ai"
	"supportwatch/internal/analysis"
	"supportwatch/internal/analytics"
	"supportwatch/internal/config"
	"supportwatch/internal/database"
)

func main() {
	conversation := flag.String("conversation", "", "Only analyze this conversation id")
	since := flag.Duration("since", 0, "Analyze messages newer than this (default: 24h)")
	flag.Parse()

	cfg := config.Load()
	logger := cfg.SetupLogger().With().Str("command", "analyze").Logger()

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

	analyzer := analysis.NewAnalyzer(store, orchestrator, tracker, analysis.Config{
		TimeoutMinutes:     cfg.IssueTimeoutMinutes,
		RelevanceThreshold: cfg.RelevanceThreshold,
	}, logger)

	var opts analysis.RunOptions
	if *conversation != "" {
		opts.ConversationID = conversation
	}
	if *since > 0 {
		from := time.Now().Add(-*since)
		opts.Since = &from
	}

	result, err := analyzer.RunAnalysis(ctx, opts)
	if err != nil {
		logger.Error().Err(err).Msg("Analysis run failed")
		os.Exit(1)
	}

	logger.Info().
		Str("run_id", result.RunID).
		Int("messages", result.MessagesAnalyzed).
		Int("issues_created", result.IssuesCreated).
		Int("issues_replied", result.IssuesReplied).
		Int("issues_timed_out", result.IssuesTimedOut).
		Int("failures", result.Failures).
		Msg("Analysis run complete")
}
