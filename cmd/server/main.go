package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "supportwatch/docs"
	"supportwatch/internal/ai"
	"supportwatch/internal/analysis"
	"supportwatch/internal/analytics"
	"supportwatch/internal/autoreply"
	"supportwatch/internal/config"
	"supportwatch/internal/database"
	"supportwatch/internal/email"
	"supportwatch/internal/handlers"
	"supportwatch/internal/k8s"
	"supportwatch/internal/knowledge"
	"supportwatch/internal/server"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()
	logger.Info().Msg("Database connection established successfully")

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

	embeddingCache, closeCache := knowledge.NewCacheFromConfig(ctx, cfg, logger)
	defer closeCache()

	engine := knowledge.NewEngine(store, index, orchestrator, embeddingCache, tracker, knowledge.EngineConfigFromConfig(cfg), logger)

	analyzer := analysis.NewAnalyzer(store, orchestrator, tracker, analysis.Config{
		TimeoutMinutes:     cfg.IssueTimeoutMinutes,
		RelevanceThreshold: cfg.RelevanceThreshold,
	}, logger)

	// Outbound mail is optional; without it the gate records no_sender and
	// timeouts are not escalated.
	var (
		sender    autoreply.ReplySender
		escalator analysis.Escalator
	)
	if mailer, err := email.NewService(cfg.SendGridAPIKey, cfg.SupportEmail, cfg.ReplyFromEmail); err != nil {
		logger.Warn().Err(err).Msg("Email disabled")
	} else {
		sender = mailer
		if cfg.SupportEmail != "" {
			escalator = mailer
		}
	}

	gate := autoreply.NewGate(store, orchestrator, engine, sender, tracker, autoreply.Config{
		ConfidenceThreshold: cfg.AutoReplyConfidenceThreshold,
		TimeoutMinutes:      cfg.IssueTimeoutMinutes,
		BotAliases:          cfg.BotAliases(),
		NoAnswerMessage:     cfg.NoAnswerMessage,
		DefaultAutoReply:    cfg.AutoReplyDefaultEnabled,
	}, logger)

	var jobs handlers.JobRunner
	if cfg.EmbedJobImage != "" {
		if client, err := k8s.NewClient(cfg.K8sNamespace, cfg.EmbedJobImage); err != nil {
			logger.Warn().Err(err).Msg("Kubernetes unavailable, embedding jobs disabled")
		} else {
			jobs = client
		}
	}

	sweeper := analysis.NewSweeper(analyzer.Lifecycle(), escalator, tracker, time.Duration(cfg.SweepIntervalMinutes)*time.Minute, logger)
	go sweeper.Run(ctx)

	srv := server.New(cfg, server.Services{
		DB:            db,
		Gate:          gate,
		Analyzer:      analyzer,
		Knowledge:     engine,
		Issues:        analyzer.Lifecycle(),
		IssueTags:     store,
		IssueList:     store,
		Conversations: store,
		Jobs:          jobs,
		Analytics:     tracker,
	}, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	shutdown(srv, logger)
}

func shutdown(srv *server.Server, logger zerolog.Logger) {
	logger.Info().Msg("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
