package ai

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"supportwatch/internal/config"
)

// NewBackend constructs one backend variant from configuration
func NewBackend(t BackendType, cfg *config.Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch t {
	case BackendOpenAI:
		backend, err = asBackend(NewOpenAIBackend(cfg))
	case BackendAzure:
		backend, err = asBackend(NewAzureBackend(cfg))
	case BackendLocal:
		backend, err = asBackend(NewLocalBackend(cfg))
	case BackendCLI:
		var cli *CLIBackend
		if cli, err = NewCLIBackend(cfg); err == nil {
			backend = cli
		}
	default:
		err = fmt.Errorf("unknown AI backend %q", t)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func asBackend(b *ChatBackend, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

// NewOrchestratorFromConfig builds every configured backend and orders them.
// Backends missing credentials are skipped; the primary must be available.
func NewOrchestratorFromConfig(cfg *config.Config, logger zerolog.Logger) (*Orchestrator, error) {
	primary, err := ParseBackendType(cfg.AIPrimaryBackend)
	if err != nil {
		return nil, err
	}
	order, err := parseOrder(cfg.AIBackendOrder)
	if err != nil {
		return nil, fmt.Errorf("invalid AI_BACKEND_ORDER: %w", err)
	}
	embeddingOrder, err := parseOrder(cfg.EmbeddingBackendOrder)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_BACKEND_ORDER: %w", err)
	}

	timeout := time.Duration(cfg.AITimeoutSeconds) * time.Second
	gateways := make(map[BackendType]*Gateway)
	for _, t := range append([]BackendType{primary}, append(order, embeddingOrder...)...) {
		if _, done := gateways[t]; done {
			continue
		}
		backend, err := NewBackend(t, cfg)
		if err != nil {
			logger.Debug().Err(err).Str("backend", string(t)).Msg("AI backend not configured")
			continue
		}
		gateways[t] = NewGateway(backend, timeout)
	}

	orchestrator, err := NewOrchestrator(gateways, primary, order, embeddingOrder, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("primary", string(primary)).
		Interface("chain", orchestrator.Chain()).
		Msg("AI backends configured")
	return orchestrator, nil
}

func parseOrder(names []string) ([]BackendType, error) {
	types := make([]BackendType, 0, len(names))
	for _, name := range names {
		t, err := ParseBackendType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
