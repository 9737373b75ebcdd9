package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"supportwatch/internal/config"
)

// Vector store names accepted in VECTOR_STORE
const (
	VectorStorePGVector = "pgvector"
	VectorStoreQdrant   = "qdrant"
)

// NewIndexFromConfig builds the configured vector index. The returned close
// func is never nil.
func NewIndexFromConfig(cfg *config.Config, db *sqlx.DB, logger zerolog.Logger) (VectorIndex, func() error, error) {
	switch strings.ToLower(cfg.VectorStore) {
	case "", VectorStorePGVector:
		return NewPGVectorIndex(db), func() error { return nil }, nil
	case VectorStoreQdrant:
		index, err := NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, logger)
		if err != nil {
			return nil, nil, err
		}
		return index, index.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown VECTOR_STORE %q", cfg.VectorStore)
	}
}

// NewCacheFromConfig uses Redis when REDIS_URL is set and reachable, and a
// process-local cache otherwise.
func NewCacheFromConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (EmbeddingCache, func() error) {
	if cfg.RedisURL != "" {
		redisCache, err := NewRedisEmbeddingCache(ctx, cfg.RedisURL, logger)
		if err == nil {
			return redisCache, redisCache.Close
		}
		logger.Warn().Err(err).Msg("Redis unavailable, using in-memory embedding cache")
	}
	return NewMemoryEmbeddingCache(), func() error { return nil }
}

// EngineConfigFromConfig maps application settings to engine settings
func EngineConfigFromConfig(cfg *config.Config) Config {
	return Config{
		ConfidenceThreshold: cfg.AutoReplyConfidenceThreshold,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ResultLimit:         cfg.KnowledgeResultLimit,
		CacheScope:          strings.Join(cfg.EmbeddingBackendOrder, ","),
		CacheTTL:            DefaultEmbeddingCacheTTL,
	}
}

// BatchPause converts the configured pause between embedding groups
func BatchPause(cfg *config.Config) time.Duration {
	return time.Duration(cfg.EmbeddingBatchPauseMS) * time.Millisecond
}
