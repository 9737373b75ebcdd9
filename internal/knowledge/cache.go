package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"supportwatch/internal/cache"
)

// DefaultEmbeddingCacheTTL bounds how long a query vector is reused
const DefaultEmbeddingCacheTTL = 24 * time.Hour

// CachedEmbedding is a query vector and the family that produced it
type CachedEmbedding struct {
	Vector []float32 `json:"vector"`
	Family string    `json:"family"`
}

// EmbeddingCache stores query embeddings. Lookups never fail: any backend
// error is a miss.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) (CachedEmbedding, bool)
	Set(ctx context.Context, key string, value CachedEmbedding, ttl time.Duration)
}

// MemoryEmbeddingCache is a process-local embedding cache
type MemoryEmbeddingCache struct {
	items *cache.Cache[CachedEmbedding]
}

// NewMemoryEmbeddingCache creates an in-memory embedding cache
func NewMemoryEmbeddingCache() *MemoryEmbeddingCache {
	return &MemoryEmbeddingCache{items: cache.New[CachedEmbedding]()}
}

func (m *MemoryEmbeddingCache) Get(_ context.Context, key string) (CachedEmbedding, bool) {
	return m.items.Get(key)
}

func (m *MemoryEmbeddingCache) Set(_ context.Context, key string, value CachedEmbedding, ttl time.Duration) {
	m.items.Set(key, value, ttl)
}

// Purge drops expired vectors
func (m *MemoryEmbeddingCache) Purge() int {
	return m.items.Purge()
}

// RedisEmbeddingCache shares query embeddings between replicas
type RedisEmbeddingCache struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisEmbeddingCache connects to redisURL and verifies the connection
func NewRedisEmbeddingCache(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisEmbeddingCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisEmbeddingCache(client, logger), nil
}

func newRedisEmbeddingCache(client *redis.Client, logger zerolog.Logger) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{
		client: client,
		prefix: "supportwatch:embedding:",
		logger: logger.With().Str("component", "embedding_cache").Logger(),
	}
}

// Close releases the connection pool
func (r *RedisEmbeddingCache) Close() error {
	return r.client.Close()
}

func (r *RedisEmbeddingCache) Get(ctx context.Context, key string) (CachedEmbedding, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Msg("Embedding cache read failed")
		}
		return CachedEmbedding{}, false
	}

	var value CachedEmbedding
	if err := json.Unmarshal(data, &value); err != nil {
		r.logger.Warn().Err(err).Msg("Discarding undecodable cached embedding")
		return CachedEmbedding{}, false
	}
	return value, len(value.Vector) > 0
}

func (r *RedisEmbeddingCache) Set(ctx context.Context, key string, value CachedEmbedding, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to encode embedding for cache")
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Msg("Embedding cache write failed")
	}
}
