package embedding

import (
	"context"

	"go.uber.org/zap"
)

// CachingEmbedder wraps an Embedder with an in-process LRU and an optional
// Redis cache. Lookup order is LRU, then Redis, then the inner embedder.
type CachingEmbedder struct {
	inner  Embedder
	lru    *LRUCache
	redis  *RedisCache
	logger *zap.Logger
}

// NewCachingEmbedder wraps inner. redis may be nil, in which case only the
// in-process cache is used.
func NewCachingEmbedder(inner Embedder, cacheSize int, redis *RedisCache, logger *zap.Logger) *CachingEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingEmbedder{
		inner:  inner,
		lru:    NewLRUCache(cacheSize),
		redis:  redis,
		logger: logger,
	}
}

// Embed returns the embedding for text, consulting caches first.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.lru.Get(text); ok {
		return vec, nil
	}
	if e.redis != nil {
		if vec, ok := e.redis.Get(ctx, text); ok {
			e.lru.Set(text, vec)
			return vec, nil
		}
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.lru.Set(text, vec)
	if e.redis != nil {
		e.redis.Set(ctx, text, vec)
	}
	return vec, nil
}

// EmbedBatch embeds each text, consulting caches per entry.
func (e *CachingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (e *CachingEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close closes the inner embedder and the Redis connection if present.
func (e *CachingEmbedder) Close() error {
	err := e.inner.Close()
	if e.redis != nil {
		if cerr := e.redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
