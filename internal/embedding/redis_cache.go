package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache stores embeddings in Redis keyed by a hash of the text, so
// repeated analyses of the same corpus skip inference across process
// restarts. Vectors are stored as little-endian float32 blobs.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed embedding cache and verifies the
// connection with a PING.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func redisKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "matome:emb:" + hex.EncodeToString(sum[:16])
}

// Get returns the cached embedding for text if present. Redis failures are
// treated as cache misses.
func (c *RedisCache) Get(ctx context.Context, text string) ([]float32, bool) {
	data, err := c.rdb.Get(ctx, redisKey(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("redis embedding get failed", zap.Error(err))
		}
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Debug("cached embedding corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return vec, true
}

// Set stores the embedding for text. Failures are logged, never fatal.
func (c *RedisCache) Set(ctx context.Context, text string, vec []float32) {
	if err := c.rdb.Set(ctx, redisKey(text), encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.Debug("redis embedding set failed", zap.Error(err))
	}
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
