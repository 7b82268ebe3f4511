package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultEmbeddingCacheTTL = 24 * time.Hour

// ModelResolver names the embedding model a user's queries go through.
type ModelResolver func(ctx context.Context, userID uuid.UUID) string

// RedisEmbeddingCache stores query vectors keyed by model and text, so users sharing a model share
// entries and a model change never returns stale vectors.
type RedisEmbeddingCache struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	model  ModelResolver
}

func NewRedisEmbeddingCache(rdb goredis.UniversalClient, prefix string, ttl time.Duration, model ModelResolver) *RedisEmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingCacheTTL
	}
	if prefix == "" {
		prefix = "deepmed"
	}
	return &RedisEmbeddingCache{rdb: rdb, prefix: prefix, ttl: ttl, model: model}
}

func (c *RedisEmbeddingCache) key(ctx context.Context, userID uuid.UUID, text string) string {
	model := ""
	if c.model != nil {
		model = c.model(ctx, userID)
	}
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return fmt.Sprintf("%s:embedding:%s", c.prefix, hex.EncodeToString(sum[:16]))
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, userID uuid.UUID, text string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(ctx, userID, text)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, userID uuid.UUID, text string, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.key(ctx, userID, text), encodeVector(vec), c.ttl).Err()
}

func encodeVector(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector (%d bytes)", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
