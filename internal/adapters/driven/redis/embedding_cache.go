package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Embedder = (*CachedEmbedder)(nil)

const (
	embeddingPrefix = "sercha-crawl:embedding:"

	// DefaultEmbeddingTTL is how long cached vectors are kept
	DefaultEmbeddingTTL = 24 * time.Hour
)

// CachedEmbedder wraps an Embedder and keeps vectors in Redis keyed by
// model, purpose and text hash. Cache failures fall through to the inner
// embedder so an unavailable Redis never blocks ingestion.
type CachedEmbedder struct {
	inner  driven.Embedder
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder creates a caching decorator around inner.
func NewCachedEmbedder(inner driven.Embedder, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Embed serves cached vectors and embeds only the misses, preserving input order.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string, purpose driven.EmbedPurpose) ([][]float32, error) {
	if len(texts) == 0 {
		return c.inner.Embed(ctx, texts, purpose)
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text, purpose)
	}

	result := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("embedding cache read failed", "error", err)
		cached = make([]interface{}, len(texts))
	}
	dims := c.inner.Dimensions()
	for i, v := range cached {
		if s, ok := v.(string); ok {
			if vec, ok := decodeVector(s, dims); ok && domain.ValidateVector(vec, dims) == nil {
				result[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, texts[i])
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts, purpose)
	if err != nil {
		return nil, err
	}
	// Count mismatches are the caller's to detect; skip caching them
	if len(vectors) != len(missTexts) {
		return vectors, nil
	}

	// Malformed vectors are returned for the caller to reject but never cached
	pipe := c.client.Pipeline()
	writes := 0
	for j, i := range missIdx {
		result[i] = vectors[j]
		if err := domain.ValidateVector(vectors[j], dims); err != nil {
			c.logger.Warn("not caching malformed embedding", "error", err)
			continue
		}
		pipe.Set(ctx, keys[i], encodeVector(vectors[j]), c.ttl)
		writes++
	}
	if writes > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err, "count", writes)
		}
	}

	c.logger.Debug("embedding cache", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return result, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *CachedEmbedder) Model() string { return c.inner.Model() }

func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	return c.inner.HealthCheck(ctx)
}

// Close closes the inner embedder. The Redis client is owned by the caller.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

func (c *CachedEmbedder) key(text string, purpose driven.EmbedPurpose) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingPrefix + c.inner.Model() + ":" + string(purpose) + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(s string, dims int) ([]float32, bool) {
	if dims <= 0 || len(s) != 4*dims {
		return nil, false
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[4*i : 4*i+4])))
	}
	return v, true
}
