package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-crawl/internal/retry"
)

// DefaultEmbedBatchSize matches the largest request Cohere accepts
const DefaultEmbedBatchSize = 96

// EmbeddingBatcherConfig holds dependencies for EmbeddingBatcher.
type EmbeddingBatcherConfig struct {
	Embedder driven.Embedder

	// BatchSize caps texts per Embedder call
	BatchSize int

	// Dimensions every vector must have; 0 uses Embedder.Dimensions()
	Dimensions int

	// Pause is the unconditional gap after each batch before the next starts
	Pause time.Duration

	// RequestsPerSecond caps Embedder calls, retries included; 0 means unlimited
	RequestsPerSecond float64

	// Concurrency > 1 embeds batches in parallel; order is still preserved
	Concurrency int

	// Retry applies to document batches; QueryRetry to single queries
	Retry      retry.Policy
	QueryRetry retry.Policy

	Logger *slog.Logger
}

// EmbeddingBatcher partitions texts into bounded batches, embeds each with
// retry and returns vectors aligned with the input.
type EmbeddingBatcher struct {
	embedder    driven.Embedder
	batchSize   int
	dimensions  int
	pause       time.Duration
	concurrency int
	limiter     *rate.Limiter
	retry       retry.Policy
	queryRetry  retry.Policy
	logger      *slog.Logger
}

// NewEmbeddingBatcher creates an EmbeddingBatcher
func NewEmbeddingBatcher(cfg EmbeddingBatcherConfig) *EmbeddingBatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = cfg.Embedder.Dimensions()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = domain.IsRetryable
	}
	if cfg.QueryRetry.MaxAttempts == 0 {
		cfg.QueryRetry = retry.QueryPolicy()
	}
	if cfg.QueryRetry.Retryable == nil {
		cfg.QueryRetry.Retryable = domain.IsRetryable
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	if cfg.QueryRetry.Logger == nil {
		cfg.QueryRetry.Logger = logger
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EmbeddingBatcher{
		embedder:    cfg.Embedder,
		batchSize:   cfg.BatchSize,
		dimensions:  cfg.Dimensions,
		pause:       cfg.Pause,
		concurrency: cfg.Concurrency,
		limiter:     limiter,
		retry:       cfg.Retry.WithName("embed batch"),
		queryRetry:  cfg.QueryRetry.WithName("embed query"),
		logger:      logger,
	}
}

// Dimensions returns the vector size this batcher enforces
func (b *EmbeddingBatcher) Dimensions() int {
	return b.dimensions
}

// Model returns the underlying embedding model name
func (b *EmbeddingBatcher) Model() string {
	return b.embedder.Model()
}

// EmbedBatch embeds texts for storage. The result has the same length and
// order as texts; on any failure no vectors are returned.
func (b *EmbeddingBatcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.embedAll(ctx, texts, driven.PurposeDocument)
}

// EmbedQuery embeds a single search query with the query retry policy.
// Blank queries are rejected without a remote call.
func (b *EmbeddingBatcher) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	vectors, err := retry.Value(ctx, b.queryRetry, func(ctx context.Context) ([][]float32, error) {
		return b.callEmbedder(ctx, []string{query}, driven.PurposeQuery)
	})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (b *EmbeddingBatcher) embedAll(ctx context.Context, texts []string, purpose driven.EmbedPurpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrValidation, i)
		}
	}

	batches := partition(len(texts), b.batchSize)
	results := make([][]float32, len(texts))

	embedOne := func(ctx context.Context, n int, span [2]int) error {
		// a batch already issued runs to completion; a cancelled run starts no more
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := texts[span[0]:span[1]]
		vectors, err := retry.Value(ctx, b.retry, func(ctx context.Context) ([][]float32, error) {
			return b.callEmbedder(ctx, batch, purpose)
		})
		if err != nil {
			return fmt.Errorf("batch %d/%d: %w", n+1, len(batches), err)
		}
		copy(results[span[0]:span[1]], vectors)
		b.logger.Debug("embedded batch", "batch", n+1, "of", len(batches), "size", len(batch))
		if n < len(batches)-1 {
			return retry.Sleep(ctx, b.pause)
		}
		return nil
	}

	if b.concurrency == 1 {
		for n, span := range batches {
			if err := embedOne(ctx, n, span); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for n, span := range batches {
		g.Go(func() error {
			return embedOne(gctx, n, span)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// callEmbedder makes one remote call and checks the response shape
func (b *EmbeddingBatcher) callEmbedder(ctx context.Context, texts []string, purpose driven.EmbedPurpose) ([][]float32, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	vectors, err := b.embedder.Embed(ctx, texts, purpose)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
			domain.ErrInvalidVector, len(vectors), len(texts))
	}
	if err := domain.ValidateVectors(vectors, b.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

// partition splits n items into contiguous [start, end) spans of at most size
func partition(n, size int) [][2]int {
	var spans [][2]int
	for start := 0; start < n; start += size {
		spans = append(spans, [2]int{start, min(start+size, n)})
	}
	return spans
}
