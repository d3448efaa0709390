package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-crawl/internal/retry"
)

// DefaultCollection is the collection written when none is configured
const DefaultCollection = "book_embeddings"

// VectorStoreGatewayConfig holds dependencies for VectorStoreGateway.
type VectorStoreGatewayConfig struct {
	Index      driven.VectorIndex
	Collection domain.Collection

	// Retry wraps every index call. Zero value uses retry.DefaultPolicy.
	Retry retry.Policy

	// Now and NewID are overridable for tests
	Now   func() time.Time
	NewID func() string

	Logger *slog.Logger
}

// VectorStoreGateway wraps a VectorIndex with one retry policy and makes sure
// the target collection exists with the expected schema before any write.
// Writes propagate failures; advisory reads degrade to empty results.
type VectorStoreGateway struct {
	index      driven.VectorIndex
	collection domain.Collection
	retry      retry.Policy
	now        func() time.Time
	newID      func() string
	logger     *slog.Logger
}

// NewVectorStoreGateway creates a gateway and ensures its collection exists.
func NewVectorStoreGateway(ctx context.Context, cfg VectorStoreGatewayConfig) (*VectorStoreGateway, error) {
	g := newGateway(cfg)
	if err := g.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

func newGateway(cfg VectorStoreGatewayConfig) *VectorStoreGateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = DefaultCollection
	}
	if cfg.Collection.Distance == "" {
		cfg.Collection.Distance = domain.DistanceCosine
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &VectorStoreGateway{
		index:      cfg.Index,
		collection: cfg.Collection,
		retry:      cfg.Retry,
		now:        cfg.Now,
		newID:      cfg.NewID,
		logger:     logger,
	}
}

// Collection returns the schema this gateway writes to
func (g *VectorStoreGateway) Collection() domain.Collection {
	return g.collection
}

// EnsureCollection creates the collection if it is absent. An existing
// collection with a different vector size is a schema mismatch.
func (g *VectorStoreGateway) EnsureCollection(ctx context.Context) error {
	want := g.collection
	if want.VectorSize <= 0 {
		return fmt.Errorf("%w: collection %q has no vector size", domain.ErrInvalidInput, want.Name)
	}
	if !want.Distance.Valid() {
		return fmt.Errorf("%w: unknown distance %q", domain.ErrInvalidInput, want.Distance)
	}

	return g.retry.WithName("ensure collection").Do(ctx, func(ctx context.Context) error {
		info, err := g.index.DescribeCollection(ctx, want.Name)
		if errors.Is(err, domain.ErrNotFound) {
			if err := g.index.CreateCollection(ctx, want); err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
			g.logger.Info("created collection",
				"collection", want.Name,
				"vector_size", want.VectorSize,
				"distance", want.Distance)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to describe collection: %w", err)
		}
		if info.VectorSize != want.VectorSize {
			return &domain.SchemaMismatchError{Expected: info.VectorSize, Got: want.VectorSize}
		}
		if info.Distance != "" && info.Distance != want.Distance {
			g.logger.Warn("collection distance differs from configuration",
				"collection", want.Name,
				"existing", info.Distance,
				"configured", want.Distance)
		}
		return nil
	})
}

// Upsert stores a single record and returns its generated id
func (g *VectorStoreGateway) Upsert(ctx context.Context, text string, vector []float32, metadata map[string]any) (string, error) {
	var meta []map[string]any
	if metadata != nil {
		meta = []map[string]any{metadata}
	}
	ids, err := g.UpsertBatch(ctx, []string{text}, [][]float32{vector}, meta)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// UpsertBatch stores one record per text and returns the generated ids in
// input order. metadata is merged positionally; missing entries are absent.
func (g *VectorStoreGateway) UpsertBatch(ctx context.Context, texts []string, vectors [][]float32, metadata []map[string]any) ([]string, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("%w: %d texts but %d vectors", domain.ErrInvalidInput, len(texts), len(vectors))
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if err := domain.ValidateVectors(vectors, g.collection.VectorSize); err != nil {
		return nil, err
	}

	createdAt := g.now().UTC().Format(time.RFC3339)
	records := make([]domain.Record, len(texts))
	ids := make([]string, len(texts))
	for i, text := range texts {
		payload := map[string]any{
			domain.PayloadText:      text,
			domain.PayloadWordCount: domain.CountWords(text),
			domain.PayloadCreatedAt: createdAt,
		}
		if i < len(metadata) {
			for k, v := range metadata[i] {
				payload[k] = v
			}
		}
		ids[i] = g.newID()
		records[i] = domain.Record{ID: ids[i], Vector: vectors[i], Payload: payload}
	}

	err := g.retry.WithName("upsert").Do(ctx, func(ctx context.Context) error {
		return g.index.Upsert(ctx, g.collection.Name, records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert %d records: %w", len(records), err)
	}
	return ids, nil
}

// Retrieve returns the record with id. The bool is false when the record is
// absent or the index could not be read.
func (g *VectorStoreGateway) Retrieve(ctx context.Context, id string) (*domain.Record, bool) {
	if strings.TrimSpace(id) == "" {
		return nil, false
	}
	records, err := retry.Value(ctx, g.retry.WithName("retrieve"), func(ctx context.Context) ([]domain.Record, error) {
		return g.index.Retrieve(ctx, g.collection.Name, []string{id})
	})
	if err != nil {
		g.logger.Warn("retrieve failed", "id", id, "error", err)
		return nil, false
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], true
		}
	}
	return nil, false
}

// Search returns at most limit results, most similar first. Failures
// degrade to an empty result.
func (g *VectorStoreGateway) Search(ctx context.Context, vector []float32, limit int) []domain.SearchResult {
	if limit < 1 {
		return nil
	}
	limit = min(limit, domain.MaxSearchK)
	if err := domain.ValidateVector(vector, g.collection.VectorSize); err != nil {
		g.logger.Warn("search rejected", "error", err)
		return nil
	}

	results, err := retry.Value(ctx, g.retry.WithName("search"), func(ctx context.Context) ([]domain.SearchResult, error) {
		return g.index.Search(ctx, g.collection.Name, vector, limit)
	})
	if err != nil {
		g.logger.Warn("search failed", "error", err)
		return nil
	}

	// Euclid scores are distances and arrive nearest first
	if g.collection.Distance != domain.DistanceEuclidean {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Delete removes the record with id. Returns false if the delete failed.
func (g *VectorStoreGateway) Delete(ctx context.Context, id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	err := g.retry.WithName("delete").Do(ctx, func(ctx context.Context) error {
		return g.index.Delete(ctx, g.collection.Name, []string{id})
	})
	if err != nil {
		g.logger.Warn("delete failed", "id", id, "error", err)
		return false
	}
	return true
}

// CollectionInfo returns the schema and point count of the collection.
func (g *VectorStoreGateway) CollectionInfo(ctx context.Context) (*domain.CollectionInfo, error) {
	info, err := retry.Value(ctx, g.retry.WithName("collection info"), func(ctx context.Context) (*domain.CollectionInfo, error) {
		return g.index.DescribeCollection(ctx, g.collection.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe collection %q: %w", g.collection.Name, err)
	}
	return info, nil
}

// HealthCheck reports whether the index is reachable. It never fails.
func (g *VectorStoreGateway) HealthCheck(ctx context.Context) bool {
	err := g.retry.WithName("health check").Do(ctx, func(ctx context.Context) error {
		return g.index.HealthCheck(ctx)
	})
	if err != nil {
		g.logger.Debug("vector index unhealthy", "error", err)
		return false
	}
	return true
}
