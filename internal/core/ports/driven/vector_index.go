package driven

import (
	"context"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

// VectorIndex stores (vector, payload) records keyed by id and answers
// nearest-neighbour queries. Implementations: Qdrant, Postgres+pgvector.
type VectorIndex interface {
	// CreateCollection creates the collection. Creating an existing
	// collection must not fail.
	CreateCollection(ctx context.Context, c domain.Collection) error

	// DescribeCollection returns schema and point count.
	// Returns domain.ErrNotFound if the collection does not exist.
	DescribeCollection(ctx context.Context, name string) (*domain.CollectionInfo, error)

	// Upsert inserts or replaces records by id
	Upsert(ctx context.Context, collection string, records []domain.Record) error

	// Retrieve returns the records that exist among ids, with vectors
	Retrieve(ctx context.Context, collection string, ids []string) ([]domain.Record, error)

	// Delete removes records by id. Missing ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Search returns at most limit results ordered by descending score
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.SearchResult, error)

	// HealthCheck verifies the index is reachable
	HealthCheck(ctx context.Context) error
}
