package driving

import (
	"context"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

// RetrievalService answers and validates similarity queries
type RetrievalService interface {
	// Validate runs the full connect, embed, search, check pipeline.
	// Only invalid input is returned as an error; pipeline failures are
	// reported in the report itself.
	Validate(ctx context.Context, query string, k int) (*domain.ValidationReport, error)

	// Search embeds query and returns at most k ranked results
	Search(ctx context.Context, query string, k int) (*domain.SearchResponse, error)
}

// CollectionService exposes record and collection administration
type CollectionService interface {
	// Info returns the collection schema and point count
	Info(ctx context.Context) (*domain.CollectionInfo, error)

	// Get returns a stored record, or domain.ErrNotFound
	Get(ctx context.Context, id string) (*domain.Record, error)

	// Delete removes a stored record. Returns false if the delete failed.
	Delete(ctx context.Context, id string) bool

	// Healthy reports whether the vector store answers
	Healthy(ctx context.Context) bool
}
