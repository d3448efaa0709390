package driven

import (
	"context"
)

// EmbedPurpose tells the provider how the vectors will be used.
// Some providers embed documents and queries differently.
type EmbedPurpose string

const (
	PurposeDocument EmbedPurpose = "document"
	PurposeQuery    EmbedPurpose = "query"
)

// Embedder converts text into fixed-dimension vectors
type Embedder interface {
	// Embed generates one vector per input text, in input order.
	// Rate limiting must be distinguishable via domain.IsRateLimit.
	Embed(ctx context.Context, texts []string, purpose EmbedPurpose) ([][]float32, error)

	// Dimensions returns the embedding dimension size
	Dimensions() int

	// Model returns the model name being used
	Model() string

	// HealthCheck verifies the embedding service is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the embedding service
	Close() error
}
