package driving

import (
	"context"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

// IngestOptions bounds one ingestion run
type IngestOptions struct {
	MaxPages int
	// DryRun stops after chunking: nothing is embedded or stored
	DryRun bool
}

// IngestService crawls a site and stores its chunks in the vector index
type IngestService interface {
	// Ingest crawls seed and stores every chunk. The result is returned even
	// on failure so callers can report partial progress; Complete is only
	// true when every write succeeded.
	Ingest(ctx context.Context, seed string, opts IngestOptions) (*domain.IngestResult, error)
}
