package driven

import (
	"context"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
)

// Fetcher retrieves a single URL. Non-2xx responses are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.Page, error)
}
