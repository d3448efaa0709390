package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Supported embedding providers
const (
	ProviderCohere = "cohere"
	ProviderOpenAI = "openai"
)

// EmbeddingSettings selects and configures an embedding provider
type EmbeddingSettings struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// IsConfigured reports whether enough settings are present to build a client
func (s *EmbeddingSettings) IsConfigured() bool {
	return s.Provider != "" && s.APIKey != ""
}

// Factory creates embedding services based on configuration
type Factory struct{}

// NewFactory creates a new AI service factory
func NewFactory() *Factory {
	return &Factory{}
}

// CreateEmbedder creates an embedding service from settings.
// Returns nil without error when settings are absent.
func (f *Factory) CreateEmbedder(settings *EmbeddingSettings) (driven.Embedder, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	var (
		embedder driven.Embedder
		err      error
	)
	switch strings.ToLower(settings.Provider) {
	case ProviderCohere:
		embedder, err = NewCohereEmbedding(settings.APIKey, settings.Model, settings.BaseURL, settings.Timeout)
	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedding(settings.APIKey, settings.Model, settings.BaseURL, settings.Dimensions, settings.Timeout)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
	if err != nil {
		return nil, err
	}
	return embedder, nil
}
