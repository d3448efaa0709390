package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Ensure OpenAIEmbedding implements Embedder
var _ driven.Embedder = (*OpenAIEmbedding)(nil)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedding implements Embedder using OpenAI's embedding API
type OpenAIEmbedding struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	baseURL    string
	dimensions int
	// reduced is true when dimensions were requested below the model default
	reduced bool
}

// NewOpenAIEmbedding creates a new OpenAI embedding service.
// dimensions <= 0 uses the model's native size.
func NewOpenAIEmbedding(apiKey, model, baseURL string, dimensions int, timeout time.Duration) (*OpenAIEmbedding, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", domain.ErrInvalidInput)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	native, ok := openAIModelDimensions[model]
	if !ok {
		// Default to 1536 for unknown models
		native = 1536
	}
	reduced := dimensions > 0 && dimensions != native && strings.HasPrefix(model, "text-embedding-3")
	if dimensions <= 0 || !reduced {
		dimensions = native
	}

	httpClient := &http.Client{Timeout: timeout}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = httpClient

	return &OpenAIEmbedding{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		model:      model,
		baseURL:    cfg.BaseURL,
		dimensions: dimensions,
		reduced:    reduced,
	}, nil
}

// Embed generates embeddings for multiple texts. OpenAI embeds documents and
// queries the same way, so purpose is ignored.
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string, purpose driven.EmbedPurpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequestStrings{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.reduced {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	// Sort by index to ensure order matches input
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", domain.ErrInvalidVector, i)
		}
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	// Make a small embedding request to verify connectivity
	_, err := e.Embed(ctx, []string{"health check"}, driven.PurposeQuery)
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// classifyOpenAIError maps client errors onto the domain retry taxonomy
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, apiErr.Message, 0)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, reqErr.Error(), 0)
	}
	return fmt.Errorf("openai request failed: %w", err)
}
