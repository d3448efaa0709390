package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Ensure CohereEmbedding implements Embedder
var _ driven.Embedder = (*CohereEmbedding)(nil)

const (
	// DefaultCohereModel is used when no model is configured
	DefaultCohereModel = "embed-english-v3.0"

	defaultCohereBaseURL = "https://api.cohere.com"
)

// Model dimensions for Cohere embedding models
var cohereModelDimensions = map[string]int{
	"embed-english-v3.0":            1024,
	"embed-multilingual-v3.0":       1024,
	"embed-english-light-v3.0":      384,
	"embed-multilingual-light-v3.0": 384,
}

// Cohere distinguishes stored documents from search queries
var cohereInputTypes = map[driven.EmbedPurpose]string{
	driven.PurposeDocument: "search_document",
	driven.PurposeQuery:    "search_query",
}

// CohereEmbedding implements Embedder using Cohere's embed API
type CohereEmbedding struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	client     *http.Client
}

// NewCohereEmbedding creates a new Cohere embedding service
func NewCohereEmbedding(apiKey, model, baseURL string, timeout time.Duration) (*CohereEmbedding, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Cohere API key is required", domain.ErrInvalidInput)
	}
	if model == "" {
		model = DefaultCohereModel
	}
	if baseURL == "" {
		baseURL = defaultCohereBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	dimensions, ok := cohereModelDimensions[model]
	if !ok {
		dimensions = 1024
	}

	return &CohereEmbedding{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// cohereEmbedRequest is the request body for the Cohere embed API
type cohereEmbedRequest struct {
	Texts          []string `json:"texts"`
	Model          string   `json:"model"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
	Truncate       string   `json:"truncate,omitempty"`
}

// cohereEmbedResponse is the response from the Cohere embed API
type cohereEmbedResponse struct {
	ID         string `json:"id"`
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message,omitempty"`
}

// Embed generates embeddings for multiple texts
func (e *CohereEmbedding) Embed(ctx context.Context, texts []string, purpose driven.EmbedPurpose) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputType, ok := cohereInputTypes[purpose]
	if !ok {
		inputType = cohereInputTypes[driven.PurposeDocument]
	}

	resp, err := e.doRequest(ctx, cohereEmbedRequest{
		Texts:          texts,
		Model:          e.model,
		InputType:      inputType,
		EmbeddingTypes: []string{"float"},
		Truncate:       "END",
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings.Float) != len(texts) {
		return nil, fmt.Errorf("%w: cohere returned %d embeddings for %d texts",
			domain.ErrInvalidVector, len(resp.Embeddings.Float), len(texts))
	}
	return resp.Embeddings.Float, nil
}

// Dimensions returns the embedding dimension size
func (e *CohereEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *CohereEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *CohereEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"health check"}, driven.PurposeQuery)
	return err
}

// Close releases resources held by the embedding service
func (e *CohereEmbedding) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// doRequest makes a request to the Cohere embed API
func (e *CohereEmbedding) doRequest(ctx context.Context, reqBody cohereEmbedRequest) (*cohereEmbedResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cohere request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrTransient, err)
	}

	var embResp cohereEmbedResponse
	decodeErr := json.Unmarshal(respBody, &embResp)

	if resp.StatusCode != http.StatusOK {
		msg := embResp.Message
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, statusError("cohere", resp.StatusCode, msg, retryAfter(resp.Header))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	return &embResp, nil
}

// statusError builds the domain error for a non-2xx response. Throttling is
// wrapped so the retry policy can honour the server's Retry-After.
func statusError(service string, code int, body string, wait time.Duration) error {
	if len(body) > 512 {
		body = body[:512]
	}
	serr := &domain.StatusError{Service: service, StatusCode: code, Body: body}
	if code == http.StatusTooManyRequests {
		return &domain.RateLimitError{RetryAfter: wait, Err: serr}
	}
	return serr
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
