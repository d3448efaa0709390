// Package qdrant implements the vector index port against Qdrant's REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorIndex = (*Index)(nil)

// Index implements driven.VectorIndex using Qdrant
type Index struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds Qdrant connection configuration
type Config struct {
	// URL is the Qdrant endpoint (e.g., http://localhost:6333)
	URL string

	// APIKey is sent as the api-key header when set
	APIKey string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		URL:     baseURL,
		Timeout: 30 * time.Second,
	}
}

// NewIndex creates a new Qdrant-backed VectorIndex
func NewIndex(cfg Config) (*Index, error) {
	baseURL, err := ValidateEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Index{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// ValidateEndpoint checks that endpoint is an absolute http(s) URL and
// returns it without a trailing slash.
func ValidateEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("%w: invalid qdrant endpoint: %v", domain.ErrInvalidInput, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: qdrant endpoint must be an http(s) URL, got %q", domain.ErrInvalidInput, endpoint)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// pointID accepts both UUID strings and unsigned integer ids
type pointID string

func (p *pointID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = pointID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid point id %s", data)
	}
	*p = pointID(n.String())
	return nil
}

type qdrantPoint struct {
	ID      pointID        `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Score   float64        `json:"score,omitempty"`
}

type upsertPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type collectionResponse struct {
	Result struct {
		PointsCount *int64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// CreateCollection creates the collection. An existing collection is not an error.
func (s *Index) CreateCollection(ctx context.Context, c domain.Collection) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.VectorSize,
			"distance": string(c.Distance),
		},
	}
	err := s.doJSON(ctx, http.MethodPut, s.collectionPath(c.Name), body, nil)
	var se *domain.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
		return nil
	}
	return err
}

// DescribeCollection returns schema and point count
func (s *Index) DescribeCollection(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	var resp collectionResponse
	if err := s.doJSON(ctx, http.MethodGet, s.collectionPath(name), nil, &resp); err != nil {
		return nil, err
	}

	info := &domain.CollectionInfo{
		Collection: domain.Collection{
			Name:       name,
			VectorSize: resp.Result.Config.Params.Vectors.Size,
			Distance:   domain.Distance(resp.Result.Config.Params.Vectors.Distance),
		},
	}
	if resp.Result.PointsCount != nil {
		info.PointCount = *resp.Result.PointsCount
	}
	return info, nil
}

// Upsert inserts or replaces points and waits for the write to apply
func (s *Index) Upsert(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]upsertPoint, len(records))
	for i, r := range records {
		points[i] = upsertPoint{ID: r.ID, Vector: r.Vector, Payload: r.Payload}
	}
	body := map[string]any{"points": points}
	return s.doJSON(ctx, http.MethodPut, s.collectionPath(collection)+"/points?wait=true", body, nil)
}

// Retrieve returns the points that exist among ids
func (s *Index) Retrieve(ctx context.Context, collection string, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"ids":          ids,
		"with_payload": true,
		"with_vector":  true,
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collection)+"/points", body, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Result))
	for _, p := range resp.Result {
		records = append(records, domain.Record{ID: string(p.ID), Vector: p.Vector, Payload: p.Payload})
	}
	return records, nil
}

// Delete removes points by id
func (s *Index) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return s.doJSON(ctx, http.MethodPost, s.collectionPath(collection)+"/points/delete?wait=true", body, nil)
}

// Search returns the nearest points by descending score
func (s *Index) Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = domain.DefaultSearchK
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []qdrantPoint `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath(collection)+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, p := range resp.Result {
		results = append(results, domain.SearchResult{ID: string(p.ID), Score: p.Score, Payload: p.Payload})
	}
	return results, nil
}

// HealthCheck verifies Qdrant is reachable
func (s *Index) HealthCheck(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (s *Index) collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

// doJSON sends body as JSON and decodes a 2xx response into out.
// Non-2xx responses become *domain.StatusError.
func (s *Index) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.StatusError{
			Service:    "qdrant",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse qdrant response: %w", err)
	}
	return nil
}
