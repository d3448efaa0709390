package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
)

// Verify interface compliance
var (
	_ driving.RetrievalService  = (*RetrievalValidator)(nil)
	_ driving.CollectionService = (*RetrievalValidator)(nil)
)

// RetrievalValidatorConfig holds dependencies for RetrievalValidator.
type RetrievalValidatorConfig struct {
	Batcher *EmbeddingBatcher
	Gateway *VectorStoreGateway
	Logger  *slog.Logger

	// Now is overridable for tests
	Now func() time.Time
}

// RetrievalValidator embeds a query, searches the vector store and checks
// the returned results. Stages run in order and stop at the first failure:
// connect, embed, search, validate.
type RetrievalValidator struct {
	batcher *EmbeddingBatcher
	gateway *VectorStoreGateway
	logger  *slog.Logger
	now     func() time.Time
}

// NewRetrievalValidator creates a new RetrievalValidator
func NewRetrievalValidator(cfg RetrievalValidatorConfig) *RetrievalValidator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RetrievalValidator{
		batcher: cfg.Batcher,
		gateway: cfg.Gateway,
		logger:  logger,
		now:     cfg.Now,
	}
}

// ValidateQuery rejects blank queries and out-of-range k before any remote call
func ValidateQuery(query string, k int) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	if k < domain.MinSearchK || k > domain.MaxSearchK {
		return fmt.Errorf("%w: k must be between %d and %d, got %d",
			domain.ErrValidation, domain.MinSearchK, domain.MaxSearchK, k)
	}
	return nil
}

// Validate runs the full pipeline and returns a report. Only invalid input
// is returned as an error.
func (v *RetrievalValidator) Validate(ctx context.Context, query string, k int) (*domain.ValidationReport, error) {
	if err := ValidateQuery(query, k); err != nil {
		return nil, err
	}

	start := v.now()
	report := &domain.ValidationReport{Query: query, K: k}
	fail := func(stage string, err error) (*domain.ValidationReport, error) {
		report.Outcome = domain.OutcomeFailed
		report.FailedStage = stage
		report.Error = err.Error()
		report.Elapsed = v.now().Sub(start)
		v.logger.Warn("retrieval validation failed", "query", query, "stage", stage, "error", err)
		return report, nil
	}

	// Step 1: Connect and inspect the collection
	info, err := v.gateway.CollectionInfo(ctx)
	if err != nil {
		return fail(domain.StageConnect, err)
	}
	report.Collection = info
	v.logger.Info("connected to collection",
		"collection", info.Name,
		"points", info.PointCount,
		"vector_size", info.VectorSize,
		"distance", info.Distance)

	// Step 2: Embed the query
	vector, err := v.batcher.EmbedQuery(ctx, query)
	if err != nil {
		return fail(domain.StageEmbed, err)
	}

	// Step 3: Search
	results := v.gateway.Search(ctx, vector, k)
	report.ResultCount = len(results)

	// Step 4: Check every result
	invalid := 0
	for i, r := range results {
		check := domain.CheckResult(i+1, r)
		if !check.Valid {
			invalid++
		}
		report.Checks = append(report.Checks, check)
	}

	switch {
	case len(results) == 0:
		report.Outcome = domain.OutcomeNoResults
	case invalid > 0:
		report.Outcome = domain.OutcomeInvalid
	default:
		report.Outcome = domain.OutcomePassed
	}
	report.Elapsed = v.now().Sub(start)

	v.logger.Info("retrieval validation finished",
		"query", query,
		"outcome", report.Outcome,
		"results", report.ResultCount,
		"invalid", invalid,
		"elapsed", report.Elapsed)
	return report, nil
}

// Search embeds query and returns up to k ranked results. An embedding
// failure is returned as a stage error; search failures yield no results.
func (v *RetrievalValidator) Search(ctx context.Context, query string, k int) (*domain.SearchResponse, error) {
	if err := ValidateQuery(query, k); err != nil {
		return nil, err
	}
	start := v.now()

	vector, err := v.batcher.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.NewStageError(domain.StageEmbed, err)
	}
	results := v.gateway.Search(ctx, vector, k)
	if results == nil {
		results = []domain.SearchResult{}
	}

	return &domain.SearchResponse{
		Query:   query,
		Results: results,
		Took:    v.now().Sub(start),
	}, nil
}

// Info returns the collection schema and point count
func (v *RetrievalValidator) Info(ctx context.Context) (*domain.CollectionInfo, error) {
	info, err := v.gateway.CollectionInfo(ctx)
	if err != nil {
		return nil, domain.NewStageError(domain.StageConnect, err)
	}
	return info, nil
}

// Get returns a stored record by id
func (v *RetrievalValidator) Get(ctx context.Context, id string) (*domain.Record, error) {
	rec, ok := v.gateway.Retrieve(ctx, id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

// Delete removes a stored record by id
func (v *RetrievalValidator) Delete(ctx context.Context, id string) bool {
	return v.gateway.Delete(ctx, id)
}

// Healthy reports whether the vector store answers
func (v *RetrievalValidator) Healthy(ctx context.Context) bool {
	return v.gateway.HealthCheck(ctx)
}
