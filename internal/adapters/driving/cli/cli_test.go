package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-crawl/internal/config"
	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
)

type stubIngest struct {
	seed   string
	opts   driving.IngestOptions
	result *domain.IngestResult
	err    error
}

func (s *stubIngest) Ingest(ctx context.Context, seed string, opts driving.IngestOptions) (*domain.IngestResult, error) {
	s.seed, s.opts = seed, opts
	return s.result, s.err
}

type stubRetrieval struct {
	query  string
	k      int
	report *domain.ValidationReport
	resp   *domain.SearchResponse
	err    error
}

func (s *stubRetrieval) Validate(ctx context.Context, query string, k int) (*domain.ValidationReport, error) {
	s.query, s.k = query, k
	return s.report, s.err
}

func (s *stubRetrieval) Search(ctx context.Context, query string, k int) (*domain.SearchResponse, error) {
	s.query, s.k = query, k
	return s.resp, s.err
}

type stubCollection struct {
	info    *domain.CollectionInfo
	err     error
	deleted string
	ok      bool
}

func (s *stubCollection) Info(ctx context.Context) (*domain.CollectionInfo, error) { return s.info, s.err }
func (s *stubCollection) Get(ctx context.Context, id string) (*domain.Record, error) {
	return nil, domain.ErrNotFound
}
func (s *stubCollection) Delete(ctx context.Context, id string) bool {
	s.deleted = id
	return s.ok
}
func (s *stubCollection) Healthy(ctx context.Context) bool { return true }

type harness struct {
	ingest     *stubIngest
	retrieval  *stubRetrieval
	collection *stubCollection
	builds     []BuildOptions
	cfg        *config.Config
	closed     bool
	served     bool
	buildErr   error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{"EMBEDDING_PROVIDER", "VECTOR_BACKEND", "COLLECTION", "QDRANT_URL", "PORT", "HOST"} {
		t.Setenv(k, "")
	}
	t.Setenv("EMBEDDING_API_KEY", "test-key")
	return &harness{
		ingest:     &stubIngest{},
		retrieval:  &stubRetrieval{},
		collection: &stubCollection{ok: true},
	}
}

func (h *harness) build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Services, error) {
	h.builds = append(h.builds, opts)
	h.cfg = cfg
	if h.buildErr != nil {
		return nil, h.buildErr
	}
	return &Services{
		Ingest:     h.ingest,
		Retrieval:  h.retrieval,
		Collection: h.collection,
		Serve: func(ctx context.Context) error {
			h.served = true
			return nil
		},
		Close: func() error {
			h.closed = true
			return nil
		},
	}, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(h.build, VersionInfo{Version: "1.2.3", Commit: "abc", Date: "today"})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cfgPath := filepath.Join(t.TempDir(), "absent.yaml")
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd(nil, VersionInfo{})

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ingest", "validate", "search", "info", "delete", "serve", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.Equal(t, config.DefaultPath, cmd.PersistentFlags().Lookup("config").DefValue)
}

func TestVersionCmd(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "sercha-crawl 1.2.3")
	assert.Contains(t, out, "Commit: abc")
	assert.Empty(t, h.builds)
}

func TestIngestCmd(t *testing.T) {
	h := newHarness(t)
	h.ingest.result = &domain.IngestResult{
		Seed:    "https://example.com",
		Visited: []string{"https://example.com/", "https://example.com/gone"},
		Pages: []domain.PageReport{
			{URL: "https://example.com/", Status: domain.PageIndexed, Chunks: 3},
			{URL: "https://example.com/gone", Status: domain.PageFailed, Reason: "fetch returned status 404"},
		},
		Chunks:   3,
		Complete: true,
	}

	out, err := h.run(t, "ingest", "https://example.com", "--max-pages", "5")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com", h.ingest.seed)
	assert.Equal(t, 5, h.ingest.opts.MaxPages)
	assert.False(t, h.ingest.opts.DryRun)
	assert.Equal(t, []BuildOptions{{}}, h.builds)
	assert.True(t, h.closed)
	assert.Contains(t, out, "[indexed] https://example.com/ (3 chunks)")
	assert.Contains(t, out, "[failed] https://example.com/gone: fetch returned status 404")
	assert.Contains(t, out, "Visited 2 pages: 1 indexed, 0 skipped, 1 failed")
}

func TestIngestCmd_DryRunSkipsStoreAndValidation(t *testing.T) {
	h := newHarness(t)
	t.Setenv("EMBEDDING_API_KEY", "")
	h.ingest.result = &domain.IngestResult{DryRun: true, Chunks: 9}

	out, err := h.run(t, "ingest", "https://example.com", "--dry-run")

	require.NoError(t, err)
	assert.True(t, h.ingest.opts.DryRun)
	assert.Equal(t, []BuildOptions{{CrawlOnly: true}}, h.builds)
	assert.Contains(t, out, "9 chunks chunked (dry run)")
}

func TestIngestCmd_StageErrorPropagates(t *testing.T) {
	h := newHarness(t)
	h.ingest.result = &domain.IngestResult{Chunks: 3}
	h.ingest.err = domain.NewStageError(domain.StageEmbed, domain.ErrPersistentService)

	out, err := h.run(t, "ingest", "https://example.com")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed:")
	assert.Contains(t, out, "Ingestion incomplete")
}

func TestIngestCmd_JSON(t *testing.T) {
	h := newHarness(t)
	h.ingest.result = &domain.IngestResult{Seed: "https://example.com", Chunks: 2, Complete: true}

	out, err := h.run(t, "ingest", "https://example.com", "--json")

	require.NoError(t, err)
	var got domain.IngestResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.Chunks)
}

func TestIngestCmd_InvalidMaxPages(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "ingest", "https://example.com", "--max-pages", "0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max-pages must be positive")
	assert.Empty(t, h.builds)
}

func TestIngestCmd_RequiresURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestValidateCmd_Passed(t *testing.T) {
	h := newHarness(t)
	h.retrieval.report = &domain.ValidationReport{
		Query:   "goroutines",
		K:       2,
		Outcome: domain.OutcomePassed,
		Collection: &domain.CollectionInfo{
			Collection: domain.Collection{Name: "book_embeddings", VectorSize: 3, Distance: domain.DistanceCosine},
			PointCount: 10,
		},
		ResultCount: 1,
		Checks: []domain.ResultCheck{{
			Rank:  1,
			Valid: true,
			Result: domain.SearchResult{ID: "a", Score: 0.91, Payload: map[string]any{
				domain.PayloadText:      "goroutines are lightweight threads",
				domain.PayloadSourceURL: "https://go.dev/",
			}},
		}},
	}

	out, err := h.run(t, "validate", "goroutines", "--k", "2")

	require.NoError(t, err)
	assert.Equal(t, "goroutines", h.retrieval.query)
	assert.Equal(t, 2, h.retrieval.k)
	assert.Contains(t, out, "Collection book_embeddings: 10 points")
	assert.Contains(t, out, "[1] 0.9100 ok https://go.dev/")
	assert.Contains(t, out, "Outcome: passed")
}

func TestValidateCmd_FailureExitsNonZero(t *testing.T) {
	tests := []struct {
		name    string
		report  *domain.ValidationReport
		wantErr string
	}{
		{
			name:    "no results",
			report:  &domain.ValidationReport{Outcome: domain.OutcomeNoResults},
			wantErr: "validation failed: no_results",
		},
		{
			name: "invalid results",
			report: &domain.ValidationReport{Outcome: domain.OutcomeInvalid, Checks: []domain.ResultCheck{
				{Rank: 1, Issues: []string{"empty text"}},
			}},
			wantErr: "validation failed: invalid_results",
		},
		{
			name:    "connect stage",
			report:  &domain.ValidationReport{Outcome: domain.OutcomeFailed, FailedStage: domain.StageConnect, Error: "refused"},
			wantErr: "connect: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.retrieval.report = tt.report

			_, err := h.run(t, "validate", "q")

			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestValidateCmd_JSON(t *testing.T) {
	h := newHarness(t)
	h.retrieval.report = &domain.ValidationReport{Query: "q", K: 5, Outcome: domain.OutcomeNoResults}

	out, err := h.run(t, "validate", "q", "--json")

	require.Error(t, err)
	var got domain.ValidationReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, domain.OutcomeNoResults, got.Outcome)
}

func TestValidateCmd_InvalidConfig(t *testing.T) {
	h := newHarness(t)
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("COHERE_API_KEY", "")

	_, err := h.run(t, "validate", "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Empty(t, h.builds)
}

func TestSearchCmd(t *testing.T) {
	h := newHarness(t)
	h.retrieval.resp = &domain.SearchResponse{Query: "q", Results: []domain.SearchResult{
		{ID: "a", Score: 0.5, Payload: map[string]any{
			domain.PayloadSourceTitle: "Effective Go",
			domain.PayloadSourceURL:   "https://go.dev/doc/effective_go",
			domain.PayloadText:        "channels orchestrate goroutines",
		}},
	}}

	out, err := h.run(t, "search", "q", "-k", "1")

	require.NoError(t, err)
	assert.Equal(t, 1, h.retrieval.k)
	assert.Contains(t, out, "[1] Effective Go (0.5000)")
	assert.Contains(t, out, "Source: https://go.dev/doc/effective_go")
}

func TestSearchCmd_NoResults(t *testing.T) {
	h := newHarness(t)
	h.retrieval.resp = &domain.SearchResponse{Results: []domain.SearchResult{}}

	out, err := h.run(t, "search", "q")

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSearchK, h.retrieval.k)
	assert.Contains(t, out, "No results found.")
}

func TestInfoCmd(t *testing.T) {
	h := newHarness(t)
	h.collection.info = &domain.CollectionInfo{
		Collection: domain.Collection{Name: "docs", VectorSize: 1024, Distance: domain.DistanceDot},
		PointCount: 7,
	}

	out, err := h.run(t, "--collection", "docs", "info")

	require.NoError(t, err)
	assert.Equal(t, "docs", h.cfg.VectorStore.Collection)
	assert.Contains(t, out, "Vector size: 1024")
	assert.Contains(t, out, "Points:      7")
}

func TestInfoCmd_ConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.collection.err = domain.NewStageError(domain.StageConnect, errors.New("dial tcp: refused"))

	_, err := h.run(t, "info")

	require.Error(t, err)
	assert.Equal(t, "connect: dial tcp: refused", err.Error())
}

func TestDeleteCmd(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "delete", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", h.collection.deleted)
	assert.Contains(t, out, "Deleted rec-1")

	h.collection.ok = false
	_, err = h.run(t, "delete", "rec-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store:")
}

func TestServeCmd(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "serve", "--port", "9999")

	require.NoError(t, err)
	assert.True(t, h.served)
	assert.Equal(t, 9999, h.cfg.Server.Port)
	assert.Contains(t, out, "Listening on 0.0.0.0:9999")
}

func TestFlagOverrides(t *testing.T) {
	h := newHarness(t)
	t.Setenv("OPENAI_API_KEY", "oa")
	h.collection.info = &domain.CollectionInfo{}

	_, err := h.run(t, "--provider", "openai", "--backend", "qdrant", "info")

	require.NoError(t, err)
	assert.Equal(t, "openai", h.cfg.Embedding.Provider)
	assert.Equal(t, "qdrant", h.cfg.VectorStore.Backend)
}

func TestBuildError(t *testing.T) {
	h := newHarness(t)
	h.buildErr = fmt.Errorf("connect: %w", domain.ErrServiceUnavailable)

	_, err := h.run(t, "info")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
