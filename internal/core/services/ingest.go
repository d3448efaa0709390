package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-crawl/internal/crawler"
	"github.com/custodia-labs/sercha-crawl/internal/normalisers"
)

// Verify interface compliance
var _ driving.IngestService = (*IngestionService)(nil)

// Ingestion defaults
const (
	DefaultChunkSize      = 500
	DefaultStoreBatchSize = 50
	DefaultLockTTL        = 30 * time.Minute
)

// IngestionServiceConfig holds dependencies for IngestionService.
type IngestionServiceConfig struct {
	Crawler     *crawler.Crawler
	Normalisers driven.NormaliserRegistry
	Chunker     driven.Chunker
	Batcher     *EmbeddingBatcher
	Gateway     *VectorStoreGateway

	// Lock is optional; when set, one ingestion per origin runs at a time
	Lock    driven.DistributedLock
	LockTTL time.Duration

	ChunkSize      int
	StoreBatchSize int

	Logger *slog.Logger
}

// IngestionService drives crawl, normalise, chunk, embed and store.
type IngestionService struct {
	crawler        *crawler.Crawler
	normalisers    driven.NormaliserRegistry
	chunker        driven.Chunker
	batcher        *EmbeddingBatcher
	gateway        *VectorStoreGateway
	lock           driven.DistributedLock
	lockTTL        time.Duration
	chunkSize      int
	storeBatchSize int
	logger         *slog.Logger
}

// NewIngestionService creates a new IngestionService.
// Batcher and Gateway may be nil for a service that only supports dry runs.
func NewIngestionService(cfg IngestionServiceConfig) *IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.StoreBatchSize <= 0 {
		cfg.StoreBatchSize = DefaultStoreBatchSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Normalisers == nil {
		cfg.Normalisers = normalisers.DefaultRegistry()
	}

	return &IngestionService{
		crawler:        cfg.Crawler,
		normalisers:    cfg.Normalisers,
		chunker:        cfg.Chunker,
		batcher:        cfg.Batcher,
		gateway:        cfg.Gateway,
		lock:           cfg.Lock,
		lockTTL:        cfg.LockTTL,
		chunkSize:      cfg.ChunkSize,
		storeBatchSize: cfg.StoreBatchSize,
		logger:         logger,
	}
}

// pageHandler receives the chunks of one page; an error aborts the crawl
type pageHandler func(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

// Ingest crawls seed and stores every chunk it produces.
func (s *IngestionService) Ingest(ctx context.Context, seed string, opts driving.IngestOptions) (*domain.IngestResult, error) {
	start := time.Now()

	seedURL, err := crawler.ValidateSeed(seed)
	if err != nil {
		return nil, domain.NewStageError(domain.StageCrawl, err)
	}
	if !opts.DryRun && (s.batcher == nil || s.gateway == nil) {
		return nil, domain.NewStageError(domain.StageConnect,
			fmt.Errorf("%w: no embedder or vector store configured", domain.ErrServiceUnavailable))
	}

	// Serialise runs per origin
	if s.lock != nil && !opts.DryRun {
		name := "ingest:" + crawler.Origin(seedURL)
		acquired, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			return nil, domain.NewStageError(domain.StageLock, err)
		}
		if !acquired {
			return nil, domain.NewStageError(domain.StageLock,
				fmt.Errorf("%w: %s", domain.ErrIngestInProgress, crawler.Origin(seedURL)))
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), name); err != nil {
				s.logger.Warn("failed to release ingestion lock", "lock", name, "error", err)
			}
		}()
	}

	result := &domain.IngestResult{Seed: seed, DryRun: opts.DryRun}
	s.logger.Info("starting ingestion", "seed", seed, "max_pages", opts.MaxPages, "dry_run", opts.DryRun)

	handle := func(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
		if opts.DryRun {
			return nil
		}
		ids, err := s.store(ctx, doc, chunks)
		result.RecordIDs = append(result.RecordIDs, ids...)
		return err
	}

	err = s.walk(ctx, seed, opts.MaxPages, result, handle)
	result.Took = time.Since(start)
	if err != nil {
		s.logger.Error("ingestion failed",
			"seed", seed,
			"records", len(result.RecordIDs),
			"error", err)
		return result, err
	}

	result.Complete = !opts.DryRun
	s.logger.Info("ingestion complete",
		"seed", seed,
		"visited", len(result.Visited),
		"indexed", result.Count(domain.PageIndexed),
		"skipped", result.Count(domain.PageSkipped),
		"failed", result.Count(domain.PageFailed),
		"chunks", result.Chunks,
		"records", len(result.RecordIDs),
		"duration", result.Took)
	return result, nil
}

// CollectChunks crawls seed and returns every chunk in visitation order
// along with the visited URLs. Nothing is embedded or stored.
func (s *IngestionService) CollectChunks(ctx context.Context, seed string, maxPages int) ([]domain.Chunk, []string, error) {
	var chunks []domain.Chunk
	result := &domain.IngestResult{Seed: seed, DryRun: true}
	err := s.walk(ctx, seed, maxPages, result, func(ctx context.Context, doc *domain.Document, page []domain.Chunk) error {
		chunks = append(chunks, page...)
		return nil
	})
	return chunks, result.Visited, err
}

// walk crawls seed, normalises and chunks every page and hands the chunks to
// handle. Page reports are accumulated into result.
func (s *IngestionService) walk(ctx context.Context, seed string, maxPages int, result *domain.IngestResult, handle pageHandler) error {
	stats, err := s.crawler.Crawl(ctx, seed, maxPages, func(ctx context.Context, page *domain.Page) error {
		doc := s.normalise(page)
		report := domain.PageReport{URL: page.URL, Title: doc.Title}

		chunks, cerr := s.chunker.Chunk(page.URL, doc.Text, s.chunkSize)
		if cerr != nil {
			report.Status = domain.PageSkipped
			report.Reason = cerr.Error()
			result.Pages = append(result.Pages, report)
			s.logger.Info("skipping page", "url", page.URL, "reason", cerr)
			return nil
		}
		for i := range chunks {
			chunks[i] = chunks[i].WithSource(page.URL)
		}

		if err := handle(ctx, doc, chunks); err != nil {
			report.Status = domain.PageFailed
			report.Reason = err.Error()
			result.Pages = append(result.Pages, report)
			return err
		}

		report.Status = domain.PageIndexed
		report.Chunks = len(chunks)
		result.Pages = append(result.Pages, report)
		result.Chunks += len(chunks)
		s.logger.Info("processed page", "url", page.URL, "title", doc.Title, "chunks", len(chunks))
		return nil
	})

	if stats != nil {
		result.Visited = stats.Visited
		for _, u := range stats.Visited {
			if reason, ok := stats.Failures[u]; ok {
				result.Pages = append(result.Pages, domain.PageReport{URL: u, Status: domain.PageFailed, Reason: reason})
			}
		}
	}
	if err != nil {
		var stageErr *domain.StageError
		if errors.As(err, &stageErr) {
			return err
		}
		return domain.NewStageError(domain.StageCrawl, err)
	}
	return nil
}

// normalise converts a fetched page into plain text with a title
func (s *IngestionService) normalise(page *domain.Page) *domain.Document {
	doc := &domain.Document{URL: page.URL, Title: normalisers.UntitledContent}

	contentType := page.ContentType
	if contentType == "" {
		contentType = "text/html"
	}
	if page.IsHTML() {
		doc.Title = normalisers.ExtractTitle(page.Body)
	}

	n := s.normalisers.Get(contentType)
	if n == nil {
		s.logger.Debug("no normaliser for content type", "url", page.URL, "content_type", contentType)
		return doc
	}
	doc.Text = strings.TrimSpace(n.Normalise(page.Body, contentType))
	return doc
}

// store embeds the chunks of one document and writes them in store batches.
// Ids of records written before a failure are still returned.
func (s *IngestionService) store(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.batcher.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, domain.NewStageError(domain.StageEmbed, err)
	}

	metadata := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		metadata[i] = map[string]any{
			domain.PayloadSourceURL:   c.SourceURL,
			domain.PayloadSourceTitle: doc.Title,
			domain.PayloadChunkID:     c.ID,
			domain.PayloadChunkIndex:  c.Index,
			domain.PayloadWordCount:   c.WordCount,
			domain.PayloadModel:       s.batcher.Model(),
		}
	}

	var ids []string
	for start := 0; start < len(chunks); start += s.storeBatchSize {
		end := min(start+s.storeBatchSize, len(chunks))
		batchIDs, err := s.gateway.UpsertBatch(ctx, texts[start:end], vectors[start:end], metadata[start:end])
		if err != nil {
			return ids, domain.NewStageError(domain.StageStore, err)
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}
