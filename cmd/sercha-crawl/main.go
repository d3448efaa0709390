package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-crawl/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-crawl/internal/adapters/driven/postgres"
	"github.com/custodia-labs/sercha-crawl/internal/adapters/driven/qdrant"
	redisadapter "github.com/custodia-labs/sercha-crawl/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-crawl/internal/adapters/driven/web"
	"github.com/custodia-labs/sercha-crawl/internal/adapters/driving/cli"
	httpserver "github.com/custodia-labs/sercha-crawl/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-crawl/internal/config"
	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-crawl/internal/core/services"
	"github.com/custodia-labs/sercha-crawl/internal/crawler"
	"github.com/custodia-labs/sercha-crawl/internal/normalisers"
	"github.com/custodia-labs/sercha-crawl/internal/postprocessors"
	"github.com/custodia-labs/sercha-crawl/internal/retry"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	setupLogging(config.LogConfig{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCmd(build, cli.VersionInfo{Version: version, Commit: commit, Date: date})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler on stderr
func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// closers releases resources in reverse order of acquisition
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires adapters and services from cfg
func build(ctx context.Context, cfg *config.Config, opts cli.BuildOptions) (_ *cli.Services, err error) {
	setupLogging(cfg.Log)
	logger := slog.Default()

	var cleanup closers
	defer func() {
		if err != nil {
			_ = cleanup.Close()
		}
	}()

	// ===== Crawl pipeline (always needed) =====
	fetcher := web.NewFetcher(web.Config{
		UserAgent:    cfg.Crawl.UserAgent,
		Timeout:      cfg.Crawl.Timeout,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		Logger:       logger,
	})
	crawl := crawler.New(fetcher, crawler.Config{
		MaxPages:   cfg.Crawl.MaxPages,
		Delay:      cfg.Crawl.Delay,
		StripQuery: cfg.Crawl.StripQuery,
		Logger:     logger,
	})
	chunkCfg := postprocessors.DefaultChunkConfig()
	chunkCfg.MinWords = cfg.Chunk.MinWords
	chunker := postprocessors.NewChunker(chunkCfg)

	ingestCfg := services.IngestionServiceConfig{
		Crawler:        crawl,
		Normalisers:    normalisers.DefaultRegistry(),
		Chunker:        chunker,
		LockTTL:        cfg.Redis.LockTTL,
		ChunkSize:      cfg.Chunk.SizeWords,
		StoreBatchSize: cfg.VectorStore.StoreBatchSize,
		Logger:         logger,
	}

	if opts.CrawlOnly {
		return &cli.Services{Ingest: services.NewIngestionService(ingestCfg)}, nil
	}

	// ===== Redis (optional) =====
	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		log.Println("Connecting to Redis...")
		redisClient, err = redisadapter.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, domain.NewStageError(domain.StageConnect, err)
		}
		cleanup = append(cleanup, redisClient.Close)
		log.Println("Redis connected")
	}

	// ===== Embedder =====
	factory := ai.NewFactory()
	var embedder driven.Embedder
	embedder, err = factory.CreateEmbedder(&ai.EmbeddingSettings{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider not configured", domain.ErrServiceUnavailable)
	}
	cleanup = append(cleanup, embedder.Close)
	if redisClient != nil {
		embedder = redisadapter.NewCachedEmbedder(embedder, redisClient, cfg.Redis.CacheTTL, logger)
		log.Println("Using Redis embedding cache")
	}

	// ===== Vector index =====
	var (
		index driven.VectorIndex
		lock  driven.DistributedLock
	)
	switch strings.ToLower(cfg.VectorStore.Backend) {
	case "pgvector":
		log.Println("Connecting to PostgreSQL...")
		db, derr := postgres.Connect(ctx, postgres.DefaultConfig(cfg.VectorStore.DatabaseURL))
		if derr != nil {
			return nil, domain.NewStageError(domain.StageConnect, derr)
		}
		cleanup = append(cleanup, db.Close)
		index = postgres.NewVectorIndex(db)
		lock = postgres.NewAdvisoryLock(db)
		log.Println("PostgreSQL connected and schema initialized")
	default:
		qcfg := qdrant.DefaultConfig(cfg.VectorStore.URL)
		qcfg.APIKey = cfg.VectorStore.APIKey
		qcfg.Timeout = cfg.VectorStore.Timeout
		index, err = qdrant.NewIndex(qcfg)
		if err != nil {
			return nil, domain.NewStageError(domain.StageConnect, err)
		}
	}
	// Redis takes over locking whenever it is available
	if redisClient != nil {
		lock = redisadapter.NewLock(redisClient)
	}

	// ===== Services =====
	batcher := services.NewEmbeddingBatcher(services.EmbeddingBatcherConfig{
		Embedder:    embedder,
		BatchSize:   cfg.Embedding.BatchSize,
		Pause:       cfg.Embedding.Pause,
		Concurrency: cfg.Embedding.Concurrency,
		Retry:       embedPolicy(cfg.Retry, logger),
		QueryRetry:  embedPolicy(cfg.QueryRetry, logger),
		Logger:      logger,

		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})

	gateway, err := services.NewVectorStoreGateway(ctx, services.VectorStoreGatewayConfig{
		Index: index,
		Collection: domain.Collection{
			Name:       cfg.VectorStore.Collection,
			VectorSize: batcher.Dimensions(),
			Distance:   domain.Distance(cfg.VectorStore.Distance),
		},
		Retry:  storePolicy(cfg.Retry, logger),
		Logger: logger,
	})
	if err != nil {
		return nil, domain.NewStageError(domain.StageConnect, err)
	}
	log.Printf("Collection %s ready (%d dims)", cfg.VectorStore.Collection, batcher.Dimensions())

	ingestCfg.Batcher = batcher
	ingestCfg.Gateway = gateway
	ingestCfg.Lock = lock
	ingestion := services.NewIngestionService(ingestCfg)

	validator := services.NewRetrievalValidator(services.RetrievalValidatorConfig{
		Batcher: batcher,
		Gateway: gateway,
		Logger:  logger,
	})

	serve := func(ctx context.Context) error {
		server := httpserver.NewServer(httpserver.Config{
			Host:    cfg.Server.Host,
			Port:    cfg.Server.Port,
			Version: version,
			Logger:  logger,
		}, ingestion, validator, validator, embedder)
		return server.Start(ctx)
	}

	return &cli.Services{
		Ingest:     ingestion,
		Retrieval:  validator,
		Collection: validator,
		Serve:      serve,
		Close:      cleanup.Close,
	}, nil
}

// storePolicy retries vector store calls on any failure that is not
// permanent (validation, schema mismatch, cancellation)
func storePolicy(r config.RetryConfig, logger *slog.Logger) retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Logger:      logger,
	}
}

// embedPolicy retries only transient and rate-limited embedder failures
func embedPolicy(r config.RetryConfig, logger *slog.Logger) retry.Policy {
	p := storePolicy(r, logger)
	p.Retryable = domain.IsRetryable
	return p
}
