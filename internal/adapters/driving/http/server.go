// Package http exposes ingestion, search and validation as a JSON API.
package http

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
)

// HealthChecker is a dependency that can report its availability
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	ingestService     driving.IngestService
	retrievalService  driving.RetrievalService
	collectionService driving.CollectionService

	// Infrastructure
	embedder HealthChecker // readiness check (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// CORSOrigins enables CORS for the listed origins; empty disables it
	CORSOrigins []string

	// WriteTimeout bounds a response; ingestion requests run inline
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		Version:      "dev",
		WriteTimeout: 10 * time.Minute,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	ingestService driving.IngestService,
	retrievalService driving.RetrievalService,
	collectionService driving.CollectionService,
	embedder HealthChecker, // can be nil
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	s := &Server{
		router:            http.NewServeMux(),
		version:           cfg.Version,
		logger:            logger,
		ingestService:     ingestService,
		retrievalService:  retrievalService,
		collectionService: collectionService,
		embedder:          embedder,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.CORSOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.CORSOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Collection and records
	s.router.HandleFunc("GET /api/v1/collection", s.handleCollectionInfo)
	s.router.HandleFunc("GET /api/v1/records/{id}", s.handleGetRecord)
	s.router.HandleFunc("DELETE /api/v1/records/{id}", s.handleDeleteRecord)

	// Retrieval
	s.router.HandleFunc("POST /api/v1/search", s.handleSearch)
	s.router.HandleFunc("POST /api/v1/validate", s.handleValidate)

	// Ingestion
	s.router.HandleFunc("POST /api/v1/ingest", s.handleIngest)
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until ctx is cancelled or a
// shutdown signal arrives, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
