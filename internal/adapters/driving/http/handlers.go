package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"query is required"`
	Stage string `json:"stage,omitempty" example:"embed"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports per-dependency readiness
// @Description Readiness of the vector store and embedder
type ReadyResponse struct {
	Status      string `json:"status" example:"ready"`
	VectorStore string `json:"vector_store" example:"ok"`
	Embedder    string `json:"embedder,omitempty" example:"ok"`
}

// ingestRequest is the body of POST /api/v1/ingest
type ingestRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages,omitempty"`
	DryRun   bool   `json:"dry_run,omitempty"`
}

// IngestResponse carries the run summary, plus the error when the run failed
// @Description Ingestion summary
type IngestResponse struct {
	Result *domain.IngestResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
	Stage  string               `json:"stage,omitempty"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the vector store and the embedding provider
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", VectorStore: "ok"}
	status := http.StatusOK

	if !s.collectionService.Healthy(r.Context()) {
		resp.VectorStore = "unavailable"
		resp.Status = "not ready"
		status = http.StatusServiceUnavailable
	}
	if s.embedder != nil {
		resp.Embedder = "ok"
		if err := s.embedder.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("embedder health check failed", "error", err)
			resp.Embedder = "unavailable"
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Tags         Health
// @Produce      json
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Collection endpoints

// handleCollectionInfo godoc
// @Summary      Collection info
// @Description  Returns the collection schema and point count
// @Tags         Collection
// @Produce      json
// @Success      200  {object}  domain.CollectionInfo
// @Failure      503  {object}  ErrorResponse  "Vector store unreachable"
// @Router       /api/v1/collection [get]
func (s *Server) handleCollectionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.collectionService.Info(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleGetRecord godoc
// @Summary      Get record
// @Tags         Collection
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      200  {object}  domain.Record
// @Failure      404  {object}  ErrorResponse  "Record not found"
// @Router       /api/v1/records/{id} [get]
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "record id is required")
		return
	}

	record, err := s.collectionService.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDeleteRecord godoc
// @Summary      Delete record
// @Tags         Collection
// @Param        id   path      string  true  "Record ID"
// @Success      204
// @Failure      502  {object}  ErrorResponse  "Delete failed"
// @Router       /api/v1/records/{id} [delete]
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "record id is required")
		return
	}

	if !s.collectionService.Delete(r.Context(), id) {
		writeError(w, http.StatusBadGateway, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Retrieval endpoints

// handleSearch godoc
// @Summary      Similarity search
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Param        request  body      domain.SearchRequest  true  "Search query"
// @Success      200      {object}  domain.SearchResponse
// @Failure      400      {object}  ErrorResponse  "Invalid query or k"
// @Router       /api/v1/search [post]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.retrievalService.Search(r.Context(), req.Query, req.K)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleValidate godoc
// @Summary      Validate retrieval
// @Description  Runs connect, embed, search and check, returning the report.
// @Description  A failing report is still a 200; only bad input is an error.
// @Tags         Retrieval
// @Accept       json
// @Produce      json
// @Param        request  body      domain.SearchRequest  true  "Validation query"
// @Success      200      {object}  domain.ValidationReport
// @Failure      400      {object}  ErrorResponse  "Invalid query or k"
// @Router       /api/v1/validate [post]
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	report, err := s.retrievalService.Validate(r.Context(), req.Query, req.K)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Ingestion endpoints

// handleIngest godoc
// @Summary      Ingest a site
// @Description  Crawls the URL and stores every chunk. Runs to completion before responding.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Param        request  body      ingestRequest  true  "Seed URL and limits"
// @Success      200      {object}  IngestResponse
// @Failure      400      {object}  ErrorResponse  "Invalid URL"
// @Failure      409      {object}  IngestResponse "Ingestion already running for this site"
// @Failure      502      {object}  IngestResponse "A pipeline stage failed"
// @Router       /api/v1/ingest [post]
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	result, err := s.ingestService.Ingest(r.Context(), req.URL, driving.IngestOptions{
		MaxPages: req.MaxPages,
		DryRun:   req.DryRun,
	})
	if err != nil {
		s.logger.Error("ingestion failed", "url", req.URL, "error", err)
		writeJSON(w, statusForError(err), IngestResponse{
			Result: result,
			Error:  err.Error(),
			Stage:  stageOf(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{Result: result})
}

// Helper functions

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (domain.SearchRequest, bool) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return req, false
	}
	if req.K == 0 {
		req.K = domain.DefaultSearchK
	}
	return req, true
}

// statusForError maps the domain error taxonomy onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIngestInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSchemaMismatch):
		return http.StatusConflict
	}
	var se *domain.StageError
	if errors.As(err, &se) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func stageOf(err error) string {
	var se *domain.StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= 500 {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Stage: stageOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
