// Package httpapi exposes the retrieval engine over a chi-routed JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/chunker"
	"github.com/aramb-dev/agentkit/internal/domain"
	logpkg "github.com/aramb-dev/agentkit/internal/logger"
	"github.com/aramb-dev/agentkit/internal/metrics"
	hybriduc "github.com/aramb-dev/agentkit/internal/usecase/hybrid"
	ingestuc "github.com/aramb-dev/agentkit/internal/usecase/ingest"
	retrieveuc "github.com/aramb-dev/agentkit/internal/usecase/retrieve"
)

// EmbedderFactory builds an embedder for a model identifier. Used by the
// admin model-switch endpoint.
type EmbedderFactory func(model string) domain.Embedder

// HealthChecker reports readiness of a dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NamedCheck pairs a health checker with the name it reports under.
type NamedCheck struct {
	Name    string
	Checker HealthChecker
}

// Server wires the usecase services into HTTP handlers.
type Server struct {
	ingest    *ingestuc.Service
	retrieve  *retrieveuc.Service
	hybrid    *hybriduc.Service
	embedders EmbedderFactory
	health    []NamedCheck
	logger    *zap.Logger
}

// NewServer creates the API server.
func NewServer(
	ingest *ingestuc.Service,
	retrieve *retrieveuc.Service,
	hybrid *hybriduc.Service,
	embedders EmbedderFactory,
	health []NamedCheck,
	logger *zap.Logger,
) *Server {
	return &Server{
		ingest:    ingest,
		retrieve:  retrieve,
		hybrid:    hybrid,
		embedders: embedders,
		health:    health,
		logger:    logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger())
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/namespaces", s.handleListNamespaces)
		r.Route("/namespaces/{namespace}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteNamespace)
			r.Get("/documents", s.handleListDocuments)
			r.Post("/documents", s.handleIngest)
			r.Delete("/documents/{documentID}", s.handleDeleteDocument)
			r.Post("/retrieve", s.handleRetrieve)
			r.Post("/hybrid", s.handleHybrid)
			r.Post("/reindex", s.handleReindex)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Post("/embedding-model", s.handleSetEmbeddingModel)
			r.Post("/default-k", s.handleSetDefaultK)
			r.Post("/chunking", s.handleSetChunking)
			r.Post("/cache/clear", s.handleClearCache)
			r.Get("/cache/stats", s.handleCacheStats)
			r.Get("/stats", s.handleStats)
		})
	})

	return r
}

// requestLogger derives a per-request logger carrying the chi request ID,
// stores it in the context for handlers, and emits one canonical line per
// request. Propagates X-Request-ID back to the caller.
func (s *Server) requestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := s.logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var req struct {
		Text           string `json:"text"`
		DocumentID     string `json:"document_id"`
		SessionID      string `json:"session_id"`
		SourceFilename string `json:"source_filename"`
		ChunkSize      int    `json:"chunk_size"`
		Overlap        int    `json:"overlap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Document text is required")
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ingestuc.Request{
		Text:           req.Text,
		Namespace:      namespace,
		SessionID:      req.SessionID,
		SourceFilename: req.SourceFilename,
		DocumentID:     req.DocumentID,
		ChunkSize:      req.ChunkSize,
		Overlap:        req.Overlap,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": res.DocumentID,
		"chunk_count": res.ChunkCount,
	})
}

func (s *Server) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	infos, err := s.ingest.ListNamespaces(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]map[string]any, len(infos))
	for i, info := range infos {
		items[i] = map[string]any{
			"name":           info.Name,
			"document_count": info.DocumentCount,
			"chunk_count":    info.ChunkCount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespaces": items})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	docs, err := s.ingest.ListDocuments(r.Context(), namespace)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]map[string]any, len(docs))
	for i, d := range docs {
		items[i] = map[string]any{
			"document_id":     d.DocumentID,
			"source_filename": d.SourceFilename,
			"chunk_count":     d.ChunkCount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": items})
}

func (s *Server) handleDeleteNamespace(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	if err := s.ingest.DeleteNamespace(r.Context(), namespace); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	documentID := chi.URLParam(r, "documentID")

	count, err := s.ingest.DeleteDocument(r.Context(), namespace, documentID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_chunks": count})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var req struct {
		Query    string `json:"query"`
		K        int    `json:"k"`
		UseCache *bool  `json:"use_cache"` // omitted = true
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Query is required")
		return
	}
	useCache := req.UseCache == nil || *req.UseCache

	chunks, err := s.retrieve.RetrieveChunks(r.Context(), namespace, req.Query, req.K, useCache)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		items[i] = map[string]any{
			"citation":        c.CitationIndex,
			"text":            c.Text,
			"document_id":     c.DocumentID,
			"chunk_index":     c.ChunkIndex,
			"source_filename": c.SourceFilename,
			"distance":        c.Distance,
			"relevance":       c.Relevance,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":   items,
		"formatted": s.retrieve.FormatAnswer(r.Context(), namespace, req.Query, chunks, nil),
	})
}

func (s *Server) handleHybrid(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	var req struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Query is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"formatted": s.hybrid.Retrieve(r.Context(), namespace, req.Query, req.K),
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	count, err := s.ingest.ReindexNamespace(r.Context(), namespace)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reindexed_chunks": count})
}

func (s *Server) handleSetEmbeddingModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Model is required")
		return
	}

	// Both paths must move together: documents embedded under one model are
	// unreachable from queries embedded under another.
	embedder := s.embedders(req.Model)
	s.retrieve.SetEmbedder(embedder)
	s.ingest.SetEmbedder(embedder)
	writeJSON(w, http.StatusOK, map[string]any{"embedding_model": req.Model})
}

func (s *Server) handleSetDefaultK(w http.ResponseWriter, r *http.Request) {
	var req struct {
		K int `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if err := s.retrieve.SetDefaultK(req.K); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"default_k": req.K})
}

func (s *Server) handleSetChunking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkSize int `json:"chunk_size"`
		Overlap   int `json:"overlap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if err := s.ingest.SetChunking(chunker.Config{Size: req.ChunkSize, Overlap: req.Overlap}); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chunk_size": req.ChunkSize,
		"overlap":    req.Overlap,
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.retrieve.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.retrieve.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_size":     stats.Size,
		"cache_capacity": stats.Capacity,
		"cache_enabled":  stats.Enabled,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retrieve.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	chunking := s.ingest.Chunking()
	writeJSON(w, http.StatusOK, map[string]any{
		"embedding_model": stats.EmbeddingModel,
		"config": map[string]any{
			"default_k":     stats.DefaultK,
			"query_timeout": stats.QueryTimeout.String(),
			"chunk_size":    chunking.Size,
			"overlap":       chunking.Overlap,
		},
		"queries":        stats.Queries,
		"failures":       stats.Failures,
		"avg_latency_ms": stats.AvgLatency.Milliseconds(),
		"cache_stats": map[string]any{
			"cache_size":     stats.Cache.Size,
			"cache_capacity": stats.Cache.Capacity,
			"cache_enabled":  stats.Cache.Enabled,
		},
		"collections": stats.Namespaces,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.health))
	for _, c := range s.health {
		if err := c.Checker.HealthCheck(r.Context()); err != nil {
			checks[c.Name] = "down"
			status = http.StatusServiceUnavailable
			logpkg.FromContext(r.Context()).Warn("health check failed",
				zap.String("check", c.Name), zap.Error(err))
		} else {
			checks[c.Name] = "up"
		}
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNamespaceNotFound):
		writeError(w, http.StatusNotFound, "namespace_not_found", domain.ErrNamespaceNotFound.Error())
	case errors.Is(err, domain.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, "document_not_found", domain.ErrDocumentNotFound.Error())
	case errors.Is(err, domain.ErrChunkConfig):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrVectorDimMismatch):
		writeError(w, http.StatusBadRequest, "vector_dim_mismatch", domain.ErrVectorDimMismatch.Error())
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		writeError(w, http.StatusBadGateway, "embedding_unavailable", domain.ErrEmbeddingUnavailable.Error())
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		writeError(w, http.StatusServiceUnavailable, "retrieval_unavailable", domain.ErrRetrievalUnavailable.Error())
	case errors.Is(err, domain.ErrWebSearchUnavailable):
		writeError(w, http.StatusBadGateway, "web_search_unavailable", domain.ErrWebSearchUnavailable.Error())
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
