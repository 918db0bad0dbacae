// Package server exposes the concept graph and generation queue over HTTP.
// It is a thin shim: request decoding, validation, and status mapping live
// here, everything else is store, worker, and apply engine behavior.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"lexigraph/pkg/apply"
	"lexigraph/pkg/generate"
	"lexigraph/pkg/metrics"
	"lexigraph/pkg/store"
	"lexigraph/pkg/trace"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	store          *store.SQLiteStore
	engine         *apply.Engine
	adminKey       string
	metrics        metrics.Collector
	metricsHandler http.Handler
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the metrics collector (default: no-op).
func WithMetrics(c metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = c
	}
}

// WithMetricsHandler mounts an exposition handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a server. adminKey guards every mutating route; an empty
// key rejects all mutations.
func New(st *store.SQLiteStore, engine *apply.Engine, adminKey string, opts ...Option) *Server {
	s := &Server{
		store:    st,
		engine:   engine,
		adminKey: adminKey,
		metrics:  &metrics.NoopCollector{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route tree. Read routes are open, mutating routes
// sit behind the admin key middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestMetrics)

	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)

		r.Get("/concepts", s.handleListConcepts)
		r.Get("/versions/{id}", s.handleGetVersion)
		r.Get("/roots", s.handleListRoots)
		r.Get("/export/tree", s.handleExportTree)

		r.Get("/sentences", s.handleListSentences)
		r.Get("/sentences/{id}", s.handleGetSentence)
		r.Get("/sentences/{id}/children", s.handleListChildSentences)

		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/artifacts", s.handleListArtifacts)
		r.Get("/artifacts/{id}", s.handleGetArtifact)
		r.Get("/phrases/{id}/notes", s.handleListPhraseNotes)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdminKey)

			r.Get("/admin/ping", s.handleAdminPing)

			r.Post("/concepts", s.handleCreateConcept)
			r.Post("/concepts/{id}/versions", s.handleNextVersion)
			r.Delete("/concepts/{id}", s.handleDeleteConcept)
			r.Delete("/versions/{id}", s.handleDeleteVersion)

			r.Post("/versions/{id}/phrases", s.handleAddPhrase)
			r.Put("/phrases/{id}", s.handleUpdatePhrase)
			r.Delete("/phrases/{id}", s.handleDeletePhrase)
			r.Put("/phrases/{id}/move", s.handleMovePhrase)

			r.Post("/versions/{id}/children", s.handleAddChild)
			r.Delete("/versions/{id}/children/{childID}", s.handleRemoveChild)

			r.Post("/sentences", s.handleCreateSentence)
			r.Post("/sentences/{id}/children", s.handleCreateChildSentence)

			r.Post("/generate", s.handleGenerate)
			r.Post("/artifacts/{id}/apply", s.handleApplyArtifact)
			r.Delete("/artifacts/{id}", s.handleDeleteArtifact)
		})
	})

	return r
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps domain sentinels onto HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrLastVersion):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, generate.ErrSchemaMismatch):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.metrics.RecordError(r.Context(), operation, trace.ClassifyError(err))
		s.logger.Error("request failed", "operation", operation, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// urlID parses a numeric path parameter. A zero return means the error
// response has already been written.
func (s *Server) urlID(w http.ResponseWriter, r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0
	}
	return id
}

// decode parses and validates a JSON request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := validateStruct(v); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminPing(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
