// Package api exposes the HTTP interface for the recipe archiver service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/config"
	"github.com/pantrylab/recipe-archiver/internal/jobs"
	"github.com/pantrylab/recipe-archiver/internal/metrics"
)

// ContentSigner mints time-limited URLs into a crawl attempt's storage.
type ContentSigner interface {
	PresignedURL(loc jobs.StorageLocation, relPath string, expiry time.Duration) (string, error)
}

// Server wires HTTP handlers to the job service and stores.
type Server struct {
	router    chi.Router
	service   *jobs.Service
	jobStore  jobs.JobStore
	locations jobs.LocationStore
	signer    ContentSigner
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	service *jobs.Service,
	jobStore jobs.JobStore,
	locations jobs.LocationStore,
	signer ContentSigner,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		service:   service,
		jobStore:  jobStore,
		locations: locations,
		signer:    signer,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(time.Duration(cfg.Server.TimeoutSeconds) * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey, logger))
	}

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(userIdentityMiddleware(logger))
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Post("/action", s.applyAction)
				r.Get("/content", s.getContent)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, s.logger, status, payload)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
