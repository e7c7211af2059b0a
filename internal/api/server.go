// Package api exposes the HTTP interface for the llms.txt service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sitebrief/llmstxt-crawler/internal/controller"
	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

// Server wires HTTP handlers to the job controller.
type Server struct {
	router chi.Router
	jobs   *controller.Controller
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The gatherer
// backs the /metrics endpoint; pass nil for the default registry.
func NewServer(jobs *controller.Controller, logger *zap.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{jobs: jobs, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.submitCrawl)
			r.Get("/", s.listCrawls)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Post("/cancel", s.cancelCrawl)
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

// submitCrawlRequest is the submission payload. The API key is handed to
// the controller and is never echoed or logged.
type submitCrawlRequest struct {
	WebsiteURL   string   `json:"website_url"`
	URLFilters   []string `json:"url_filters"`
	GeminiAPIKey string   `json:"gemini_api_key"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req submitCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", s.logger)
		return
	}
	job, err := s.jobs.StartJob(r.Context(), controller.StartRequest{
		SeedURL: req.WebsiteURL,
		Filters: req.URLFilters,
		APIKey:  req.GeminiAPIKey,
	})
	if err != nil {
		if errors.Is(err, crawl.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error(), s.logger)
			return
		}
		s.logger.Error("submit crawl", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start crawl", s.logger)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID}, s.logger)
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	result, err := s.jobs.ListJobs(r.Context(), term)
	if err != nil {
		s.logger.Error("list crawls", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list crawls", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, result, s.logger)
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crawl.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found", s.logger)
			return
		}
		s.logger.Error("get crawl", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch job", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, job, s.logger)
}

func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.jobs.CancelJob(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, crawl.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found", s.logger)
		case errors.Is(err, crawl.ErrInvalidInput):
			writeError(w, http.StatusConflict, err.Error(), s.logger)
		default:
			s.logger.Error("cancel crawl", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to cancel job", s.logger)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *zap.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
