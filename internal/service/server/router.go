package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domain "github.com/ovoronin/audiobook-manager/internal/domain/catalog"
	"github.com/ovoronin/audiobook-manager/internal/logger"
	repository "github.com/ovoronin/audiobook-manager/internal/repository/catalog"
)

// newRouter assembles the HTTP surface with middleware driven by the
// behavioral parameters.
func newRouter(svc *service, params *Params) http.Handler {
	router := chi.NewRouter()

	router.Use(recoverMiddleware)

	if params.AccessLog {
		router.Use(accessLogMiddleware)
	}

	if params.ExposeServerHeader {
		router.Use(serverHeaderMiddleware(svc.appName()))
	}

	router.Get("/", svc.handleIndex)
	router.Get("/health", svc.handleHealth)

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/status", svc.handleStatus)
		api.Get("/search", svc.handleSearch)
		api.Get("/queue", svc.handleQueue)
		api.Post("/download/{resultID}", svc.handleDownload)
		api.Get("/download/status/{jobID}", svc.handleDownloadStatus)
		api.Delete("/download/{jobID}", svc.handleCancelDownload)
	})

	return router
}

// appName returns the configured application name with a stable fallback.
func (s *service) appName() string {
	if s.cfg.App != nil && s.cfg.App.Name != "" {
		return s.cfg.App.Name
	}

	return "audiobook-manager"
}

// handleIndex identifies the service. The web UI assets live outside this
// binary, so the root answers with the same identity payload the probes use.
func (s *service) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{
		"service": s.appName(),
	})
}

// handleHealth is the liveness probe.
func (s *service) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.appName(),
	})
}

// handleStatus reports application, system and queue state.
func (s *service) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.Status(r.Context())
	if err != nil {
		respondError(r.Context(), w, http.StatusInternalServerError, "failed to collect status")
		return
	}

	respondJSON(r.Context(), w, http.StatusOK, report)
}

// searchResponse is the payload of the search endpoint.
type searchResponse struct {
	Query   string                 `json:"query"`
	Results []*domain.SearchResult `json:"results"`
	Count   int                    `json:"count"`
}

// handleSearch returns stored catalog results for a query.
func (s *service) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := s.Search(r.Context(), query, limit)
	if err != nil {
		respondError(r.Context(), w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(r.Context(), w, http.StatusOK, &searchResponse{
		Query:   query,
		Results: results,
		Count:   len(results),
	})
}

// queueResponse is the payload of the queue endpoint.
type queueResponse struct {
	Jobs  []*domain.Job `json:"jobs"`
	Count int           `json:"count"`
}

// handleQueue lists download jobs, newest first.
func (s *service) handleQueue(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := s.Queue(r.Context(), limit)
	if err != nil {
		respondError(r.Context(), w, http.StatusInternalServerError, "failed to list queue")
		return
	}

	respondJSON(r.Context(), w, http.StatusOK, &queueResponse{
		Jobs:  jobs,
		Count: len(jobs),
	})
}

// downloadResponse is the payload of the enqueue endpoint.
type downloadResponse struct {
	Message string        `json:"message"`
	JobID   uint          `json:"job_id"`
	Title   string        `json:"title"`
	Status  domain.Status `json:"status"`
}

// handleDownload enqueues a download for a stored search result.
func (s *service) handleDownload(w http.ResponseWriter, r *http.Request) {
	resultID, ok := parseID(r.Context(), w, chi.URLParam(r, "resultID"))
	if !ok {
		return
	}

	job, result, err := s.Enqueue(r.Context(), resultID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(r.Context(), w, http.StatusNotFound, "search result not found")
			return
		}

		respondError(r.Context(), w, http.StatusInternalServerError, "failed to start download")

		return
	}

	respondJSON(r.Context(), w, http.StatusOK, &downloadResponse{
		Message: "Download started",
		JobID:   job.ID,
		Title:   result.Title,
		Status:  job.Status,
	})
}

// handleDownloadStatus returns the state of one download job.
func (s *service) handleDownloadStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseID(r.Context(), w, chi.URLParam(r, "jobID"))
	if !ok {
		return
	}

	job, err := s.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(r.Context(), w, http.StatusNotFound, "download job not found")
			return
		}

		respondError(r.Context(), w, http.StatusInternalServerError, "failed to get download status")

		return
	}

	respondJSON(r.Context(), w, http.StatusOK, job)
}

// handleCancelDownload cancels a job and optionally removes its files.
func (s *service) handleCancelDownload(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseID(r.Context(), w, chi.URLParam(r, "jobID"))
	if !ok {
		return
	}

	deleteFiles, _ := strconv.ParseBool(r.URL.Query().Get("delete_files"))

	job, err := s.Cancel(r.Context(), jobID, deleteFiles)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			respondError(r.Context(), w, http.StatusNotFound, "download job not found")
		case errors.Is(err, ErrJobFinished):
			respondError(r.Context(), w, http.StatusConflict, "download job already finished")
		default:
			respondError(r.Context(), w, http.StatusInternalServerError, "failed to cancel download")
		}

		return
	}

	respondJSON(r.Context(), w, http.StatusOK, map[string]any{
		"message": "Download cancelled",
		"job_id":  job.ID,
	})
}

// parseID converts a path parameter into a job or result identifier.
func parseID(ctx context.Context, w http.ResponseWriter, raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		respondError(ctx, w, http.StatusBadRequest, "invalid identifier")
		return 0, false
	}

	return uint(id), true
}

// respondJSON writes a JSON payload with the given status code.
func respondJSON(ctx context.Context, w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.ErrorKV(ctx, "Failed to encode response", "error", err)
	}
}

// respondError writes an error payload with the given status code.
func respondError(ctx context.Context, w http.ResponseWriter, code int, message string) {
	respondJSON(ctx, w, code, map[string]string{"error": message})
}
