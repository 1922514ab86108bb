package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pantrylab/recipe-archiver/internal/jobs"
)

type createJobRequest struct {
	URL               string `json:"url"`
	CrawlDepth        int    `json:"crawl_depth"`
	RecipeName        string `json:"recipe_name"`
	RecipeDescription string `json:"recipe_description"`
	ForceOverride     bool   `json:"force_override"`
}

type actionRequest struct {
	Action string `json:"action"`
}

type listJobsResponse struct {
	Jobs   []jobs.Job `json:"jobs"`
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Limit  int        `json:"limit"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.service.CreateJob(r.Context(), jobs.CreateParams{
		URL:               req.URL,
		UserID:            userIDFrom(r.Context()),
		CrawlDepth:        req.CrawlDepth,
		RecipeName:        req.RecipeName,
		RecipeDescription: req.RecipeDescription,
		ForceOverride:     req.ForceOverride,
	})
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrInvalidURL), errors.Is(err, jobs.ErrUnreachableURL):
			writeError(w, s.logger, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrRateLimited):
			writeError(w, s.logger, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, s.logger, http.StatusInternalServerError, "failed to create job")
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	archived := r.URL.Query().Get("archived") == "true"
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	list, total, err := s.jobStore.List(r.Context(), userID, archived, offset, limit)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:   list,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) applyAction(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid JSON")
		return
	}
	action, err := jobs.ParseAction(req.Action)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.service.Apply(r.Context(), job, action)
	if err != nil {
		if errors.Is(err, jobs.ErrNotRetryable) {
			writeError(w, s.logger, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, s.logger, http.StatusInternalServerError, "failed to apply action")
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

// getContent returns a presigned URL into the job's most recent crawl
// attempt. Only successful jobs have servable content.
func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusSuccess {
		writeError(w, s.logger, http.StatusBadRequest, "job has no successful crawl")
		return
	}

	locs, err := s.locations.ListByJob(r.Context(), job.ID)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "failed to look up content")
		return
	}
	if len(locs) == 0 {
		writeError(w, s.logger, http.StatusNotFound, "no stored content for job")
		return
	}

	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		relPath = "index.html"
	}
	url, err := s.signer.PresignedURL(locs[0], relPath, s.cfg.Storage.PresignExpiry())
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "failed to sign content url")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// ownedJob loads the routed job and enforces that the caller owns it.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (jobs.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, s.logger, http.StatusNotFound, "job not found")
		} else {
			writeError(w, s.logger, http.StatusInternalServerError, "failed to load job")
		}
		return jobs.Job{}, false
	}
	if job.UserID != userIDFrom(r.Context()) {
		writeError(w, s.logger, http.StatusForbidden, "job belongs to another user")
		return jobs.Job{}, false
	}
	return job, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
