// Package jobs defines the crawl job entity, its state machine, and the
// orchestrator that drives jobs through it.
package jobs

import (
	"time"
)

// Status represents the lifecycle state of a crawl job.
type Status string

// Job status values persisted in the job store.
const (
	StatusPending         Status = "PENDING"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusSuccess         Status = "SUCCESS"
	StatusFailedRetryable Status = "FAILED_RETRYABLE"
	StatusFailedForever   Status = "FAILED_FOREVER"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailedForever
}

// Depth bounds for a crawl. Out-of-range inputs are clamped, not rejected.
const (
	MinDepth = 1
	MaxDepth = 5
)

// ClampDepth forces a requested crawl depth into [MinDepth, MaxDepth].
func ClampDepth(d int) int {
	if d < MinDepth {
		return MinDepth
	}
	if d > MaxDepth {
		return MaxDepth
	}
	return d
}

// Job represents one crawl request and its lifecycle state.
type Job struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	URL           string     `json:"url"`
	Status        Status     `json:"status"`
	ErrorCode     string     `json:"error_code,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CrawlDepth    int        `json:"crawl_depth"`
	Archived      bool       `json:"archived"`
	RecipeID      string     `json:"recipe_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
}

// Start transitions the job into IN_PROGRESS and stamps StartedAt.
// Transitions return an updated value rather than mutating in place so every
// LastUpdatedAt touch is explicit.
func (j Job) Start(now time.Time) Job {
	j.Status = StatusInProgress
	j.StartedAt = &now
	j.LastUpdatedAt = now
	return j
}

// Finish records the final status of a processing attempt and stamps
// FinishedAt regardless of outcome.
func (j Job) Finish(now time.Time, status Status, errorCode, errorMessage string) Job {
	j.Status = status
	j.ErrorCode = errorCode
	j.ErrorMessage = errorMessage
	j.FinishedAt = &now
	j.LastUpdatedAt = now
	return j
}

// ResetForRetry clears error fields and attempt timestamps and returns the
// job to PENDING. Callers must check the current status first.
func (j Job) ResetForRetry(now time.Time) Job {
	j.Status = StatusPending
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.FinishedAt = nil
	j.LastUpdatedAt = now
	return j
}

// MarkArchived soft-deletes the job. Legal from any state and idempotent.
func (j Job) MarkArchived(now time.Time) Job {
	j.Archived = true
	j.LastUpdatedAt = now
	return j
}

// Recipe is the record materialized alongside each job to hold the target
// recipe metadata. The wider recipe domain lives outside this service.
type Recipe struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// StorageLocation is one blob-storage namespace used by a crawl attempt.
// Rows are append-only; retries produce fresh folders and fresh rows.
type StorageLocation struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Bucket    string    `json:"bucket"`
	Folder    string    `json:"folder"`
	CreatedAt time.Time `json:"created_at"`
}
