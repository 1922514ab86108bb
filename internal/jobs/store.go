package jobs

import (
	"context"
	"time"
)

// JobStore persists job rows. Implementations must be safe for concurrent
// use; jobs are never physically deleted by this service.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, job Job) error
	// List returns a page of the user's jobs ordered by creation time
	// descending, plus the total count for that filter.
	List(ctx context.Context, userID string, archived bool, offset, limit int) ([]Job, int, error)
	// CountCreatedSince backs the trailing-window rate limit.
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// RecipeStore persists the recipe record created alongside each job.
type RecipeStore interface {
	Create(ctx context.Context, recipe Recipe) error
}

// LocationStore persists storage-location rows. Rows are append-only.
type LocationStore interface {
	Create(ctx context.Context, loc StorageLocation) error
	// ListByJob returns the job's locations newest first.
	ListByJob(ctx context.Context, jobID string) ([]StorageLocation, error)
}
