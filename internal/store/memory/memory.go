// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pantrylab/recipe-archiver/internal/jobs"
)

// JobStore keeps jobs in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	rows map[string]jobs.Job
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{rows: make(map[string]jobs.Job)}
}

// Create stores a new job.
func (s *JobStore) Create(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[job.ID] = job
	return nil
}

// Get returns a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (jobs.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.rows[id]
	if !ok {
		return jobs.Job{}, jobs.ErrJobNotFound
	}
	return job, nil
}

// Update rewrites a stored job.
func (s *JobStore) Update(_ context.Context, job jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[job.ID]; !ok {
		return jobs.ErrJobNotFound
	}
	s.rows[job.ID] = job
	return nil
}

// List returns a page of the user's jobs newest first plus the total count.
func (s *JobStore) List(_ context.Context, userID string, archived bool, offset, limit int) ([]jobs.Job, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []jobs.Job
	for _, job := range s.rows {
		if job.UserID == userID && job.Archived == archived {
			matched = append(matched, job)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return append([]jobs.Job(nil), matched[offset:end]...), total, nil
}

// CountCreatedSince counts the user's jobs created at or after the cutoff.
func (s *JobStore) CountCreatedSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.rows {
		if job.UserID == userID && !job.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// RecipeStore keeps recipes in memory.
type RecipeStore struct {
	mu   sync.RWMutex
	rows map[string]jobs.Recipe
}

// NewRecipeStore creates an empty RecipeStore.
func NewRecipeStore() *RecipeStore {
	return &RecipeStore{rows: make(map[string]jobs.Recipe)}
}

// Create stores a recipe.
func (s *RecipeStore) Create(_ context.Context, recipe jobs.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[recipe.ID] = recipe
	return nil
}

// Get returns a recipe by ID.
func (s *RecipeStore) Get(id string) (jobs.Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recipe, ok := s.rows[id]
	return recipe, ok
}

// LocationStore keeps storage locations in memory.
type LocationStore struct {
	mu   sync.RWMutex
	rows []jobs.StorageLocation
}

// NewLocationStore creates an empty LocationStore.
func NewLocationStore() *LocationStore {
	return &LocationStore{}
}

// Create appends a storage location row.
func (s *LocationStore) Create(_ context.Context, loc jobs.StorageLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, loc)
	return nil
}

// ListByJob returns the job's locations newest first.
func (s *LocationStore) ListByJob(_ context.Context, jobID string) ([]jobs.StorageLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []jobs.StorageLocation
	for _, loc := range s.rows {
		if loc.JobID == jobID {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
