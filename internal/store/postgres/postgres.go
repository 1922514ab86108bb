// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pantrylab/recipe-archiver/internal/jobs"
)

// DB is the subset of pgxpool.Pool the stores need. pgxmock satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pgx connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the service tables if they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS recipes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			disabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			error_code TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			crawl_depth INTEGER NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			recipe_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			last_updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS storage_locations (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL REFERENCES jobs (id),
			bucket TEXT NOT NULL,
			folder TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_storage_locations_job ON storage_locations (job_id, created_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// JobStore persists jobs in Postgres.
type JobStore struct {
	db DB
}

// NewJobStore builds a JobStore on an existing pool or mock.
func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, user_id, url, status, error_code, error_message, crawl_depth,
	archived, recipe_id, created_at, started_at, finished_at, last_updated_at`

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job jobs.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := s.db.Exec(ctx, query,
		job.ID, job.UserID, job.URL, string(job.Status), job.ErrorCode, job.ErrorMessage,
		job.CrawlDepth, job.Archived, job.RecipeID, job.CreatedAt,
		job.StartedAt, job.FinishedAt, job.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(ctx context.Context, id string) (jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Job{}, jobs.ErrJobNotFound
		}
		return jobs.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Update rewrites a job row in place.
func (s *JobStore) Update(ctx context.Context, job jobs.Job) error {
	query := `UPDATE jobs SET
		status = $2, error_code = $3, error_message = $4, crawl_depth = $5,
		archived = $6, recipe_id = $7, started_at = $8, finished_at = $9,
		last_updated_at = $10
		WHERE id = $1`
	tag, err := s.db.Exec(ctx, query,
		job.ID, string(job.Status), job.ErrorCode, job.ErrorMessage, job.CrawlDepth,
		job.Archived, job.RecipeID, job.StartedAt, job.FinishedAt, job.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

// List returns a page of the user's jobs newest first plus the total count.
func (s *JobStore) List(ctx context.Context, userID string, archived bool, offset, limit int) ([]jobs.Job, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND archived = $2`
	if err := s.db.QueryRow(ctx, countQuery, userID, archived).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE user_id = $1 AND archived = $2
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4`
	rows, err := s.db.Query(ctx, query, userID, archived, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return out, total, nil
}

// CountCreatedSince counts the user's jobs created inside the trailing window.
func (s *JobStore) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM jobs WHERE user_id = $1 AND created_at >= $2`
	if err := s.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent jobs: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (jobs.Job, error) {
	var (
		job    jobs.Job
		status string
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.URL, &status, &job.ErrorCode, &job.ErrorMessage,
		&job.CrawlDepth, &job.Archived, &job.RecipeID, &job.CreatedAt,
		&job.StartedAt, &job.FinishedAt, &job.LastUpdatedAt,
	)
	if err != nil {
		return jobs.Job{}, err
	}
	job.Status = jobs.Status(status)
	return job, nil
}

// RecipeStore persists recipes in Postgres.
type RecipeStore struct {
	db DB
}

// NewRecipeStore builds a RecipeStore.
func NewRecipeStore(db DB) *RecipeStore {
	return &RecipeStore{db: db}
}

// Create inserts a recipe row.
func (s *RecipeStore) Create(ctx context.Context, recipe jobs.Recipe) error {
	query := `INSERT INTO recipes (id, user_id, name, description, url, disabled, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.db.Exec(ctx, query,
		recipe.ID, recipe.UserID, recipe.Name, recipe.Description,
		recipe.URL, recipe.Disabled, recipe.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

// LocationStore persists storage locations in Postgres.
type LocationStore struct {
	db DB
}

// NewLocationStore builds a LocationStore.
func NewLocationStore(db DB) *LocationStore {
	return &LocationStore{db: db}
}

// Create inserts a storage location row.
func (s *LocationStore) Create(ctx context.Context, loc jobs.StorageLocation) error {
	query := `INSERT INTO storage_locations (id, job_id, bucket, folder, created_at)
		VALUES ($1,$2,$3,$4,$5)`
	_, err := s.db.Exec(ctx, query, loc.ID, loc.JobID, loc.Bucket, loc.Folder, loc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert storage location: %w", err)
	}
	return nil
}

// ListByJob returns the job's storage locations newest first.
func (s *LocationStore) ListByJob(ctx context.Context, jobID string) ([]jobs.StorageLocation, error) {
	query := `SELECT id, job_id, bucket, folder, created_at FROM storage_locations
		WHERE job_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list storage locations: %w", err)
	}
	defer rows.Close()

	var out []jobs.StorageLocation
	for rows.Next() {
		var loc jobs.StorageLocation
		if err := rows.Scan(&loc.ID, &loc.JobID, &loc.Bucket, &loc.Folder, &loc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan storage location: %w", err)
		}
		out = append(out, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list storage locations: %w", err)
	}
	return out, nil
}
