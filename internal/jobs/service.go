package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/metrics"
)

// Error codes recorded on failed jobs.
const (
	ErrorCodeCrawlFailed = "CRAWL_FAILED"
	ErrorCodeException   = "EXCEPTION"
)

// Engine runs one crawl attempt for a job. A nil return means the traversal
// completed; an error wrapping ErrSeedFetch means the seed page itself could
// not be fetched; any other error is fatal for the job.
type Engine interface {
	Crawl(ctx context.Context, job Job) error
}

// Publisher pushes job ids onto the processing queue.
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

// Config tunes the orchestrator.
type Config struct {
	// MaxPerUserPerHour caps job creation per owner in a trailing hour.
	MaxPerUserPerHour int
	// ValidateTimeout bounds the seed-URL reachability probe.
	ValidateTimeout time.Duration
}

// Service owns the job entity and its state machine. All status, error, and
// timestamp mutations flow through it; the crawler engine never writes job
// rows directly.
type Service struct {
	jobs      JobStore
	recipes   RecipeStore
	engine    Engine
	publisher Publisher
	client    *http.Client
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService constructs a Service. engine may be nil on instances that only
// create jobs (the API side); Process requires it.
func NewService(
	jobStore JobStore,
	recipeStore RecipeStore,
	engine Engine,
	publisher Publisher,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxPerUserPerHour <= 0 {
		cfg.MaxPerUserPerHour = 30
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = 5 * time.Second
	}
	return &Service{
		jobs:      jobStore,
		recipes:   recipeStore,
		engine:    engine,
		publisher: publisher,
		client:    &http.Client{Timeout: cfg.ValidateTimeout},
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// CreateParams carries everything needed to create a job.
type CreateParams struct {
	URL               string
	UserID            string
	CrawlDepth        int
	RecipeName        string
	RecipeDescription string
	ForceOverride     bool
}

// CreateJob validates the seed URL, enforces the per-user rate limit,
// materializes the linked recipe record, persists a PENDING job, and
// publishes its id for asynchronous processing.
func (s *Service) CreateJob(ctx context.Context, p CreateParams) (Job, error) {
	if err := validateURLSyntax(p.URL); err != nil {
		return Job{}, err
	}
	if !p.ForceOverride {
		if err := s.checkReachable(ctx, p.URL); err != nil {
			return Job{}, err
		}
	}

	limited, err := s.HasReachedRateLimit(ctx, p.UserID)
	if err != nil {
		return Job{}, fmt.Errorf("check rate limit: %w", err)
	}
	if limited {
		return Job{}, fmt.Errorf("%w: %d jobs per hour", ErrRateLimited, s.cfg.MaxPerUserPerHour)
	}

	now := s.now()
	recipe := Recipe{
		ID:          s.newID(),
		UserID:      p.UserID,
		Name:        p.RecipeName,
		Description: p.RecipeDescription,
		URL:         p.URL,
		Disabled:    false,
		CreatedAt:   now,
	}
	if err := s.recipes.Create(ctx, recipe); err != nil {
		return Job{}, fmt.Errorf("create recipe: %w", err)
	}

	job := Job{
		ID:            s.newID(),
		UserID:        p.UserID,
		URL:           p.URL,
		Status:        StatusPending,
		CrawlDepth:    ClampDepth(p.CrawlDepth),
		RecipeID:      recipe.ID,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.publisher.Publish(ctx, job.ID); err != nil {
		// The job row exists; a lost message only delays processing until a
		// manual retry. Surface it in logs, not to the caller.
		s.logger.Error("publish job id failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	s.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("user_id", p.UserID),
		zap.Int("depth", job.CrawlDepth),
	)
	return job, nil
}

// Process runs one crawl attempt. It transitions PENDING into IN_PROGRESS,
// invokes the engine, and always lands the job in SUCCESS, FAILED_RETRYABLE,
// or FAILED_FOREVER with FinishedAt stamped. Engine errors are absorbed here
// and never propagate past this boundary.
func (s *Service) Process(ctx context.Context, job Job) (Job, error) {
	if s.engine == nil {
		return job, errors.New("no crawl engine configured")
	}

	job = job.Start(s.now())
	if err := s.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("mark job in progress: %w", err)
	}
	s.logger.Info("processing job", zap.String("job_id", job.ID), zap.String("url", job.URL))

	crawlErr := s.runEngine(ctx, job)

	now := s.now()
	switch {
	case crawlErr == nil:
		job = job.Finish(now, StatusSuccess, "", "")
	case errors.Is(crawlErr, ErrSeedFetch):
		job = job.Finish(now, StatusFailedRetryable, ErrorCodeCrawlFailed, "crawling failed")
		s.logger.Warn("crawl failed, retryable",
			zap.String("job_id", job.ID), zap.Error(crawlErr))
	default:
		job = job.Finish(now, StatusFailedForever, ErrorCodeException, crawlErr.Error())
		s.logger.Error("crawl failed permanently",
			zap.String("job_id", job.ID), zap.Error(crawlErr))
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("persist job outcome: %w", err)
	}
	metrics.ObserveJob(string(job.Status))
	return job, nil
}

// runEngine converts an engine panic into an error so a crash inside the
// traversal lands the job in FAILED_FOREVER instead of killing the consumer.
func (s *Service) runEngine(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crawl panic: %v", r)
		}
	}()
	return s.engine.Crawl(ctx, job)
}

// Retry resets a FAILED_RETRYABLE job to PENDING and republishes its id.
// Any other status fails with ErrNotRetryable and leaves the job untouched.
func (s *Service) Retry(ctx context.Context, job Job) (Job, error) {
	if job.Status != StatusFailedRetryable {
		return job, fmt.Errorf("%w: status is %s", ErrNotRetryable, job.Status)
	}
	job = job.ResetForRetry(s.now())
	if err := s.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("reset job: %w", err)
	}
	if err := s.publisher.Publish(ctx, job.ID); err != nil {
		s.logger.Error("publish retried job id failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	s.logger.Info("job retried", zap.String("job_id", job.ID))
	return job, nil
}

// Archive soft-deletes the job. Legal from any state; idempotent.
func (s *Service) Archive(ctx context.Context, job Job) (Job, error) {
	job = job.MarkArchived(s.now())
	if err := s.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("archive job: %w", err)
	}
	return job, nil
}

// Apply dispatches a caller-triggered action on a job.
func (s *Service) Apply(ctx context.Context, job Job, action Action) (Job, error) {
	switch action {
	case ActionRetry:
		return s.Retry(ctx, job)
	case ActionArchive:
		return s.Archive(ctx, job)
	default:
		return job, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// HasReachedRateLimit reports whether the owner has created the maximum
// number of jobs within the trailing hour.
func (s *Service) HasReachedRateLimit(ctx context.Context, userID string) (bool, error) {
	since := s.now().Add(-time.Hour)
	n, err := s.jobs.CountCreatedSince(ctx, userID, since)
	if err != nil {
		return false, err
	}
	return n >= s.cfg.MaxPerUserPerHour, nil
}

func validateURLSyntax(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// checkReachable probes the seed URL with a HEAD request. Any transport
// error or status outside [200,400) counts as unreachable.
func (s *Service) checkReachable(ctx context.Context, raw string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, raw, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableURL, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Debug("close probe response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", ErrUnreachableURL, resp.StatusCode)
	}
	return nil
}
