package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeJobStore struct {
	mu      sync.Mutex
	rows    map[string]Job
	recent  int
	updates int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{rows: make(map[string]Job)}
}

func (s *fakeJobStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[job.ID] = job
	return nil
}

func (s *fakeJobStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.rows[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *fakeJobStore) Update(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.rows[job.ID] = job
	s.updates++
	return nil
}

func (s *fakeJobStore) List(_ context.Context, _ string, _ bool, _, _ int) ([]Job, int, error) {
	return nil, 0, nil
}

func (s *fakeJobStore) CountCreatedSince(_ context.Context, _ string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recent, nil
}

type fakeRecipeStore struct {
	mu      sync.Mutex
	created []Recipe
}

func (s *fakeRecipeStore) Create(_ context.Context, recipe Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, recipe)
	return nil
}

type stubEngine struct {
	err   error
	panic bool
}

func (e *stubEngine) Crawl(context.Context, Job) error {
	if e.panic {
		panic("boom")
	}
	return e.err
}

type stubPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, jobID)
	return nil
}

type serviceFixture struct {
	service   *Service
	jobs      *fakeJobStore
	recipes   *fakeRecipeStore
	engine    *stubEngine
	publisher *stubPublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		jobs:      newFakeJobStore(),
		recipes:   &fakeRecipeStore{},
		engine:    &stubEngine{},
		publisher: &stubPublisher{},
	}
	f.service = NewService(f.jobs, f.recipes, f.engine, f.publisher, Config{
		MaxPerUserPerHour: 30,
	}, zaptest.NewLogger(t))
	return f
}

func TestCreateJobRejectsMalformedURLs(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	for _, raw := range []string{
		"",
		"not a url",
		"ftp://example.com/recipe",
		"http://",
		"example.com/no-scheme",
	} {
		_, err := f.service.CreateJob(context.Background(), CreateParams{
			URL: raw, UserID: "u1", CrawlDepth: 2, ForceOverride: true,
		})
		require.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestCreateJobProbesReachability(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newServiceFixture(t)

	_, err := f.service.CreateJob(context.Background(), CreateParams{
		URL: srv.URL + "/gone", UserID: "u1", CrawlDepth: 2,
	})
	require.ErrorIs(t, err, ErrUnreachableURL)

	job, err := f.service.CreateJob(context.Background(), CreateParams{
		URL: srv.URL + "/recipe", UserID: "u1", CrawlDepth: 2, RecipeName: "Stew",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, job.Status)
}

func TestCreateJobForceOverrideSkipsProbe(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	// Nothing listens on this host; the probe would fail if it ran.
	job, err := f.service.CreateJob(context.Background(), CreateParams{
		URL: "http://192.0.2.1/recipe", UserID: "u1", CrawlDepth: 3, ForceOverride: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, job.Status)
}

func TestCreateJobEnforcesHourlyRateLimit(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.jobs.recent = 29
	_, err := f.service.CreateJob(context.Background(), CreateParams{
		URL: "http://example.com/recipe", UserID: "u1", ForceOverride: true,
	})
	require.NoError(t, err)

	f.jobs.recent = 30
	_, err = f.service.CreateJob(context.Background(), CreateParams{
		URL: "http://example.com/recipe", UserID: "u1", ForceOverride: true,
	})
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestCreateJobClampsDepthAndLinksRecipe(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	job, err := f.service.CreateJob(context.Background(), CreateParams{
		URL:           "http://example.com/recipe",
		UserID:        "u1",
		CrawlDepth:    99,
		RecipeName:    "Bread",
		ForceOverride: true,
	})
	require.NoError(t, err)
	require.Equal(t, MaxDepth, job.CrawlDepth)
	require.NotEmpty(t, job.RecipeID)
	require.Len(t, f.recipes.created, 1)
	require.Equal(t, job.RecipeID, f.recipes.created[0].ID)
	require.Equal(t, "Bread", f.recipes.created[0].Name)
	require.Equal(t, []string{job.ID}, f.publisher.published)
}

func TestCreateJobSurvivesPublishFailure(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.publisher.err = errors.New("broker down")

	job, err := f.service.CreateJob(context.Background(), CreateParams{
		URL: "http://example.com/recipe", UserID: "u1", ForceOverride: true,
	})
	require.NoError(t, err)

	stored, err := f.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestProcessOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		engineErr  error
		panics     bool
		wantStatus Status
		wantCode   string
	}{
		{"success", nil, false, StatusSuccess, ""},
		{"seed fetch failure is retryable", fmt.Errorf("fetch seed: %w", ErrSeedFetch), false, StatusFailedRetryable, ErrorCodeCrawlFailed},
		{"other errors are fatal", errors.New("storage exploded"), false, StatusFailedForever, ErrorCodeException},
		{"panic is fatal", nil, true, StatusFailedForever, ErrorCodeException},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newServiceFixture(t)
			f.engine.err = tc.engineErr
			f.engine.panic = tc.panics

			job := Job{ID: "j1", UserID: "u1", URL: "http://example.com", Status: StatusPending}
			require.NoError(t, f.jobs.Create(context.Background(), job))

			processed, err := f.service.Process(context.Background(), job)
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, processed.Status)
			require.Equal(t, tc.wantCode, processed.ErrorCode)
			require.NotNil(t, processed.StartedAt)
			require.NotNil(t, processed.FinishedAt)
			require.False(t, processed.FinishedAt.Before(*processed.StartedAt))

			stored, err := f.jobs.Get(context.Background(), "j1")
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, stored.Status)
		})
	}
}

func TestProcessRetryableUsesStableErrorMessage(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	f.engine.err = fmt.Errorf("fetch seed page http://x: %w", ErrSeedFetch)

	job := Job{ID: "j1", UserID: "u1", URL: "http://example.com", Status: StatusPending}
	require.NoError(t, f.jobs.Create(context.Background(), job))

	processed, err := f.service.Process(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "crawling failed", processed.ErrorMessage)
}

func TestRetryOnlyFromFailedRetryable(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusPending, StatusInProgress, StatusSuccess, StatusFailedForever} {
		f := newServiceFixture(t)
		job := Job{ID: "j1", Status: status}
		require.NoError(t, f.jobs.Create(context.Background(), job))

		_, err := f.service.Retry(context.Background(), job)
		require.ErrorIs(t, err, ErrNotRetryable, "status %s", status)
		require.Empty(t, f.publisher.published)
	}
}

func TestRetryResetsAndRepublishes(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	started := time.Now().UTC()
	job := Job{
		ID:        "j1",
		Status:    StatusFailedRetryable,
		ErrorCode: ErrorCodeCrawlFailed,
		StartedAt: &started,
	}
	require.NoError(t, f.jobs.Create(context.Background(), job))

	retried, err := f.service.Retry(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, StatusPending, retried.Status)
	require.Empty(t, retried.ErrorCode)
	require.Nil(t, retried.StartedAt)
	require.Equal(t, []string{"j1"}, f.publisher.published)
}

func TestArchiveFromAnyState(t *testing.T) {
	t.Parallel()

	for _, status := range []Status{StatusPending, StatusInProgress, StatusSuccess, StatusFailedRetryable, StatusFailedForever} {
		f := newServiceFixture(t)
		job := Job{ID: "j1", Status: status}
		require.NoError(t, f.jobs.Create(context.Background(), job))

		archived, err := f.service.Archive(context.Background(), job)
		require.NoError(t, err)
		require.True(t, archived.Archived)
		require.Equal(t, status, archived.Status)

		again, err := f.service.Archive(context.Background(), archived)
		require.NoError(t, err)
		require.True(t, again.Archived)
	}
}

func TestApplyDispatchesActions(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	job := Job{ID: "j1", Status: StatusFailedRetryable}
	require.NoError(t, f.jobs.Create(context.Background(), job))

	retried, err := f.service.Apply(context.Background(), job, ActionRetry)
	require.NoError(t, err)
	require.Equal(t, StatusPending, retried.Status)

	archived, err := f.service.Apply(context.Background(), retried, ActionArchive)
	require.NoError(t, err)
	require.True(t, archived.Archived)

	_, err = f.service.Apply(context.Background(), job, Action(42))
	require.ErrorIs(t, err, ErrUnknownAction)
}
