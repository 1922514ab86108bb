package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollyFetcherFetchesPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "RecipeArchiverBot", r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>stew</body></html>"))
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetcherConfig{UserAgent: "RecipeArchiverBot"})
	page, err := f.Fetch(context.Background(), srv.URL+"/recipe", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 200, page.StatusCode)
	require.Contains(t, page.ContentType, "text/html")
	require.Contains(t, string(page.Body), "stew")
}

func TestCollyFetcherReturnsErrorOnServerFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetcherConfig{UserAgent: "RecipeArchiverBot"})
	_, err := f.Fetch(context.Background(), srv.URL+"/recipe", 5*time.Second)
	require.Error(t, err)
}

func TestCollyFetcherAllowsRefetchingSameURL(t *testing.T) {
	t.Parallel()

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetcherConfig{UserAgent: "RecipeArchiverBot"})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/same", 5*time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 2, hits)
}

func TestHostLimiterSpacesRequests(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(10)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "http://example.com/page"))
	}
	// Burst of 1 at 10 rps means the third token arrives ~200ms in.
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	// A different host has its own bucket and does not wait.
	quick := time.Now()
	require.NoError(t, l.Wait(ctx, "http://other.com/page"))
	require.Less(t, time.Since(quick), 100*time.Millisecond)
}

func TestHostLimiterDisabledWithZeroRate(t *testing.T) {
	t.Parallel()

	l := NewHostLimiter(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "http://example.com/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
