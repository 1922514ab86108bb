package content

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	contentmem "github.com/pantrylab/recipe-archiver/internal/content/memory"
	"github.com/pantrylab/recipe-archiver/internal/jobs"
	storemem "github.com/pantrylab/recipe-archiver/internal/store/memory"
)

func newTestStore(t *testing.T) (*Store, *contentmem.BlobStore, *storemem.LocationStore) {
	t.Helper()
	blobs := contentmem.NewBlobStore("test-bucket")
	locations := storemem.NewLocationStore()
	store := NewStore(blobs, locations, "crawled-content", zaptest.NewLogger(t))
	store.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }
	n := 0
	store.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	return store, blobs, locations
}

func TestAttemptFolderLayout(t *testing.T) {
	t.Parallel()

	store, _, _ := newTestStore(t)
	attempt := store.NewAttempt(jobs.Job{ID: "job-1", UserID: "user-1"})

	require.Equal(t, "crawled-content/user-1/job-1/2026-03-14T09-26-53-id-1", attempt.Folder())
}

func TestAttemptFolderFormatMatchesPattern(t *testing.T) {
	t.Parallel()

	blobs := contentmem.NewBlobStore("b")
	store := NewStore(blobs, storemem.NewLocationStore(), "crawled-content", zaptest.NewLogger(t))
	attempt := store.NewAttempt(jobs.Job{ID: "j", UserID: "u"})

	pattern := regexp.MustCompile(`^crawled-content/u/j/\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-[0-9a-f-]{36}$`)
	require.Regexp(t, pattern, attempt.Folder())
}

func TestAttemptPutStoresUnderFolder(t *testing.T) {
	t.Parallel()

	store, blobs, _ := newTestStore(t)
	attempt := store.NewAttempt(jobs.Job{ID: "job-1", UserID: "user-1"})

	err := attempt.Put(context.Background(), "index.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)

	key := attempt.Folder() + "/index.html"
	data, contentType, ok := blobs.Get(key)
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(data))
	require.Equal(t, "text/html", contentType)
}

func TestAttemptRecordsSingleLocationRow(t *testing.T) {
	t.Parallel()

	store, _, locations := newTestStore(t)
	attempt := store.NewAttempt(jobs.Job{ID: "job-1", UserID: "user-1"})

	ctx := context.Background()
	require.NoError(t, attempt.Put(ctx, "index.html", "text/html", []byte("a")))
	require.NoError(t, attempt.Put(ctx, "recipes/stew", "text/html", []byte("b")))
	require.NoError(t, attempt.Put(ctx, "resources/css/cdn/site.css", "text/css", []byte("c")))

	locs, err := locations.ListByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "test-bucket", locs[0].Bucket)
	require.Equal(t, attempt.Folder(), locs[0].Folder)
}

func TestSeparateAttemptsGetSeparateFoldersAndRows(t *testing.T) {
	t.Parallel()

	store, _, locations := newTestStore(t)
	job := jobs.Job{ID: "job-1", UserID: "user-1"}

	ctx := context.Background()
	first := store.NewAttempt(job)
	require.NoError(t, first.Put(ctx, "index.html", "text/html", []byte("v1")))

	second := store.NewAttempt(job)
	require.NoError(t, second.Put(ctx, "index.html", "text/html", []byte("v2")))

	require.NotEqual(t, first.Folder(), second.Folder())

	locs, err := locations.ListByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, locs, 2)
}

func TestPresignedURLTargetsFileInsideFolder(t *testing.T) {
	t.Parallel()

	store, _, locations := newTestStore(t)
	attempt := store.NewAttempt(jobs.Job{ID: "job-1", UserID: "user-1"})

	ctx := context.Background()
	require.NoError(t, attempt.Put(ctx, "index.html", "text/html", []byte("x")))

	locs, err := locations.ListByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, locs, 1)

	url, err := store.PresignedURL(locs[0], "index.html", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "memory://test-bucket/"+attempt.Folder()+"/index.html", url)

	_, err = store.PresignedURL(locs[0], "missing.html", time.Hour)
	require.Error(t, err)
}
