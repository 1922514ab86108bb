// Package content stores crawled files and records where each crawl attempt
// put them.
package content

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/jobs"
)

// BlobStore is the backing object store for crawled content.
type BlobStore interface {
	Bucket() string
	Put(ctx context.Context, key, contentType string, data []byte) error
	SignedURL(key string, expiry time.Duration) (string, error)
}

// Store writes crawl output into a BlobStore and tracks one storage location
// row per attempt.
type Store struct {
	blobs     BlobStore
	locations jobs.LocationStore
	root      string
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewStore builds a Store. root is the prefix every attempt folder lives
// under, typically "crawled-content".
func NewStore(blobs BlobStore, locations jobs.LocationStore, root string, logger *zap.Logger) *Store {
	return &Store{
		blobs:     blobs,
		locations: locations,
		root:      strings.Trim(root, "/"),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewAttempt opens a sink for one crawl attempt of a job. Each attempt gets
// its own folder so retries never overwrite earlier output:
// {root}/{userID}/{jobID}/{timestamp}-{uuid}.
func (s *Store) NewAttempt(job jobs.Job) *Attempt {
	ts := s.now().UTC().Format("2006-01-02T15-04-05")
	folder := fmt.Sprintf("%s/%s/%s/%s-%s", s.root, job.UserID, job.ID, ts, s.newID())
	return &Attempt{
		store:  s,
		job:    job,
		folder: folder,
	}
}

// PresignedURL produces a time-limited GET link for one file of a recorded
// attempt.
func (s *Store) PresignedURL(loc jobs.StorageLocation, relPath string, expiry time.Duration) (string, error) {
	key := loc.Folder + "/" + strings.TrimPrefix(relPath, "/")
	url, err := s.blobs.SignedURL(key, expiry)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, err)
	}
	return url, nil
}

// Attempt is the sink for one crawl attempt. The first successful write
// records the attempt's storage location.
type Attempt struct {
	store  *Store
	job    jobs.Job
	folder string

	mu       sync.Mutex
	recorded bool
}

// Folder returns the attempt's folder prefix inside the bucket.
func (a *Attempt) Folder() string {
	return a.folder
}

// Put stores one file under the attempt folder.
func (a *Attempt) Put(ctx context.Context, relPath, contentType string, data []byte) error {
	key := a.folder + "/" + strings.TrimPrefix(relPath, "/")
	if err := a.store.blobs.Put(ctx, key, contentType, data); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorded {
		return nil
	}
	loc := jobs.StorageLocation{
		ID:        a.store.newID(),
		JobID:     a.job.ID,
		Bucket:    a.store.blobs.Bucket(),
		Folder:    a.folder,
		CreatedAt: a.store.now().UTC(),
	}
	if err := a.store.locations.Create(ctx, loc); err != nil {
		return fmt.Errorf("record storage location: %w", err)
	}
	a.recorded = true
	a.store.logger.Info("crawl attempt storage recorded",
		zap.String("job_id", a.job.ID),
		zap.String("bucket", loc.Bucket),
		zap.String("folder", loc.Folder))
	return nil
}
