package jobs

import "errors"

// Error taxonomy. Validation, rate-limit, and illegal-state errors are
// rejected synchronously at the orchestrator boundary; engine errors are
// converted into job state inside Process and never escape it.
var (
	// ErrInvalidURL marks a seed URL that fails syntax validation.
	ErrInvalidURL = errors.New("invalid url format")

	// ErrUnreachableURL marks a seed URL that fails the reachability probe.
	ErrUnreachableURL = errors.New("url is not accessible")

	// ErrRateLimited marks a creation attempt beyond the per-user hourly cap.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotRetryable marks a retry attempted outside FAILED_RETRYABLE.
	ErrNotRetryable = errors.New("job is not in a retryable state")

	// ErrUnknownAction marks an unrecognized job action variant.
	ErrUnknownAction = errors.New("unknown job action")

	// ErrJobNotFound is returned by job stores for missing ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrSeedFetch marks a crawl attempt whose seed page could not be
	// fetched. The engine wraps it so Process can classify the outcome as
	// retryable; every other engine error is treated as fatal.
	ErrSeedFetch = errors.New("seed page fetch failed")
)
