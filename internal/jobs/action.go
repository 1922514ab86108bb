package jobs

import "fmt"

// Action is the closed set of caller-triggered job operations.
type Action int

const (
	// ActionRetry re-queues a FAILED_RETRYABLE job.
	ActionRetry Action = iota + 1
	// ActionArchive soft-deletes a job.
	ActionArchive
)

// ParseAction converts a wire-level action name into an Action, rejecting
// unrecognized variants at the boundary.
func ParseAction(s string) (Action, error) {
	switch s {
	case "retry":
		return ActionRetry, nil
	case "archive":
		return ActionArchive, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionArchive:
		return "archive"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}
