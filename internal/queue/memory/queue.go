// Package memory provides an in-process job queue for local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pantrylab/recipe-archiver/internal/queue"
)

// Queue is a bounded in-memory queue carrying job IDs.
type Queue struct {
	ch      chan string
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		ch: make(chan string, capacity),
	}
}

// Publish pushes a job ID into the queue or returns if the context ends.
func (q *Queue) Publish(ctx context.Context, jobID string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	case q.ch <- jobID:
		return nil
	}
}

// Receive delivers queued job IDs to the handler until the context ends or
// the queue closes.
func (q *Queue) Receive(ctx context.Context, handler queue.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("receive canceled: %w", ctx.Err())
		case jobID, ok := <-q.ch:
			if !ok {
				return nil
			}
			handler.Handle(ctx, jobID)
		}
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() error {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return nil
	}
	close(q.ch)
	q.closed = true
	return nil
}
