// Package queue moves job IDs from the API to the crawl workers.
package queue

import (
	"context"

	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/jobs"
)

// Producer publishes job IDs for asynchronous processing.
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Handler receives delivered job IDs.
type Handler interface {
	Handle(ctx context.Context, jobID string)
}

// Receiver blocks delivering queued job IDs to a handler.
type Receiver interface {
	Receive(ctx context.Context, handler Handler) error
}

// Orchestrator runs a queued job through its crawl lifecycle.
type Orchestrator interface {
	Process(ctx context.Context, job jobs.Job) (jobs.Job, error)
}

// Consumer handles delivered job IDs. Deliveries are at-least-once, so a job
// is only processed while it is still pending; anything else is a duplicate
// or an already-settled job and gets dropped.
type Consumer struct {
	store  jobs.JobStore
	orch   Orchestrator
	logger *zap.Logger
}

// NewConsumer builds a Consumer.
func NewConsumer(store jobs.JobStore, orch Orchestrator, logger *zap.Logger) *Consumer {
	return &Consumer{
		store:  store,
		orch:   orch,
		logger: logger,
	}
}

// Handle processes one delivered job ID. It never returns an error: failed
// jobs record their failure on the job row, and retries go back through the
// queue as fresh messages.
func (c *Consumer) Handle(ctx context.Context, jobID string) {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		c.logger.Warn("queued job not found, discarding message",
			zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status != jobs.StatusPending {
		c.logger.Info("skipping non-pending job, likely duplicate delivery",
			zap.String("job_id", jobID), zap.String("status", string(job.Status)))
		return
	}

	processed, err := c.orch.Process(ctx, job)
	if err != nil {
		c.logger.Error("job processing failed",
			zap.String("job_id", jobID), zap.Error(err))
		return
	}
	c.logger.Info("job processed",
		zap.String("job_id", jobID), zap.String("status", string(processed.Status)))
}
