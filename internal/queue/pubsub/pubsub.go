// Package pubsub implements the job queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/queue"
)

// Config identifies the topic and subscription to use.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Queue publishes and receives job IDs through a Pub/Sub topic.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	cfg    Config
	logger *zap.Logger
}

// New creates a Pub/Sub client and verifies the topic exists. It
// authenticates using Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	return &Queue{
		client: client,
		topic:  topic,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Publish sends a message containing the job ID and waits for the server
// acknowledgment so a lost publish surfaces as an error.
func (q *Queue) Publish(ctx context.Context, jobID string) error {
	result := q.topic.Publish(ctx, &pubsub.Message{Data: []byte(jobID)})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}

// Receive blocks delivering messages to the handler until the context ends.
// Messages are always acked: the handler owns failure handling through the
// job's own status, and redelivering a settled job is a no-op anyway.
func (q *Queue) Receive(ctx context.Context, handler queue.Handler) error {
	sub := q.client.Subscription(q.cfg.SubscriptionID)
	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		handler.Handle(ctx, string(msg.Data))
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive from %q: %w", q.cfg.SubscriptionID, err)
	}
	return nil
}

// Close stops the topic's publisher and closes the client connection.
func (q *Queue) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
