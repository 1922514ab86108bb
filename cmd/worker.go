package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pantrylab/recipe-archiver/internal/queue"
)

// newWorkerCmd creates the 'worker' subcommand.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Starts the crawl worker",
		Long: `Consumes queued job IDs and runs each pending job through a crawl:
fetching the seed page, walking same-host links to the job's depth,
pulling in cross-host page resources, and storing everything as a
browsable snapshot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	service := a.newService(a.newEngine())
	consumer := queue.NewConsumer(a.jobStore, service, a.logger)

	a.logger.Info("crawl worker started")
	if err := a.receiver.Receive(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive jobs: %w", err)
	}
	a.logger.Info("crawl worker stopped")
	return nil
}
