package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/api"
	"github.com/pantrylab/recipe-archiver/internal/queue"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var embeddedWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API server",
		Long: `Runs the job API: creating crawl jobs, listing them, applying retry and
archive actions, and minting presigned links into stored crawl content.
With --embedded-worker the crawl worker runs in the same process, which
suits local development with the in-process queue.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), embeddedWorker)
		},
	}
	cmd.Flags().BoolVar(&embeddedWorker, "embedded-worker", false, "run the crawl worker in-process")
	return cmd
}

func runServe(ctx context.Context, embeddedWorker bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	service := a.newService(nil)
	if embeddedWorker {
		workerService := a.newService(a.newEngine())
		consumer := queue.NewConsumer(a.jobStore, workerService, a.logger)
		go func() {
			if err := a.receiver.Receive(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("embedded worker stopped", zap.Error(err))
			}
		}()
		a.logger.Info("embedded crawl worker started")
	}

	server := api.NewServer(service, a.jobStore, a.locations, a.contentStore, a.cfg, a.logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.Int("port", a.cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		a.logger.Info("http server stopped")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
