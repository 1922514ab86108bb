package cmd

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pantrylab/recipe-archiver/internal/config"
	"github.com/pantrylab/recipe-archiver/internal/content"
	contentgcs "github.com/pantrylab/recipe-archiver/internal/content/gcs"
	contentlocal "github.com/pantrylab/recipe-archiver/internal/content/local"
	contentmem "github.com/pantrylab/recipe-archiver/internal/content/memory"
	"github.com/pantrylab/recipe-archiver/internal/crawler"
	"github.com/pantrylab/recipe-archiver/internal/jobs"
	"github.com/pantrylab/recipe-archiver/internal/logging"
	"github.com/pantrylab/recipe-archiver/internal/metrics"
	"github.com/pantrylab/recipe-archiver/internal/queue"
	queuemem "github.com/pantrylab/recipe-archiver/internal/queue/memory"
	queuepubsub "github.com/pantrylab/recipe-archiver/internal/queue/pubsub"
	storemem "github.com/pantrylab/recipe-archiver/internal/store/memory"
	storepg "github.com/pantrylab/recipe-archiver/internal/store/postgres"
)

// app holds every wired dependency a command needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	pool      *pgxpool.Pool
	jobStore  jobs.JobStore
	recipes   jobs.RecipeStore
	locations jobs.LocationStore

	contentStore *content.Store
	producer     queue.Producer
	receiver     queue.Receiver
}

// buildApp loads configuration and wires stores, blob storage, and the queue.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &app{cfg: cfg, logger: logger}

	if err := a.wireStores(ctx); err != nil {
		return nil, err
	}
	if err := a.wireContent(ctx); err != nil {
		return nil, err
	}
	if err := a.wireQueue(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) wireStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database configured, using in-memory stores")
		a.jobStore = storemem.NewJobStore()
		a.recipes = storemem.NewRecipeStore()
		a.locations = storemem.NewLocationStore()
		return nil
	}

	pool, err := storepg.Connect(ctx, a.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := storepg.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}
	a.pool = pool
	a.jobStore = storepg.NewJobStore(pool)
	a.recipes = storepg.NewRecipeStore(pool)
	a.locations = storepg.NewLocationStore(pool)
	return nil
}

func (a *app) wireContent(ctx context.Context) error {
	var blobs content.BlobStore
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		store, err := contentgcs.New(client, contentgcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		blobs = store
	case "local":
		store, err := contentlocal.New(contentlocal.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		blobs = store
	default:
		a.logger.Warn("using in-memory blob storage, crawled content will not persist")
		blobs = contentmem.NewBlobStore("memory")
	}

	a.contentStore = content.NewStore(blobs, a.locations, a.cfg.Storage.RootPrefix, a.logger)
	return nil
}

func (a *app) wireQueue(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID != "" {
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:      a.cfg.PubSub.ProjectID,
			TopicID:        a.cfg.PubSub.TopicID,
			SubscriptionID: a.cfg.PubSub.SubscriptionID,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("init pubsub queue: %w", err)
		}
		a.producer = q
		a.receiver = q
		return nil
	}

	a.logger.Warn("no pubsub project configured, using in-process queue")
	q := queuemem.NewQueue(256)
	a.producer = q
	a.receiver = q
	return nil
}

// newService builds the job orchestrator. engine may be nil on API-only
// instances.
func (a *app) newService(engine jobs.Engine) *jobs.Service {
	return jobs.NewService(a.jobStore, a.recipes, engine, a.producer, jobs.Config{
		MaxPerUserPerHour: a.cfg.Jobs.MaxPerUserPerHour,
		ValidateTimeout:   time.Duration(a.cfg.Jobs.ValidateTimeoutSeconds) * time.Second,
	}, a.logger)
}

// newEngine builds the crawl engine over the wired content store.
func (a *app) newEngine() *crawler.Engine {
	fetcher := crawler.NewCollyFetcher(crawler.FetcherConfig{
		UserAgent: a.cfg.Crawler.UserAgent,
	})
	robots := crawler.NewRobotsEnforcer(crawler.RobotsConfig{
		UserAgent: a.cfg.Crawler.UserAgent,
		CacheSize: a.cfg.Robots.CacheSize,
		CacheTTL:  a.cfg.Robots.CacheTTL(),
	}, a.logger)
	limiter := crawler.NewHostLimiter(a.cfg.Crawler.PerHostRPS)

	return crawler.NewEngine(
		fetcher,
		robots,
		crawler.NewLinkFilter(),
		attemptOpener{store: a.contentStore},
		limiter,
		crawler.EngineConfig{
			PageTimeout:     a.cfg.Crawler.PageTimeout(),
			ResourceTimeout: a.cfg.Crawler.ResourceTimeout(),
		},
		a.logger,
	)
}

// attemptOpener adapts the content store to the engine's sink factory.
type attemptOpener struct {
	store *content.Store
}

func (o attemptOpener) NewAttempt(job jobs.Job) crawler.ContentSink {
	return o.store.NewAttempt(job)
}

// close releases held resources.
func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close queue producer", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
