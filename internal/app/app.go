package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/config"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/debounce"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/extractor"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/infrastructure/llm"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/infrastructure/parser"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/infrastructure/scheduler"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/infrastructure/storage"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/infrastructure/vectorstore"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/infrastructure/web"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/logging"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	pool      *ants.Pool
	repo      *storage.PostgresRepository
	scheduler *usecase.Scheduler
}

// New builds the application and all of its adapters. Nothing talks to the
// network until Run or RunOnce.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	enricher, err := llm.NewClient(cfg.LLM, baseLogger.With("component", "llm"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	pool, err := ants.NewPool(workers(cfg.Ingestion.Workers), ants.WithLogger(poolLogger{baseLogger.With("component", "pool")}))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	registry := extractor.NewRegistry()
	parser.RegisterExtractors(registry)
	source := parser.NewStrategySource(registry, cfg.Feeds, baseLogger.With("component", "source"))

	fetcher := web.NewClient(web.Config{
		Timeout:   cfg.Ingestion.FetchTimeout,
		UserAgent: cfg.Ingestion.UserAgent,
		MaxBytes:  cfg.Ingestion.MaxBodyBytes,
	}, nil)

	repo := storage.NewPostgresRepository(db, baseLogger.With("component", "storage"))
	vectors := vectorstore.NewChromaStore(cfg.VectorStore, nil, baseLogger.With("component", "vectorstore"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:      source,
		Fetcher:     fetcher,
		Parser:      parser.NewFeedParser(),
		Debouncer:   debounce.New(),
		Summarizer:  enricher,
		Embedder:    enricher,
		Repository:  repo,
		VectorStore: vectors,
		Pool:        pool,
		Logger:      baseLogger.With("component", "pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		pool:      pool,
		repo:      repo,
		scheduler: usecase.NewScheduler(driver, pipeline, cfg.Scheduler.PollInterval, baseLogger.With("component", "feeds")),
	}, nil
}

// Run polls every feed on its interval until ctx is cancelled, then shuts
// down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.repo.EnsureSchema(ctx); err != nil {
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("ingestion running", "poll_interval", a.cfg.Scheduler.PollInterval)

	<-ctx.Done()
	a.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// RunOnce polls every feed a single time and exits.
func (a *Application) RunOnce(ctx context.Context) error {
	defer a.close()

	if err := a.repo.EnsureSchema(ctx); err != nil {
		return err
	}
	return a.scheduler.RunOnce(ctx)
}

func (a *Application) close() {
	if err := a.pool.ReleaseTimeout(shutdownTimeout); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
		a.logger.Warn("worker pool release", "error", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

func workers(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}

// poolLogger adapts slog to ants.Logger, which only reports recovered panics.
type poolLogger struct {
	log *slog.Logger
}

func (l poolLogger) Printf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
