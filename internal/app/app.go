// Package app wires configuration, storage, collectors, the summarizer and
// the engine into a runnable application.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zivalx/dAIgest/internal/collector"
	"github.com/zivalx/dAIgest/internal/config"
	"github.com/zivalx/dAIgest/internal/credential"
	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/engine"
	"github.com/zivalx/dAIgest/internal/llm"
	"github.com/zivalx/dAIgest/internal/logging"
	"github.com/zivalx/dAIgest/internal/pricing"
	"github.com/zivalx/dAIgest/internal/scheduler"
	"github.com/zivalx/dAIgest/internal/server"
	"github.com/zivalx/dAIgest/internal/storage"
)

// Application holds all wired components.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *sql.DB
	engine  *engine.Engine
	configs *storage.SourceConfigRepository
	sched   *scheduler.CronScheduler
}

// New connects to Postgres, applies the schema and wires all components.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	registry := collector.NewRegistry()
	registry.Register(collector.NewRedditCollector(httpClient))
	registry.Register(collector.NewYouTubeCollector(httpClient))
	registry.Register(collector.NewGNewsCollector(httpClient))
	registry.Register(collector.NewTwitterCollector(httpClient))
	registry.Register(collector.NewTelegramCollector(httpClient))
	registry.Register(collector.NewTrendsCollector(httpClient))

	retry := llm.DefaultRetryConfig()
	if cfg.LLM.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.LLM.MaxAttempts
	}
	summarizer := llm.NewClient(
		llm.WithLogger(baseLogger.With("component", "llm")),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRetryConfig(retry),
	)

	eng := engine.New(engine.Deps{
		Cycles:      storage.NewCycleRepository(db),
		Collected:   storage.NewCollectedDataRepository(db),
		Summaries:   storage.NewSummaryRepository(db),
		Collectors:  registry,
		Credentials: credential.NewEnvResolver(),
		Summarizer:  summarizer,
		Pricing:     pricing.DefaultTable(),
		Logger:      baseLogger.With("component", "engine"),
		Options: engine.Options{
			MaxParallelism:   cfg.Engine.MaxParallelism,
			CollectTimeout:   cfg.Engine.CollectTimeout,
			SummarizeTimeout: cfg.Engine.SummarizeTimeout,
		},
	})

	return &Application{
		cfg:     cfg,
		logger:  baseLogger,
		db:      db,
		engine:  eng,
		configs: storage.NewSourceConfigRepository(db),
		sched:   scheduler.NewCronScheduler(cfg.Scheduler.CronExpression),
	}, nil
}

// Close releases the database connection.
func (a *Application) Close() error {
	return a.db.Close()
}

// Serve fails stale cycles left over from an abrupt stop, starts the optional
// cron scheduler, and serves the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if _, err := a.engine.MarkStale(ctx, a.cfg.Engine.StaleAfter); err != nil {
		return err
	}

	if a.cfg.Scheduler.Enabled {
		job := func(now time.Time) { a.scheduledRun(ctx, now) }
		if err := a.sched.Start(ctx, job); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression)
	}

	handler := server.NewHandler(a.engine, a.configs, a.logger)
	srv := server.New(a.cfg.Server.Addr, server.NewRouter(handler), a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.cfg.Scheduler.Enabled {
		if err := a.sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}

// RunOnce executes a single cycle from a YAML request file and returns the
// finished cycle.
func (a *Application) RunOnce(ctx context.Context, requestPath string) (*domain.Cycle, error) {
	req, err := loadRequest(requestPath)
	if err != nil {
		return nil, err
	}
	return a.engine.CreateAndRun(ctx, req)
}

// scheduledRun executes the configured digest request on the cron schedule.
// The run inherits the serve context, so shutdown cancels a run in flight
// instead of waiting out its full timeout. A failing run is logged; the next
// scheduled run still fires.
func (a *Application) scheduledRun(parent context.Context, now time.Time) {
	ctx, cancel := context.WithTimeout(parent, a.cfg.Engine.CollectTimeout+a.cfg.Engine.SummarizeTimeout)
	defer cancel()

	cycle, err := a.RunOnce(ctx, a.cfg.Scheduler.RequestPath)
	if err != nil {
		a.logger.Error("scheduled digest failed", "error", err, "fired_at", now)
		return
	}
	a.logger.Info("scheduled digest finished", "cycle_id", cycle.ID, "status", cycle.Status)
}

func loadRequest(path string) (domain.CycleRequest, error) {
	var req domain.CycleRequest
	raw, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read request file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("parse request file %s: %w", path, err)
	}
	return req, nil
}
