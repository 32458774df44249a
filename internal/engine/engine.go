// Package engine implements the cycle orchestration core: it creates a
// cycle from a request, drives per-source collection with isolated failure
// handling, runs the single summarization step, and persists a complete
// audit trail for the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/collector"
	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
	"github.com/zivalx/dAIgest/internal/pricing"
)

// ErrInvalidRequest marks request-shape failures surfaced before any cycle
// record exists. Distinct from runtime cycle failures, which are recorded on
// the cycle itself.
var ErrInvalidRequest = errors.New("invalid cycle request")

const (
	minTimeframeDays = 1
	maxTimeframeDays = 7
)

// Options tune engine execution.
type Options struct {
	// MaxParallelism bounds concurrent source collections; 0 means one
	// goroutine per source.
	MaxParallelism int
	// CollectTimeout bounds each collector invocation.
	CollectTimeout time.Duration
	// SummarizeTimeout bounds the single summarizer invocation.
	SummarizeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.CollectTimeout <= 0 {
		o.CollectTimeout = 2 * time.Minute
	}
	if o.SummarizeTimeout <= 0 {
		o.SummarizeTimeout = 5 * time.Minute
	}
	return o
}

// Deps wires the engine's collaborators.
type Deps struct {
	Cycles      ports.CycleRepository
	Collected   ports.CollectedDataRepository
	Summaries   ports.SummaryRepository
	Collectors  *collector.Registry
	Credentials ports.CredentialResolver
	Summarizer  ports.Summarizer
	Pricing     pricing.Table
	Logger      *slog.Logger
	Options     Options
}

// Engine is the public entry point for running digest cycles.
type Engine struct {
	cycles      ports.CycleRepository
	collected   ports.CollectedDataRepository
	summaries   ports.SummaryRepository
	collectors  *collector.Registry
	credentials ports.CredentialResolver
	summarizer  ports.Summarizer
	pricing     pricing.Table
	logger      *slog.Logger
	opts        Options
}

// New constructs the orchestration engine.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cycles:      deps.Cycles,
		collected:   deps.Collected,
		summaries:   deps.Summaries,
		collectors:  deps.Collectors,
		credentials: deps.Credentials,
		summarizer:  deps.Summarizer,
		pricing:     deps.Pricing,
		logger:      logger,
		opts:        deps.Options.withDefaults(),
	}
}

// CreateAndRun validates the request, creates a cycle in pending, and drives
// it to a terminal state. The returned cycle is always finished: completed
// or failed, never mid-flight. Identical requests always create independent
// cycles; repeated digests are a deliberate use case.
func (e *Engine) CreateAndRun(ctx context.Context, req domain.CycleRequest) (*domain.Cycle, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	cycle := &domain.Cycle{
		ID:        uuid.New(),
		Name:      req.Name,
		Status:    domain.StatusPending,
		Snapshot:  req.Snapshot(),
		CreatedAt: time.Now().UTC(),
	}

	if err := e.cycles.Create(ctx, cycle); err != nil {
		return nil, fmt.Errorf("create cycle: %w", err)
	}

	e.logger.Info("cycle created", "cycle_id", cycle.ID, "name", cycle.Name, "sources", len(cycle.Snapshot.Sources))

	e.runCycle(ctx, cycle)
	return cycle, nil
}

// CycleDetail bundles a cycle with its collected data and optional summary.
type CycleDetail struct {
	Cycle         domain.Cycle           `json:"cycle"`
	CollectedData []domain.CollectedData `json:"collected_data"`
	Summary       *domain.Summary        `json:"summary,omitempty"`
}

// GetCycle loads a cycle with its collection records and summary.
func (e *Engine) GetCycle(ctx context.Context, id uuid.UUID) (*CycleDetail, error) {
	cycle, err := e.cycles.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	collected, err := e.collected.ListByCycle(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load collected data: %w", err)
	}

	summary, err := e.summaries.GetByCycle(ctx, id)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("load summary: %w", err)
	}

	return &CycleDetail{
		Cycle:         *cycle,
		CollectedData: collected,
		Summary:       summary,
	}, nil
}

// ListCycles returns a page of cycles plus the total count.
func (e *Engine) ListCycles(ctx context.Context, filter ports.CycleFilter) ([]domain.Cycle, int, error) {
	return e.cycles.List(ctx, filter)
}

// DeleteCycle removes a cycle and cascades to its collected data and summary.
func (e *Engine) DeleteCycle(ctx context.Context, id uuid.UUID) error {
	if err := e.cycles.Delete(ctx, id); err != nil {
		return err
	}
	e.logger.Info("cycle deleted", "cycle_id", id)
	return nil
}

// FailCycle marks a non-terminal cycle as failed with the given reason. It
// is the operator recovery path for cycles abandoned by an abrupt stop.
func (e *Engine) FailCycle(ctx context.Context, id uuid.UUID, reason string) error {
	cycle, err := e.cycles.Get(ctx, id)
	if err != nil {
		return err
	}
	if cycle.Status.Terminal() {
		return fmt.Errorf("cycle %s is already %s: %w", id, cycle.Status, ports.ErrStatusConflict)
	}

	now := time.Now().UTC()
	return e.cycles.UpdateStatus(ctx, id, ports.StatusUpdate{
		From:         cycle.Status,
		To:           domain.StatusFailed,
		ErrorMessage: reason,
		CompletedAt:  &now,
	})
}

// MarkStale fails cycles stuck in a non-terminal status since before the
// cutoff. Called at startup so crashed runs are never silently resumed.
func (e *Engine) MarkStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	count, err := e.cycles.MarkStale(ctx, cutoff, "abandoned after abrupt stop; re-run to retry")
	if err != nil {
		return 0, fmt.Errorf("mark stale cycles: %w", err)
	}
	if count > 0 {
		e.logger.Warn("marked stale cycles as failed", "count", count)
	}
	return count, nil
}

func validateRequest(req domain.CycleRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if len(req.Sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrInvalidRequest)
	}
	if req.TimeframeDays < minTimeframeDays || req.TimeframeDays > maxTimeframeDays {
		return fmt.Errorf("%w: timeframe_days must be between %d and %d", ErrInvalidRequest, minTimeframeDays, maxTimeframeDays)
	}
	if req.LLMProvider == "" || req.LLMModel == "" {
		return fmt.Errorf("%w: llm_provider and llm_model are required", ErrInvalidRequest)
	}
	for i, src := range req.Sources {
		if src.SourceType == "" {
			return fmt.Errorf("%w: sources[%d] is missing source_type", ErrInvalidRequest, i)
		}
	}
	return nil
}
