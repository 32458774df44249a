package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zivalx/dAIgest/internal/collector"
	"github.com/zivalx/dAIgest/internal/config"
	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/engine"
	"github.com/zivalx/dAIgest/internal/logging"
	"github.com/zivalx/dAIgest/internal/ports"
	"github.com/zivalx/dAIgest/internal/pricing"
)

// --- in-memory ports, just enough for a scheduled run ---

type cycleStore struct {
	mu     sync.Mutex
	cycles map[uuid.UUID]*domain.Cycle
}

func newCycleStore() *cycleStore {
	return &cycleStore{cycles: map[uuid.UUID]*domain.Cycle{}}
}

func (s *cycleStore) Create(_ context.Context, cycle *domain.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cycle
	s.cycles[cycle.ID] = &copied
	return nil
}

func (s *cycleStore) Get(_ context.Context, id uuid.UUID) (*domain.Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cycle, ok := s.cycles[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copied := *cycle
	return &copied, nil
}

func (s *cycleStore) List(context.Context, ports.CycleFilter) ([]domain.Cycle, int, error) {
	return nil, 0, nil
}

func (s *cycleStore) UpdateStatus(_ context.Context, id uuid.UUID, upd ports.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cycle, ok := s.cycles[id]
	if !ok {
		return ports.ErrNotFound
	}
	if cycle.Status != upd.From || !upd.From.CanTransition(upd.To) {
		return ports.ErrStatusConflict
	}
	cycle.Status = upd.To
	cycle.ErrorMessage = upd.ErrorMessage
	if upd.StartedAt != nil {
		cycle.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		cycle.CompletedAt = upd.CompletedAt
	}
	return nil
}

func (s *cycleStore) Delete(context.Context, uuid.UUID) error { return nil }

func (s *cycleStore) MarkStale(context.Context, time.Time, string) (int64, error) { return 0, nil }

type collectedStore struct {
	mu      sync.Mutex
	records []domain.CollectedData
}

func (s *collectedStore) Append(_ context.Context, data *domain.CollectedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *data)
	return nil
}

func (s *collectedStore) ListByCycle(_ context.Context, cycleID uuid.UUID) ([]domain.CollectedData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CollectedData
	for _, r := range s.records {
		if r.CycleID == cycleID {
			out = append(out, r)
		}
	}
	return out, nil
}

type summaryStore struct{}

func (summaryStore) Create(context.Context, *domain.Summary) error { return nil }

func (summaryStore) GetByCycle(context.Context, uuid.UUID) (*domain.Summary, error) {
	return nil, ports.ErrNotFound
}

type noopResolver struct{}

func (noopResolver) Resolve(ref string) (domain.Credential, error) {
	return nil, ports.ErrNotFound
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(context.Context, ports.SummarizeRequest) (*ports.SummarizeResult, error) {
	return nil, errors.New("summarizer not expected in this test")
}

// ctxCollector records the context state it was invoked with.
type ctxCollector struct {
	mu   sync.Mutex
	seen []error
}

func (c *ctxCollector) Kind() string { return "gnews" }

func (c *ctxCollector) Collect(ctx context.Context, _ collector.Request) (*collector.Batch, error) {
	c.mu.Lock()
	c.seen = append(c.seen, ctx.Err())
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("no items")
}

func (c *ctxCollector) invocations() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.seen...)
}

const requestYAML = `name: nightly digest
timeframeDays: 3
llmProvider: openai
llmModel: gpt-4o-mini
sources:
  - sourceType: gnews
    collectSpec:
      query: golang
`

func newTestApp(t *testing.T, col collector.Collector) *Application {
	t.Helper()

	reqPath := filepath.Join(t.TempDir(), "digest.yaml")
	require.NoError(t, os.WriteFile(reqPath, []byte(requestYAML), 0o600))

	registry := collector.NewRegistry()
	registry.Register(col)

	cfg := config.Config{}
	cfg.Engine.CollectTimeout = time.Minute
	cfg.Engine.SummarizeTimeout = time.Minute
	cfg.Scheduler.RequestPath = reqPath

	logger := logging.New("error", "text")
	return &Application{
		cfg:    cfg,
		logger: logger,
		engine: engine.New(engine.Deps{
			Cycles:      newCycleStore(),
			Collected:   &collectedStore{},
			Summaries:   summaryStore{},
			Collectors:  registry,
			Credentials: noopResolver{},
			Summarizer:  noopSummarizer{},
			Pricing:     pricing.DefaultTable(),
			Logger:      logger,
			Options: engine.Options{
				CollectTimeout:   cfg.Engine.CollectTimeout,
				SummarizeTimeout: cfg.Engine.SummarizeTimeout,
			},
		}),
	}
}

func TestScheduledRunInheritsServeContext(t *testing.T) {
	t.Parallel()

	col := &ctxCollector{}
	a := newTestApp(t, col)

	// a live serve context reaches the collector uncancelled
	a.scheduledRun(context.Background(), time.Now())

	// once the serve context is cancelled, an in-flight scheduled run sees
	// the cancellation instead of running out its full timeout
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.scheduledRun(ctx, time.Now())

	seen := col.invocations()
	require.Len(t, seen, 2)
	require.NoError(t, seen[0])
	require.ErrorIs(t, seen[1], context.Canceled)
}

func TestLoadRequest(t *testing.T) {
	t.Parallel()

	reqPath := filepath.Join(t.TempDir(), "digest.yaml")
	require.NoError(t, os.WriteFile(reqPath, []byte(requestYAML), 0o600))

	req, err := loadRequest(reqPath)
	require.NoError(t, err)
	require.Equal(t, "nightly digest", req.Name)
	require.Equal(t, 3, req.TimeframeDays)
	require.Len(t, req.Sources, 1)
	require.Equal(t, "gnews", req.Sources[0].SourceType)
	require.Equal(t, "golang", req.Sources[0].CollectSpec["query"])

	_, err = loadRequest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
