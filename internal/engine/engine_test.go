package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zivalx/dAIgest/internal/collector"
	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
	"github.com/zivalx/dAIgest/internal/pricing"
)

// --- in-memory ports ---

type memCycles struct {
	mu      sync.Mutex
	cycles  map[uuid.UUID]*domain.Cycle
	history []domain.CycleStatus
}

func newMemCycles() *memCycles {
	return &memCycles{cycles: map[uuid.UUID]*domain.Cycle{}}
}

func (m *memCycles) Create(_ context.Context, cycle *domain.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *cycle
	m.cycles[cycle.ID] = &copied
	m.history = append(m.history, cycle.Status)
	return nil
}

func (m *memCycles) Get(_ context.Context, id uuid.UUID) (*domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cycle, ok := m.cycles[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copied := *cycle
	return &copied, nil
}

func (m *memCycles) List(_ context.Context, _ ports.CycleFilter) ([]domain.Cycle, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Cycle, 0, len(m.cycles))
	for _, c := range m.cycles {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memCycles) UpdateStatus(_ context.Context, id uuid.UUID, upd ports.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cycle, ok := m.cycles[id]
	if !ok {
		return ports.ErrNotFound
	}
	if cycle.Status != upd.From || !cycle.Status.CanTransition(upd.To) {
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
	m.history = append(m.history, upd.To)
	return nil
}

func (m *memCycles) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[id]; !ok {
		return ports.ErrNotFound
	}
	delete(m.cycles, id)
	return nil
}

func (m *memCycles) MarkStale(_ context.Context, cutoff time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.cycles {
		if !c.Status.Terminal() && c.CreatedAt.Before(cutoff) {
			c.Status = domain.StatusFailed
			c.ErrorMessage = reason
			n++
		}
	}
	return n, nil
}

type memCollected struct {
	mu      sync.Mutex
	records []domain.CollectedData
}

func (m *memCollected) Append(_ context.Context, data *domain.CollectedData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *data)
	return nil
}

// ListByCycle sorts by source index, matching the SQL repository's contract.
func (m *memCollected) ListByCycle(_ context.Context, cycleID uuid.UUID) ([]domain.CollectedData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CollectedData
	for _, r := range m.records {
		if r.CycleID == cycleID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceIndex < out[j].SourceIndex })
	return out, nil
}

type memSummaries struct {
	mu        sync.Mutex
	summaries map[uuid.UUID]*domain.Summary
}

func newMemSummaries() *memSummaries {
	return &memSummaries{summaries: map[uuid.UUID]*domain.Summary{}}
}

func (m *memSummaries) Create(_ context.Context, summary *domain.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *summary
	m.summaries[summary.CycleID] = &copied
	return nil
}

func (m *memSummaries) GetByCycle(_ context.Context, cycleID uuid.UUID) (*domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary, ok := m.summaries[cycleID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copied := *summary
	return &copied, nil
}

type mapResolver map[string]domain.Credential

func (m mapResolver) Resolve(ref string) (domain.Credential, error) {
	if cred, ok := m[ref]; ok {
		return cred, nil
	}
	return nil, fmt.Errorf("credential %q: %w", ref, ports.ErrNotFound)
}

type fakeSummarizer struct {
	mu    sync.Mutex
	calls []ports.SummarizeRequest
	fn    func(ports.SummarizeRequest) (*ports.SummarizeResult, error)
}

func (f *fakeSummarizer) Summarize(_ context.Context, req ports.SummarizeRequest) (*ports.SummarizeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	return &ports.SummarizeResult{
		Text:           "Key themes: testing and more testing.",
		InputTokens:    1000,
		OutputTokens:   100,
		GenerationTime: 250 * time.Millisecond,
	}, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCollector struct {
	kind string
	fn   func(ctx context.Context, req collector.Request) (*collector.Batch, error)
}

func (f *fakeCollector) Kind() string { return f.kind }

func (f *fakeCollector) Collect(ctx context.Context, req collector.Request) (*collector.Batch, error) {
	return f.fn(ctx, req)
}

func staticBatch(name string, items ...string) func(context.Context, collector.Request) (*collector.Batch, error) {
	return func(context.Context, collector.Request) (*collector.Batch, error) {
		payload, _ := json.Marshal(items)
		return &collector.Batch{
			Items:        payload,
			ItemCount:    len(items),
			RawSizeBytes: len(payload),
			SourceName:   name,
		}, nil
	}
}

type fixture struct {
	engine     *Engine
	cycles     *memCycles
	collected  *memCollected
	summaries  *memSummaries
	summarizer *fakeSummarizer
}

func newFixture(t *testing.T, collectors ...collector.Collector) *fixture {
	t.Helper()

	registry := collector.NewRegistry()
	for _, c := range collectors {
		registry.Register(c)
	}

	f := &fixture{
		cycles:     newMemCycles(),
		collected:  &memCollected{},
		summaries:  newMemSummaries(),
		summarizer: &fakeSummarizer{},
	}
	f.engine = New(Deps{
		Cycles:     f.cycles,
		Collected:  f.collected,
		Summaries:  f.summaries,
		Collectors: registry,
		Credentials: mapResolver{
			"REDDIT_MAIN": {"client_id": "id", "client_secret": "secret"},
		},
		Summarizer: f.summarizer,
		Pricing:    pricing.DefaultTable(),
	})
	return f
}

func validRequest(sources ...domain.SourceRequest) domain.CycleRequest {
	return domain.CycleRequest{
		Name:          "daily digest",
		Sources:       sources,
		TimeframeDays: 3,
		LLMProvider:   "openai",
		LLMModel:      "gpt-4o-mini",
	}
}

// --- tests ---

func TestCreateAndRunCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		&fakeCollector{kind: "reddit", fn: staticBatch("golang", "post one", "post two")},
		&fakeCollector{kind: "trends", fn: staticBatch("trending/US", "solar eclipse")},
	)

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "reddit", CredentialRef: "REDDIT_MAIN"},
		domain.SourceRequest{SourceType: "trends"},
	))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, cycle.Status)
	require.NotNil(t, cycle.StartedAt)
	require.NotNil(t, cycle.CompletedAt)
	require.Empty(t, cycle.ErrorMessage)

	require.Equal(t, []domain.CycleStatus{
		domain.StatusPending,
		domain.StatusCollecting,
		domain.StatusSummarizing,
		domain.StatusCompleted,
	}, f.cycles.history)

	records, err := f.collected.ListByCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	summary, err := f.summaries.GetByCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Equal(t, "openai", summary.LLMProvider)
	require.Equal(t, 6, summary.SummaryWordCount)
	require.NotNil(t, summary.CostUSD)
	require.InDelta(t, 1.0*0.00015+0.1*0.0006, *summary.CostUSD, 1e-9)
	require.Equal(t, int64(250), summary.GenerationTimeMS)
}

func TestPerSourceFailureIsolation(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		&fakeCollector{kind: "reddit", fn: staticBatch("golang", "post")},
		&fakeCollector{kind: "gnews", fn: func(context.Context, collector.Request) (*collector.Batch, error) {
			return nil, errors.New("gnews quota exceeded")
		}},
		&fakeCollector{kind: "twitter", fn: staticBatch("twitter", "tweet")},
	)

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "reddit", CredentialRef: "REDDIT_MAIN"},
		domain.SourceRequest{SourceType: "gnews"},
		domain.SourceRequest{SourceType: "twitter", CredentialRef: "MISSING_REF"},
		domain.SourceRequest{SourceType: "carrierpigeon"},
	))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, cycle.Status)

	detail, err := f.engine.GetCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, detail.CollectedData, 4)

	byType := map[string]domain.CollectedData{}
	for _, r := range detail.CollectedData {
		byType[r.SourceType] = r
	}

	require.True(t, byType["reddit"].Succeeded())
	require.Equal(t, 1, byType["reddit"].ItemCount)

	require.Contains(t, byType["gnews"].Error, "gnews quota exceeded")
	require.Zero(t, byType["gnews"].ItemCount)

	require.Contains(t, byType["twitter"].Error, "resolve credential")
	require.Contains(t, byType["carrierpigeon"].Error, "not supported")

	// timing and payload size are recorded even for failed sources
	for _, r := range detail.CollectedData {
		require.NotNil(t, r.CollectionTimeMS, r.SourceType)
		require.NotNil(t, r.DataSizeBytes, r.SourceType)
	}
	require.Zero(t, *byType["gnews"].DataSizeBytes)
	require.Positive(t, *byType["reddit"].DataSizeBytes)

	require.NotNil(t, detail.Summary)
}

func TestResultOrderMatchesRequestOrder(t *testing.T) {
	t.Parallel()

	slow := &fakeCollector{kind: "reddit", fn: func(ctx context.Context, req collector.Request) (*collector.Batch, error) {
		time.Sleep(50 * time.Millisecond)
		return staticBatch("slow", "a")(ctx, req)
	}}
	fast := &fakeCollector{kind: "trends", fn: staticBatch("fast", "b")}

	f := newFixture(t, slow, fast)

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "reddit", CredentialRef: "REDDIT_MAIN"},
		domain.SourceRequest{SourceType: "trends"},
	))
	require.NoError(t, err)

	// the summarizer sees sources in request order even though the fast
	// source finished first
	require.Equal(t, 1, f.summarizer.callCount())
	text := f.summarizer.calls[0].Text
	require.Less(t, indexOf(t, text, "slow"), indexOf(t, text, "fast"))
	require.Equal(t, domain.StatusCompleted, cycle.Status)
}

func TestRetrievedRecordsMatchRequestOrder(t *testing.T) {
	t.Parallel()

	slow := &fakeCollector{kind: "reddit", fn: func(ctx context.Context, req collector.Request) (*collector.Batch, error) {
		time.Sleep(50 * time.Millisecond)
		return staticBatch("slow", "a")(ctx, req)
	}}
	fast := &fakeCollector{kind: "trends", fn: staticBatch("fast", "b")}

	f := newFixture(t, slow, fast)

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "reddit", CredentialRef: "REDDIT_MAIN"},
		domain.SourceRequest{SourceType: "trends"},
	))
	require.NoError(t, err)

	// retrieval returns records in request order even though the fast source
	// finished and was persisted first
	detail, err := f.engine.GetCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, detail.CollectedData, 2)
	require.Equal(t, "reddit", detail.CollectedData[0].SourceType)
	require.Equal(t, 0, detail.CollectedData[0].SourceIndex)
	require.Equal(t, "trends", detail.CollectedData[1].SourceType)
	require.Equal(t, 1, detail.CollectedData[1].SourceIndex)
}

func TestNoDataFailsCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		&fakeCollector{kind: "gnews", fn: func(context.Context, collector.Request) (*collector.Batch, error) {
			return nil, errors.New("timeout")
		}},
		&fakeCollector{kind: "trends", fn: staticBatch("empty")},
	)

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "gnews"},
		domain.SourceRequest{SourceType: "trends"},
	))
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, cycle.Status)
	require.Equal(t, noDataMessage, cycle.ErrorMessage)
	require.NotNil(t, cycle.CompletedAt)

	// summarization never runs and no summary exists
	require.Zero(t, f.summarizer.callCount())
	_, err = f.summaries.GetByCycle(context.Background(), cycle.ID)
	require.ErrorIs(t, err, ports.ErrNotFound)

	// per-source records are still there for the audit trail
	records, err := f.collected.ListByCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestSummarizerFailureFailsCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeCollector{kind: "reddit", fn: staticBatch("golang", "post")})
	f.summarizer.fn = func(ports.SummarizeRequest) (*ports.SummarizeResult, error) {
		return nil, errors.New("openai returned 500")
	}

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "reddit", CredentialRef: "REDDIT_MAIN"},
	))
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, cycle.Status)
	require.Contains(t, cycle.ErrorMessage, "openai returned 500")
	require.NotNil(t, cycle.CompletedAt)
}

func TestCollectorPanicIsContained(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		&fakeCollector{kind: "reddit", fn: staticBatch("golang", "post")},
		&fakeCollector{kind: "youtube", fn: func(context.Context, collector.Request) (*collector.Batch, error) {
			panic("nil map write")
		}},
	)

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "reddit", CredentialRef: "REDDIT_MAIN"},
		domain.SourceRequest{SourceType: "youtube"},
	))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, cycle.Status)

	records, err := f.collected.ListByCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		if r.SourceType == "youtube" {
			require.Contains(t, r.Error, "collector panic")
		}
	}
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	cases := []struct {
		name string
		req  domain.CycleRequest
	}{
		{"missing name", domain.CycleRequest{Sources: []domain.SourceRequest{{SourceType: "reddit"}}, TimeframeDays: 3, LLMProvider: "openai", LLMModel: "m"}},
		{"no sources", domain.CycleRequest{Name: "x", TimeframeDays: 3, LLMProvider: "openai", LLMModel: "m"}},
		{"timeframe too small", validRequestWithTimeframe(0)},
		{"timeframe too large", validRequestWithTimeframe(8)},
		{"missing model", domain.CycleRequest{Name: "x", Sources: []domain.SourceRequest{{SourceType: "reddit"}}, TimeframeDays: 3, LLMProvider: "openai"}},
		{"source without type", domain.CycleRequest{Name: "x", Sources: []domain.SourceRequest{{}}, TimeframeDays: 3, LLMProvider: "openai", LLMModel: "m"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateAndRun(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	// nothing was persisted for rejected requests
	require.Empty(t, f.cycles.history)
}

func validRequestWithTimeframe(days int) domain.CycleRequest {
	req := validRequest(domain.SourceRequest{SourceType: "reddit"})
	req.TimeframeDays = days
	return req
}

func TestIdenticalRequestsCreateIndependentCycles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeCollector{kind: "trends", fn: staticBatch("trending", "x")})

	req := validRequest(domain.SourceRequest{SourceType: "trends"})
	first, err := f.engine.CreateAndRun(context.Background(), req)
	require.NoError(t, err)
	second, err := f.engine.CreateAndRun(context.Background(), req)
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 2, f.summarizer.callCount())
}

func TestFailCycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	stuck := &domain.Cycle{
		ID:        uuid.New(),
		Name:      "stuck",
		Status:    domain.StatusCollecting,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.cycles.Create(context.Background(), stuck))

	require.NoError(t, f.engine.FailCycle(context.Background(), stuck.ID, "operator intervention"))

	got, err := f.cycles.Get(context.Background(), stuck.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, got.Status)
	require.Equal(t, "operator intervention", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)

	// terminal cycles are rejected
	err = f.engine.FailCycle(context.Background(), stuck.ID, "again")
	require.ErrorIs(t, err, ports.ErrStatusConflict)

	err = f.engine.FailCycle(context.Background(), uuid.New(), "missing")
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestMarkStale(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	old := &domain.Cycle{
		ID:        uuid.New(),
		Status:    domain.StatusSummarizing,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	fresh := &domain.Cycle{
		ID:        uuid.New(),
		Status:    domain.StatusCollecting,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.cycles.Create(context.Background(), old))
	require.NoError(t, f.cycles.Create(context.Background(), fresh))

	count, err := f.engine.MarkStale(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	got, err := f.cycles.Get(context.Background(), old.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusFailed, got.Status)

	got, err = f.cycles.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCollecting, got.Status)
}

func TestGetCycleWithoutSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeCollector{kind: "gnews", fn: func(context.Context, collector.Request) (*collector.Batch, error) {
		return nil, errors.New("down")
	}})

	cycle, err := f.engine.CreateAndRun(context.Background(), validRequest(
		domain.SourceRequest{SourceType: "gnews"},
	))
	require.NoError(t, err)

	detail, err := f.engine.GetCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Nil(t, detail.Summary)
	require.Len(t, detail.CollectedData, 1)

	_, err = f.engine.GetCycle(context.Background(), uuid.New())
	require.ErrorIs(t, err, ports.ErrNotFound)
}

func TestCustomPromptAppended(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &fakeCollector{kind: "trends", fn: staticBatch("trending", "x")})

	req := validRequest(domain.SourceRequest{SourceType: "trends"})
	req.CustomPrompt = "Focus on renewable energy."

	_, err := f.engine.CreateAndRun(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, f.summarizer.callCount())
	prompt := f.summarizer.calls[0].Prompt
	require.Contains(t, prompt, "Additional instructions:")
	require.Contains(t, prompt, "Focus on renewable energy.")
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	idx := strings.Index(s, sub)
	require.GreaterOrEqual(t, idx, 0, "%q not found", sub)
	return idx
}
