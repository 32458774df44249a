package ports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/domain"
)

// ErrNotFound is returned when a requested record or credential is absent.
var ErrNotFound = errors.New("not found")

// ErrStatusConflict is returned when a cycle status update would move the
// lifecycle backward or race a concurrent transition.
var ErrStatusConflict = errors.New("cycle status conflict")

// CredentialResolver resolves an indirect credential reference into secret
// material. Missing references yield ErrNotFound.
type CredentialResolver interface {
	Resolve(ref string) (domain.Credential, error)
}

// SummarizeRequest carries everything the summarizer capability needs for
// the single summarization call of a cycle.
type SummarizeRequest struct {
	Text     string
	Prompt   string
	Provider string
	Model    string
}

// SummarizeResult is the raw output of the summarizer capability.
type SummarizeResult struct {
	Text           string
	InputTokens    int
	OutputTokens   int
	GenerationTime time.Duration
}

// Summarizer generates an AI summary of aggregated collected content.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResult, error)
}

// StatusUpdate describes one forward transition of a cycle.
type StatusUpdate struct {
	From         domain.CycleStatus
	To           domain.CycleStatus
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// CycleFilter narrows a cycle listing.
type CycleFilter struct {
	Status   domain.CycleStatus
	Page     int
	PageSize int
}

// CycleRepository persists cycle records.
type CycleRepository interface {
	Create(ctx context.Context, cycle *domain.Cycle) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Cycle, error)
	List(ctx context.Context, filter CycleFilter) ([]domain.Cycle, int, error)
	// UpdateStatus applies upd only if the stored status equals upd.From,
	// returning ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate) error
	// Delete removes the cycle and cascades to its collected data and summary.
	Delete(ctx context.Context, id uuid.UUID) error
	// MarkStale fails non-terminal cycles created before the cutoff and
	// returns how many were affected.
	MarkStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}

// CollectedDataRepository persists per-source collection records. Append is
// a single-row insert so one slow source never locks the whole cycle.
type CollectedDataRepository interface {
	Append(ctx context.Context, data *domain.CollectedData) error
	ListByCycle(ctx context.Context, cycleID uuid.UUID) ([]domain.CollectedData, error)
}

// SummaryRepository persists the cycle summary.
type SummaryRepository interface {
	Create(ctx context.Context, summary *domain.Summary) error
	GetByCycle(ctx context.Context, cycleID uuid.UUID) (*domain.Summary, error)
}

// SourceConfigRepository stores reusable source configurations.
type SourceConfigRepository interface {
	Create(ctx context.Context, cfg *domain.SourceConfig) error
	Get(ctx context.Context, id uuid.UUID) (*domain.SourceConfig, error)
	List(ctx context.Context, sourceType string, enabled *bool) ([]domain.SourceConfig, error)
	Update(ctx context.Context, cfg *domain.SourceConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Scheduler controls when recurring digest runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
