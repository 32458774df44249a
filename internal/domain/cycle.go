package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CycleStatus enumerates lifecycle states of a digest cycle.
type CycleStatus string

const (
	StatusPending     CycleStatus = "pending"
	StatusCollecting  CycleStatus = "collecting"
	StatusSummarizing CycleStatus = "summarizing"
	StatusCompleted   CycleStatus = "completed"
	StatusFailed      CycleStatus = "failed"
)

// Terminal reports whether no further status change is permitted.
func (s CycleStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving to next is a legal forward step.
// The lifecycle only moves forward: pending → collecting → summarizing →
// completed, with failed reachable from collecting or summarizing.
func (s CycleStatus) CanTransition(next CycleStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusCollecting
	case StatusCollecting:
		return next == StatusSummarizing || next == StatusFailed
	case StatusSummarizing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// SourceRequest describes one source to collect from within a cycle.
// CollectSpec is an opaque key-value payload the matching collector
// validates itself.
type SourceRequest struct {
	SourceType    string         `json:"source_type" yaml:"sourceType"`
	CredentialRef string         `json:"credential_ref" yaml:"credentialRef"`
	CollectSpec   map[string]any `json:"collect_spec" yaml:"collectSpec"`
}

// ConfigSnapshot is the immutable copy of a cycle creation request, fixed
// when the cycle is created so later config edits never affect historical
// cycles.
type ConfigSnapshot struct {
	Sources       []SourceRequest `json:"sources" yaml:"sources"`
	TimeframeDays int             `json:"timeframe_days" yaml:"timeframeDays"`
	LLMProvider   string          `json:"llm_provider" yaml:"llmProvider"`
	LLMModel      string          `json:"llm_model" yaml:"llmModel"`
	CustomPrompt  string          `json:"custom_prompt,omitempty" yaml:"customPrompt"`
}

// CycleRequest is what callers submit to create and run a cycle.
type CycleRequest struct {
	Name          string          `json:"name" yaml:"name"`
	Sources       []SourceRequest `json:"sources" yaml:"sources"`
	TimeframeDays int             `json:"timeframe_days" yaml:"timeframeDays"`
	LLMProvider   string          `json:"llm_provider" yaml:"llmProvider"`
	LLMModel      string          `json:"llm_model" yaml:"llmModel"`
	CustomPrompt  string          `json:"custom_prompt,omitempty" yaml:"customPrompt"`
}

// Snapshot copies the request into an immutable config snapshot.
func (r CycleRequest) Snapshot() ConfigSnapshot {
	sources := make([]SourceRequest, len(r.Sources))
	for i, src := range r.Sources {
		spec := make(map[string]any, len(src.CollectSpec))
		for k, v := range src.CollectSpec {
			spec[k] = v
		}
		sources[i] = SourceRequest{
			SourceType:    src.SourceType,
			CredentialRef: src.CredentialRef,
			CollectSpec:   spec,
		}
	}
	return ConfigSnapshot{
		Sources:       sources,
		TimeframeDays: r.TimeframeDays,
		LLMProvider:   r.LLMProvider,
		LLMModel:      r.LLMModel,
		CustomPrompt:  r.CustomPrompt,
	}
}

// Cycle is one end-to-end run of collection plus summarization.
type Cycle struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Status       CycleStatus    `json:"status"`
	Snapshot     ConfigSnapshot `json:"config_snapshot"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// CollectedData is the record of one source's collection within a cycle,
// present for every requested source whether it succeeded or failed.
// SourceIndex is the source's position in the originating request and fixes
// the record order independently of which source finished first.
type CollectedData struct {
	ID               uuid.UUID       `json:"id"`
	CycleID          uuid.UUID       `json:"cycle_id"`
	SourceIndex      int             `json:"source_index"`
	SourceType       string          `json:"source_type"`
	SourceName       string          `json:"source_name,omitempty"`
	ItemCount        int             `json:"item_count"`
	DataSizeBytes    *int            `json:"data_size_bytes,omitempty"`
	CollectionTimeMS *int64          `json:"collection_time_ms,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	Error            string          `json:"error,omitempty"`
	CollectedAt      time.Time       `json:"collected_at"`
}

// Succeeded reports whether this source collected without error.
func (c CollectedData) Succeeded() bool {
	return c.Error == ""
}

// Summary is the LLM-generated digest for a cycle, at most one per cycle.
type Summary struct {
	ID               uuid.UUID `json:"id"`
	CycleID          uuid.UUID `json:"cycle_id"`
	LLMProvider      string    `json:"llm_provider"`
	ModelName        string    `json:"model_name"`
	SummaryText      string    `json:"summary_text"`
	SummaryWordCount int       `json:"summary_word_count"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	CostUSD          *float64  `json:"cost_usd,omitempty"`
	GenerationTimeMS int64     `json:"generation_time_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
