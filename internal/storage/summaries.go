package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

// SummaryRepository persists cycle summaries.
type SummaryRepository struct {
	db *sql.DB
}

var _ ports.SummaryRepository = (*SummaryRepository)(nil)

// NewSummaryRepository wires a database handle.
func NewSummaryRepository(db *sql.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Create inserts the summary; the unique cycle_id constraint enforces at
// most one summary per cycle.
func (r *SummaryRepository) Create(ctx context.Context, summary *domain.Summary) error {
	query, args, err := psql.Insert("summaries").
		Columns("id", "cycle_id", "llm_provider", "model_name", "summary_text",
			"summary_word_count", "input_tokens", "output_tokens", "cost_usd",
			"generation_time_ms", "created_at").
		Values(summary.ID, summary.CycleID, summary.LLMProvider, summary.ModelName, summary.SummaryText,
			summary.SummaryWordCount, summary.InputTokens, summary.OutputTokens, summary.CostUSD,
			summary.GenerationTimeMS, summary.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// GetByCycle loads the cycle's summary, or ports.ErrNotFound when absent.
func (r *SummaryRepository) GetByCycle(ctx context.Context, cycleID uuid.UUID) (*domain.Summary, error) {
	query, args, err := psql.Select(
		"id", "cycle_id", "llm_provider", "model_name", "summary_text",
		"summary_word_count", "input_tokens", "output_tokens", "cost_usd",
		"generation_time_ms", "created_at",
	).From("summaries").
		Where(sq.Eq{"cycle_id": cycleID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var (
		summary domain.Summary
		costUSD sql.NullFloat64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.ID, &summary.CycleID, &summary.LLMProvider, &summary.ModelName, &summary.SummaryText,
		&summary.SummaryWordCount, &summary.InputTokens, &summary.OutputTokens, &costUSD,
		&summary.GenerationTimeMS, &summary.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("summary for cycle %s: %w", cycleID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("load summary: %w", err)
	}

	if costUSD.Valid {
		cost := costUSD.Float64
		summary.CostUSD = &cost
	}

	return &summary, nil
}
