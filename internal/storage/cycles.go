package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

// CycleRepository persists cycle records in Postgres.
type CycleRepository struct {
	db *sql.DB
}

var _ ports.CycleRepository = (*CycleRepository)(nil)

// NewCycleRepository wires a database handle.
func NewCycleRepository(db *sql.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// Create inserts a new cycle with its immutable config snapshot.
func (r *CycleRepository) Create(ctx context.Context, cycle *domain.Cycle) error {
	snapshot, err := json.Marshal(cycle.Snapshot)
	if err != nil {
		return fmt.Errorf("encode config snapshot: %w", err)
	}

	query, args, err := psql.Insert("cycles").
		Columns("id", "name", "status", "config_snapshot", "created_at").
		Values(cycle.ID, cycle.Name, cycle.Status, snapshot, cycle.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// Get loads one cycle by id.
func (r *CycleRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Cycle, error) {
	query, args, err := cycleSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	cycle, err := scanCycle(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cycle %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("load cycle: %w", err)
	}
	return cycle, nil
}

// List returns one page of cycles ordered newest-first plus the total count.
func (r *CycleRepository) List(ctx context.Context, filter ports.CycleFilter) ([]domain.Cycle, int, error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}

	countBuilder := psql.Select("COUNT(*)").From("cycles")
	if len(where) > 0 {
		countBuilder = countBuilder.Where(where)
	}
	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cycles: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	builder := cycleSelect().
		OrderBy("created_at DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize))
	if len(where) > 0 {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []domain.Cycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan cycle: %w", err)
		}
		cycles = append(cycles, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate cycles: %w", err)
	}

	return cycles, total, nil
}

// UpdateStatus applies one forward transition, guarded by the expected
// current status so concurrent or backward updates fail with
// ports.ErrStatusConflict.
func (r *CycleRepository) UpdateStatus(ctx context.Context, id uuid.UUID, upd ports.StatusUpdate) error {
	if !upd.From.CanTransition(upd.To) {
		return fmt.Errorf("transition %s -> %s: %w", upd.From, upd.To, ports.ErrStatusConflict)
	}

	builder := psql.Update("cycles").
		Set("status", upd.To).
		Where(sq.Eq{"id": id, "status": upd.From})
	if upd.ErrorMessage != "" {
		builder = builder.Set("error_message", upd.ErrorMessage)
	}
	if upd.StartedAt != nil {
		builder = builder.Set("started_at", *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		builder = builder.Set("completed_at", *upd.CompletedAt)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update cycle status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cycle %s is not in status %s: %w", id, upd.From, ports.ErrStatusConflict)
	}
	return nil
}

// Delete removes the cycle; collected data and summaries cascade via the
// schema's foreign keys.
func (r *CycleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.Delete("cycles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete cycle: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cycle %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// MarkStale fails every non-terminal cycle created before the cutoff.
func (r *CycleRepository) MarkStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	now := time.Now().UTC()
	query, args, err := psql.Update("cycles").
		Set("status", domain.StatusFailed).
		Set("error_message", reason).
		Set("completed_at", now).
		Where(sq.NotEq{"status": []domain.CycleStatus{domain.StatusCompleted, domain.StatusFailed}}).
		Where(sq.Lt{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark stale cycles: %w", err)
	}
	return result.RowsAffected()
}

func cycleSelect() sq.SelectBuilder {
	return psql.Select(
		"id", "name", "status", "config_snapshot",
		"created_at", "started_at", "completed_at", "error_message",
	).From("cycles")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*domain.Cycle, error) {
	var (
		cycle        domain.Cycle
		snapshot     []byte
		startedAt    sql.NullTime
		completedAt  sql.NullTime
		errorMessage sql.NullString
	)

	if err := row.Scan(
		&cycle.ID, &cycle.Name, &cycle.Status, &snapshot,
		&cycle.CreatedAt, &startedAt, &completedAt, &errorMessage,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(snapshot, &cycle.Snapshot); err != nil {
		return nil, fmt.Errorf("decode config snapshot: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		cycle.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		cycle.CompletedAt = &t
	}
	cycle.ErrorMessage = errorMessage.String

	return &cycle, nil
}
