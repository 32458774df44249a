package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/zivalx/dAIgest/internal/domain"
	"github.com/zivalx/dAIgest/internal/ports"
)

// CollectedDataRepository persists per-source collection records.
type CollectedDataRepository struct {
	db *sql.DB
}

var _ ports.CollectedDataRepository = (*CollectedDataRepository)(nil)

// NewCollectedDataRepository wires a database handle.
func NewCollectedDataRepository(db *sql.DB) *CollectedDataRepository {
	return &CollectedDataRepository{db: db}
}

// Append inserts one record as a single statement, so concurrent sources of
// the same cycle never contend on a cycle-wide lock.
func (r *CollectedDataRepository) Append(ctx context.Context, data *domain.CollectedData) error {
	var payload any
	if len(data.Data) > 0 {
		payload = []byte(data.Data)
	}

	query, args, err := psql.Insert("collected_data").
		Columns("id", "cycle_id", "source_index", "source_type", "source_name", "item_count",
			"data_size_bytes", "collection_time_ms", "data", "error", "collected_at").
		Values(data.ID, data.CycleID, data.SourceIndex, data.SourceType, nullIfEmpty(data.SourceName), data.ItemCount,
			data.DataSizeBytes, data.CollectionTimeMS, payload, nullIfEmpty(data.Error), data.CollectedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert collected data: %w", err)
	}
	return nil
}

// ListByCycle returns the cycle's records in the order the sources appeared
// in the originating request, not in completion order.
func (r *CollectedDataRepository) ListByCycle(ctx context.Context, cycleID uuid.UUID) ([]domain.CollectedData, error) {
	query, args, err := psql.Select(
		"id", "cycle_id", "source_index", "source_type", "source_name", "item_count",
		"data_size_bytes", "collection_time_ms", "data", "error", "collected_at",
	).From("collected_data").
		Where(sq.Eq{"cycle_id": cycleID}).
		OrderBy("source_index ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list collected data: %w", err)
	}
	defer rows.Close()

	var records []domain.CollectedData
	for rows.Next() {
		var (
			data             domain.CollectedData
			sourceName       sql.NullString
			dataSizeBytes    sql.NullInt64
			collectionTimeMS sql.NullInt64
			payload          []byte
			errorMessage     sql.NullString
		)
		if err := rows.Scan(
			&data.ID, &data.CycleID, &data.SourceIndex, &data.SourceType, &sourceName, &data.ItemCount,
			&dataSizeBytes, &collectionTimeMS, &payload, &errorMessage, &data.CollectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan collected data: %w", err)
		}
		data.SourceName = sourceName.String
		data.DataSizeBytes = nullableInt(dataSizeBytes)
		data.CollectionTimeMS = nullableInt64(collectionTimeMS)
		data.Data = payload
		data.Error = errorMessage.String
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collected data: %w", err)
	}

	return records, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
