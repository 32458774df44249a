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

// SourceConfigRepository stores reusable source configurations.
type SourceConfigRepository struct {
	db *sql.DB
}

var _ ports.SourceConfigRepository = (*SourceConfigRepository)(nil)

// NewSourceConfigRepository wires a database handle.
func NewSourceConfigRepository(db *sql.DB) *SourceConfigRepository {
	return &SourceConfigRepository{db: db}
}

// Create inserts a new source configuration.
func (r *SourceConfigRepository) Create(ctx context.Context, cfg *domain.SourceConfig) error {
	spec, err := json.Marshal(cfg.CollectSpec)
	if err != nil {
		return fmt.Errorf("encode collect spec: %w", err)
	}

	query, args, err := psql.Insert("source_configs").
		Columns("id", "name", "source_type", "credential_ref", "collect_spec", "enabled", "created_at", "updated_at").
		Values(cfg.ID, cfg.Name, cfg.SourceType, cfg.CredentialRef, spec, cfg.Enabled, cfg.CreatedAt, cfg.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert source config: %w", err)
	}
	return nil
}

// Get loads one configuration by id.
func (r *SourceConfigRepository) Get(ctx context.Context, id uuid.UUID) (*domain.SourceConfig, error) {
	query, args, err := configSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	cfg, err := scanSourceConfig(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source config %s: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("load source config: %w", err)
	}
	return cfg, nil
}

// List returns configurations, optionally filtered by type and enabled flag.
func (r *SourceConfigRepository) List(ctx context.Context, sourceType string, enabled *bool) ([]domain.SourceConfig, error) {
	builder := configSelect().OrderBy("created_at DESC")
	if sourceType != "" {
		builder = builder.Where(sq.Eq{"source_type": sourceType})
	}
	if enabled != nil {
		builder = builder.Where(sq.Eq{"enabled": *enabled})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list source configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.SourceConfig
	for rows.Next() {
		cfg, err := scanSourceConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source configs: %w", err)
	}

	return configs, nil
}

// Update rewrites a configuration in place.
func (r *SourceConfigRepository) Update(ctx context.Context, cfg *domain.SourceConfig) error {
	spec, err := json.Marshal(cfg.CollectSpec)
	if err != nil {
		return fmt.Errorf("encode collect spec: %w", err)
	}

	query, args, err := psql.Update("source_configs").
		Set("name", cfg.Name).
		Set("source_type", cfg.SourceType).
		Set("credential_ref", cfg.CredentialRef).
		Set("collect_spec", spec).
		Set("enabled", cfg.Enabled).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": cfg.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update source config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source config %s: %w", cfg.ID, ports.ErrNotFound)
	}
	return nil
}

// Delete removes a configuration. Running and historical cycles are
// unaffected: they carry their own config snapshot.
func (r *SourceConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.Delete("source_configs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete source config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source config %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

func configSelect() sq.SelectBuilder {
	return psql.Select(
		"id", "name", "source_type", "credential_ref", "collect_spec",
		"enabled", "created_at", "updated_at",
	).From("source_configs")
}

func scanSourceConfig(row rowScanner) (*domain.SourceConfig, error) {
	var (
		cfg  domain.SourceConfig
		spec []byte
	)
	if err := row.Scan(
		&cfg.ID, &cfg.Name, &cfg.SourceType, &cfg.CredentialRef, &spec,
		&cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(spec, &cfg.CollectSpec); err != nil {
		return nil, fmt.Errorf("decode collect spec: %w", err)
	}
	return &cfg, nil
}
