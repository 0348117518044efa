package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// SLARepository persists SLA targets.
type SLARepository interface {
	Create(ctx context.Context, cfg *domain.SLAConfig) error
	Update(ctx context.Context, cfg *domain.SLAConfig) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SLAConfig, error)
	List(ctx context.Context) ([]domain.SLAConfig, error)
	// FindFor returns the most specific active config for department and tier.
	FindFor(ctx context.Context, departmentID, tier string) (*domain.SLAConfig, error)
}

type slaRepository struct {
	pool *pgxpool.Pool
}

// NewSLARepository builds repository.
func NewSLARepository(pool *pgxpool.Pool) SLARepository {
	return &slaRepository{pool: pool}
}

const slaColumns = `id, name, department_id, priority_tier, response_minutes, resolution_minutes, is_active, created_at, updated_at`

func (r *slaRepository) Create(ctx context.Context, cfg *domain.SLAConfig) error {
	const query = `
        INSERT INTO sla_configs (name, department_id, priority_tier, response_minutes, resolution_minutes, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		cfg.Name,
		cfg.DepartmentID,
		cfg.PriorityTier,
		cfg.ResponseMinutes,
		cfg.ResolutionMinutes,
		cfg.IsActive,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func (r *slaRepository) Update(ctx context.Context, cfg *domain.SLAConfig) error {
	const query = `
        UPDATE sla_configs SET name=$1, department_id=$2, priority_tier=$3, response_minutes=$4,
            resolution_minutes=$5, is_active=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		cfg.Name,
		cfg.DepartmentID,
		cfg.PriorityTier,
		cfg.ResponseMinutes,
		cfg.ResolutionMinutes,
		cfg.IsActive,
		cfg.ID,
	).Scan(&cfg.UpdatedAt)
}

func (r *slaRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sla_configs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return errIfNone(cmd.RowsAffected())
}

func (r *slaRepository) GetByID(ctx context.Context, id string) (*domain.SLAConfig, error) {
	return scanSLA(r.pool.QueryRow(ctx, `SELECT `+slaColumns+` FROM sla_configs WHERE id=$1`, id))
}

func (r *slaRepository) List(ctx context.Context) ([]domain.SLAConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+slaColumns+` FROM sla_configs ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAConfig
	for rows.Next() {
		cfg, err := scanSLA(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cfg)
	}
	return result, rows.Err()
}

// FindFor ranks exact department+tier first, then department-wide, then tier-wide, then global.
func (r *slaRepository) FindFor(ctx context.Context, departmentID, tier string) (*domain.SLAConfig, error) {
	const query = `
        SELECT ` + slaColumns + ` FROM sla_configs
        WHERE is_active
          AND (department_id::text = $1 OR department_id IS NULL)
          AND (priority_tier = $2 OR priority_tier = '')
        ORDER BY (department_id IS NULL), (priority_tier = ''), created_at
        LIMIT 1`
	return scanSLA(r.pool.QueryRow(ctx, query, departmentID, tier))
}

func scanSLA(row rowScanner) (*domain.SLAConfig, error) {
	var cfg domain.SLAConfig
	if err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.DepartmentID,
		&cfg.PriorityTier,
		&cfg.ResponseMinutes,
		&cfg.ResolutionMinutes,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &cfg, nil
}
