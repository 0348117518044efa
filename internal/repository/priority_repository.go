package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
)

// PriorityConfigRepository stores versioned priority scoring rules.
type PriorityConfigRepository interface {
	GetActive(ctx context.Context) (*domain.PriorityConfig, error)
	// SaveNewVersion deactivates the current config and stores cfg as the next version.
	SaveNewVersion(ctx context.Context, cfg *domain.PriorityConfig) error
	ListVersions(ctx context.Context) ([]domain.PriorityConfig, error)
}

type priorityConfigRepository struct {
	pool *pgxpool.Pool
}

// NewPriorityConfigRepository builds repository.
func NewPriorityConfigRepository(pool *pgxpool.Pool) PriorityConfigRepository {
	return &priorityConfigRepository{pool: pool}
}

const priorityColumns = `id, version, default_base_score, gmv_tier_weights, tiers, is_active, created_by, created_at`

func (r *priorityConfigRepository) GetActive(ctx context.Context) (*domain.PriorityConfig, error) {
	return scanPriority(r.pool.QueryRow(ctx,
		`SELECT `+priorityColumns+` FROM priority_configs WHERE is_active ORDER BY version DESC LIMIT 1`))
}

func (r *priorityConfigRepository) SaveNewVersion(ctx context.Context, cfg *domain.PriorityConfig) error {
	return persistence.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE priority_configs IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM priority_configs`).Scan(&cfg.Version); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE priority_configs SET is_active=FALSE WHERE is_active`); err != nil {
			return err
		}
		cfg.IsActive = true
		const query = `
            INSERT INTO priority_configs (version, default_base_score, gmv_tier_weights, tiers, is_active, created_by)
            VALUES ($1,$2,$3,$4,TRUE,$5)
            RETURNING id, created_at`
		return tx.QueryRow(ctx, query,
			cfg.Version,
			cfg.DefaultBaseScore,
			cfg.GMVTierWeights,
			cfg.Tiers,
			cfg.CreatedBy,
		).Scan(&cfg.ID, &cfg.CreatedAt)
	})
}

func (r *priorityConfigRepository) ListVersions(ctx context.Context) ([]domain.PriorityConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+priorityColumns+` FROM priority_configs ORDER BY version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PriorityConfig
	for rows.Next() {
		cfg, err := scanPriority(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cfg)
	}
	return result, rows.Err()
}

func scanPriority(row rowScanner) (*domain.PriorityConfig, error) {
	var cfg domain.PriorityConfig
	if err := row.Scan(
		&cfg.ID,
		&cfg.Version,
		&cfg.DefaultBaseScore,
		&cfg.GMVTierWeights,
		&cfg.Tiers,
		&cfg.IsActive,
		&cfg.CreatedBy,
		&cfg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &cfg, nil
}
