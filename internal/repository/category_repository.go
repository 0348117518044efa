package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// CategoryRepository persists the category tree.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	// Update bumps the version of the stored row.
	Update(ctx context.Context, category *domain.Category) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	ListActive(ctx context.Context) ([]domain.Category, error)
}

type categoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository builds repository.
func NewCategoryRepository(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{pool: pool}
}

const categoryColumns = `id, parent_id, level, name, department_id, base_priority_score, sla_config_id,
               default_tags, required_fields, version, deleted_at, created_at, updated_at`

func (r *categoryRepository) Create(ctx context.Context, c *domain.Category) error {
	const query = `
        INSERT INTO categories (parent_id, level, name, department_id, base_priority_score, sla_config_id, default_tags, required_fields)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		c.ParentID,
		c.Level,
		c.Name,
		c.DepartmentID,
		c.BasePriorityScore,
		c.SLAConfigID,
		stringsOrEmpty(c.DefaultTags),
		stringsOrEmpty(c.RequiredFields),
	).Scan(&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
}

func (r *categoryRepository) Update(ctx context.Context, c *domain.Category) error {
	const query = `
        UPDATE categories SET name=$1, department_id=$2, base_priority_score=$3, sla_config_id=$4,
            default_tags=$5, required_fields=$6, version=version+1, updated_at=NOW()
        WHERE id=$7 AND deleted_at IS NULL
        RETURNING version, updated_at`
	return r.pool.QueryRow(ctx, query,
		c.Name,
		c.DepartmentID,
		c.BasePriorityScore,
		c.SLAConfigID,
		stringsOrEmpty(c.DefaultTags),
		stringsOrEmpty(c.RequiredFields),
		c.ID,
	).Scan(&c.Version, &c.UpdatedAt)
}

func (r *categoryRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE categories SET deleted_at=$1, version=version+1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`, at, id)
	if err != nil {
		return err
	}
	return errIfNone(cmd.RowsAffected())
}

// GetByID returns the category even when soft deleted so snapshots can still be rendered.
func (r *categoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	return scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=$1`, id))
}

func (r *categoryRepository) ListActive(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories WHERE deleted_at IS NULL ORDER BY level, name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(
		&c.ID,
		&c.ParentID,
		&c.Level,
		&c.Name,
		&c.DepartmentID,
		&c.BasePriorityScore,
		&c.SLAConfigID,
		&c.DefaultTags,
		&c.RequiredFields,
		&c.Version,
		&c.DeletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
