package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// UserFilter defines query params for user listing.
type UserFilter struct {
	DepartmentID *string
	Role         *string
	Active       *bool
	Search       string
	Limit        int
	Offset       int
}

// UserRepository defines persistence access for helpdesk users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	ListDrifted(ctx context.Context) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, email, name, password_hash, role, roles, department_id, sub_department,
               permission_overrides, is_active, created_at, updated_at`

// Create persists user. Role is always written as the projection of Roles.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	user.Normalize()
	const query = `
        INSERT INTO users (email, name, password_hash, role, roles, department_id, sub_department, permission_overrides, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Roles,
		user.DepartmentID,
		user.SubDepartment,
		overridesOrEmpty(user.PermissionOverrides),
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.Normalize()
	const query = `
        UPDATE users SET email=$1, name=$2, password_hash=$3, role=$4, roles=$5, department_id=$6,
            sub_department=$7, permission_overrides=$8, is_active=$9, updated_at=NOW()
        WHERE id=$10
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Roles,
		user.DepartmentID,
		user.SubDepartment,
		overridesOrEmpty(user.PermissionOverrides),
		user.IsActive,
		user.ID,
	).Scan(&user.UpdatedAt)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(strings.TrimSpace(email))))
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	var where whereBuilder
	if filter.DepartmentID != nil {
		where.add("department_id=$%d", *filter.DepartmentID)
	}
	if filter.Role != nil {
		where.add("$%d = ANY(roles)", domain.CanonicalRole(*filter.Role))
	}
	if filter.Active != nil {
		where.add("is_active=$%d", *filter.Active)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where.add("(LOWER(name) LIKE $%[1]d OR email LIKE $%[1]d)", "%"+strings.ToLower(s)+"%")
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset, 100)
	query := `SELECT ` + userColumns + ` FROM users` + where.sql() + ` ORDER BY name, id LIMIT $` +
		itoa(len(where.args)+1) + ` OFFSET $` + itoa(len(where.args)+2)
	args := append(where.args, limit, offset)
	return r.queryUsers(ctx, query, args...)
}

// ListDrifted returns users whose stored role disagrees with their roles array.
func (r *userRepository) ListDrifted(ctx context.Context) ([]domain.User, error) {
	users, err := r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	drifted := make([]domain.User, 0)
	for _, u := range users {
		if u.RolesDrifted() {
			drifted = append(drifted, u)
		}
	}
	return drifted, nil
}

func (r *userRepository) queryUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.Roles,
		&user.DepartmentID,
		&user.SubDepartment,
		&user.PermissionOverrides,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func overridesOrEmpty(overrides map[string]bool) map[string]bool {
	if overrides == nil {
		return map[string]bool{}
	}
	return overrides
}

// errIfNone converts a zero row count into pgx.ErrNoRows.
func errIfNone(affected int64) error {
	if affected == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
