package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

type departmentRepo struct{ d *db }

func (r *departmentRepo) Create(_ context.Context, dept *domain.Department) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, existing := range r.d.departments {
		if strings.EqualFold(existing.Name, dept.Name) {
			return uniqueViolation("departments_name_key")
		}
		if strings.EqualFold(existing.Code, dept.Code) {
			return uniqueViolation("departments_code_key")
		}
	}
	now := r.d.stamp()
	dept.ID = uuid.NewString()
	dept.CreatedAt, dept.UpdatedAt = now, now
	stored := *dept
	r.d.departments[dept.ID] = &stored
	return nil
}

func (r *departmentRepo) Update(_ context.Context, dept *domain.Department) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.departments[dept.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	for id, other := range r.d.departments {
		if id == dept.ID {
			continue
		}
		if strings.EqualFold(other.Name, dept.Name) {
			return uniqueViolation("departments_name_key")
		}
		if strings.EqualFold(other.Code, dept.Code) {
			return uniqueViolation("departments_code_key")
		}
	}
	dept.CreatedAt = existing.CreatedAt
	dept.UpdatedAt = r.d.stamp()
	stored := *dept
	r.d.departments[dept.ID] = &stored
	return nil
}

func (r *departmentRepo) GetByID(_ context.Context, id string) (*domain.Department, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	dept, ok := r.d.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *dept
	return &out, nil
}

func (r *departmentRepo) GetByName(_ context.Context, name string) (*domain.Department, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, dept := range r.d.departments {
		if strings.EqualFold(dept.Name, name) || strings.EqualFold(dept.Code, name) {
			out := *dept
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *departmentRepo) List(_ context.Context) ([]domain.Department, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]domain.Department, 0, len(r.d.departments))
	for _, dept := range r.d.departments {
		out = append(out, *dept)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type userRepo struct{ d *db }

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	user.Normalize()
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if err := r.checkReferences(user); err != nil {
		return err
	}
	for _, existing := range r.d.users {
		if existing.Email == user.Email {
			return uniqueViolation("users_email_key")
		}
	}
	now := r.d.stamp()
	user.ID = uuid.NewString()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.PermissionOverrides == nil {
		user.PermissionOverrides = map[string]bool{}
	}
	r.d.users[user.ID] = cloneUser(user)
	return nil
}

func (r *userRepo) Update(_ context.Context, user *domain.User) error {
	user.Normalize()
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	existing, ok := r.d.users[user.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if err := r.checkReferences(user); err != nil {
		return err
	}
	for id, other := range r.d.users {
		if id != user.ID && other.Email == user.Email {
			return uniqueViolation("users_email_key")
		}
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = r.d.stamp()
	r.d.users[user.ID] = cloneUser(user)
	return nil
}

func (r *userRepo) checkReferences(user *domain.User) error {
	if user.DepartmentID == nil {
		return nil
	}
	if _, ok := r.d.departments[*user.DepartmentID]; !ok {
		return foreignKeyViolation("users_department_id_fkey")
	}
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	user, ok := r.d.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneUser(user), nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, user := range r.d.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *userRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var out []domain.User
	for _, user := range r.d.users {
		if filter.DepartmentID != nil && (user.DepartmentID == nil || *user.DepartmentID != *filter.DepartmentID) {
			continue
		}
		if filter.Role != nil && !user.HasRole(*filter.Role) {
			continue
		}
		if filter.Active != nil && user.IsActive != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(user.Name), search) && !strings.Contains(user.Email, search) {
			continue
		}
		out = append(out, *cloneUser(user))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Limit, filter.Offset, 100), nil
}

func (r *userRepo) ListDrifted(_ context.Context) ([]domain.User, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := make([]domain.User, 0)
	for _, user := range r.d.users {
		if user.RolesDrifted() {
			out = append(out, *cloneUser(user))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// InsertRawUser stores user without normalization. Used to reproduce legacy drift in tests.
func InsertRawUser(store *repository.Store, user *domain.User) {
	repo, ok := store.Users.(*userRepo)
	if !ok {
		return
	}
	repo.d.mu.Lock()
	defer repo.d.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	repo.d.users[user.ID] = cloneUser(user)
}
