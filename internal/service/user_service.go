package service

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// UserDependencies wires the user service.
type UserDependencies struct {
	UserRepo       repository.UserRepository
	DepartmentRepo repository.DepartmentRepository
	Policy         *auth.Policy
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	BcryptCost     int
}

// UserService manages staff accounts, roles and permission overrides.
type UserService struct {
	users       repository.UserRepository
	departments repository.DepartmentRepository
	policy      *auth.Policy
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	bcryptCost  int
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:       deps.UserRepo,
		departments: deps.DepartmentRepo,
		policy:      deps.Policy,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		bcryptCost:  deps.BcryptCost,
	}
}

// UserInput carries writable user fields. Nil pointers leave a field untouched on update.
type UserInput struct {
	Email               *string
	Name                *string
	Password            *string
	Role                *string
	Roles               []string
	DepartmentID        *string
	SubDepartment       *string
	PermissionOverrides map[string]bool
	IsActive            *bool
}

// List returns users matching filter.
func (s *UserService) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	list, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "user", map[string]any{"user_id": id})
	}
	return u, nil
}

// Permissions lists the effective permissions of u.
func (s *UserService) Permissions(u *domain.User) []domain.Permission {
	return s.policy.Permissions(u)
}

// Create adds a user. Duplicate emails surface as 409.
func (s *UserService) Create(ctx context.Context, actor *auth.Principal, in UserInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(derefString(in.Email)))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperrors.NewValidationError("a valid email is required", nil)
	}
	name := strings.TrimSpace(derefString(in.Name))
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	u := &domain.User{
		Email:               email,
		Name:                name,
		Role:                derefString(in.Role),
		Roles:               in.Roles,
		DepartmentID:        trimmedOrNil(in.DepartmentID),
		SubDepartment:       strings.TrimSpace(derefString(in.SubDepartment)),
		PermissionOverrides: map[string]bool{},
		IsActive:            in.IsActive == nil || *in.IsActive,
	}
	if err := s.applyOverrides(u, in.PermissionOverrides); err != nil {
		return nil, err
	}
	if err := s.checkDepartment(ctx, u.DepartmentID); err != nil {
		return nil, err
	}
	if in.Password != nil && *in.Password != "" {
		if len(*in.Password) < minPasswordLength {
			return nil, apperrors.NewValidationError("password must be at least 8 characters", nil)
		}
		hash, err := auth.HashPassword(*in.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		u.PasswordHash = hash
	}
	u.Normalize()
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperrors.MapError(err)
	}
	auditChange(ctx, s.dispatcher, actor, "user.created", "user", u.ID, map[string]any{
		"email": u.Email,
		"roles": u.Roles,
	})
	return u, nil
}

// Update patches a user. Setting Roles or Role recomputes both.
func (s *UserService) Update(ctx context.Context, actor *auth.Principal, id string, in UserInput) (*domain.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := map[string]any{"role": u.Role, "roles": append([]string(nil), u.Roles...), "isActive": u.IsActive}

	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperrors.NewValidationError("a valid email is required", nil)
		}
		u.Email = email
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name must not be empty", nil)
		}
		u.Name = name
	}
	switch {
	case in.Roles != nil:
		u.Roles = in.Roles
		u.Role = ""
	case in.Role != nil:
		// a bare role replaces the role set
		u.Roles = nil
		u.Role = *in.Role
	}
	if in.DepartmentID != nil {
		u.DepartmentID = trimmedOrNil(in.DepartmentID)
		if err := s.checkDepartment(ctx, u.DepartmentID); err != nil {
			return nil, err
		}
	}
	if in.SubDepartment != nil {
		u.SubDepartment = strings.TrimSpace(*in.SubDepartment)
	}
	if in.PermissionOverrides != nil {
		u.PermissionOverrides = map[string]bool{}
		if err := s.applyOverrides(u, in.PermissionOverrides); err != nil {
			return nil, err
		}
	}
	if in.IsActive != nil {
		if !*in.IsActive && actor != nil && actor.User != nil && actor.User.ID == u.ID {
			return nil, apperrors.NewValidationError("you cannot deactivate yourself", nil)
		}
		u.IsActive = *in.IsActive
	}
	u.Normalize()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, mapNotFound(err, "user", map[string]any{"user_id": id})
	}
	auditChange(ctx, s.dispatcher, actor, "user.updated", "user", u.ID, map[string]any{
		"before": before,
		"after":  map[string]any{"role": u.Role, "roles": u.Roles, "isActive": u.IsActive},
	})
	return u, nil
}

// Deactivate disables a user account.
func (s *UserService) Deactivate(ctx context.Context, actor *auth.Principal, id string) (*domain.User, error) {
	return s.Update(ctx, actor, id, UserInput{IsActive: ptrBool(false)})
}

func (s *UserService) applyOverrides(u *domain.User, overrides map[string]bool) error {
	known := make(map[domain.Permission]struct{}, len(domain.AllPermissions))
	for _, p := range domain.AllPermissions {
		known[p] = struct{}{}
	}
	for perm, granted := range overrides {
		if _, ok := known[domain.Permission(perm)]; !ok {
			return apperrors.NewValidationError("unknown permission", map[string]any{"permission": perm})
		}
		u.PermissionOverrides[perm] = granted
	}
	return nil
}

func (s *UserService) checkDepartment(ctx context.Context, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := s.departments.GetByID(ctx, *id); err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewValidationError("department not found", map[string]any{"department_id": *id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// Drifted lists users whose role column disagrees with their roles.
func (s *UserService) Drifted(ctx context.Context) ([]domain.User, error) {
	list, err := s.users.ListDrifted(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// RoleSyncResult reports a repair run.
type RoleSyncResult struct {
	Checked int      `json:"checked"`
	Fixed   int      `json:"fixed"`
	Emails  []string `json:"emails"`
	Errors  []string `json:"errors"`
}

// SyncRoles rewrites every drifted user with the normalized role projection.
// dryRun only reports.
func (s *UserService) SyncRoles(ctx context.Context, dryRun bool) (*RoleSyncResult, error) {
	drifted, err := s.Drifted(ctx)
	if err != nil {
		return nil, err
	}
	result := &RoleSyncResult{Checked: len(drifted), Emails: []string{}, Errors: []string{}}
	for i := range drifted {
		u := &drifted[i]
		result.Emails = append(result.Emails, u.Email)
		if dryRun {
			continue
		}
		u.Normalize()
		if err := s.users.Update(ctx, u); err != nil {
			result.Errors = append(result.Errors, u.Email+": "+err.Error())
			continue
		}
		result.Fixed++
		s.logger.Info("user roles normalized",
			zap.String("email", u.Email),
			zap.String("role", u.Role),
			zap.Strings("roles", u.Roles),
		)
	}
	return result, nil
}
