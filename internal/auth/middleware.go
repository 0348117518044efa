package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// UserEmailHeader carries the caller identity for internal clients.
const UserEmailHeader = "x-user-email"

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User       *domain.User
	Department *domain.Department
	// ViewAll is true when the caller may see tickets of every department.
	ViewAll bool
}

// Can reports whether the caller holds perm under policy.
func (p *Principal) Can(policy *Policy, perm domain.Permission) bool {
	return p != nil && policy.Can(p.User, perm)
}

// DepartmentID returns the caller department, or "" when unset.
func (p *Principal) DepartmentID() string {
	if p == nil || p.User == nil || p.User.DepartmentID == nil {
		return ""
	}
	return *p.User.DepartmentID
}

// CanAccessDepartment reports whether tickets of departmentID are visible to the caller.
func (p *Principal) CanAccessDepartment(departmentID string) bool {
	if p == nil {
		return false
	}
	return p.ViewAll || (departmentID != "" && p.DepartmentID() == departmentID)
}

// Scope decides department visibility for callers.
type Scope struct {
	policy         *Policy
	allDepartments []string
}

// NewScope builds a scope resolver. allDepartments holds department names or codes that see every ticket.
func NewScope(policy *Policy, allDepartments []string) *Scope {
	return &Scope{policy: policy, allDepartments: allDepartments}
}

// ViewAll reports whether user sees tickets of every department.
func (s *Scope) ViewAll(user *domain.User, dept *domain.Department) bool {
	if s.policy.Can(user, domain.PermTicketsViewAll) {
		return true
	}
	if dept == nil {
		return false
	}
	for _, name := range s.allDepartments {
		if strings.EqualFold(name, dept.Name) || strings.EqualFold(name, dept.Code) {
			return true
		}
	}
	return false
}

// AuthMiddleware resolves the caller from x-user-email or a bearer token.
type AuthMiddleware struct {
	tokens      *TokenManager
	users       repository.UserRepository
	departments repository.DepartmentRepository
	scope       *Scope
	logger      *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, departments repository.DepartmentRepository, scope *Scope, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, departments: departments, scope: scope, logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	ctx := c.UserContext()
	var (
		user *domain.User
		err  error
	)
	if email := strings.TrimSpace(c.Get(UserEmailHeader)); email != "" {
		user, err = m.users.GetByEmail(ctx, email)
	} else {
		user, err = m.userFromBearer(ctx, c.Get(fiber.HeaderAuthorization))
	}
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewUnauthorized("unknown user")
		}
		return apperrors.MapError(err)
	}
	if !user.IsActive {
		return apperrors.NewUnauthorized("user is deactivated")
	}

	principal, err := m.Resolve(ctx, user)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// Resolve builds a principal for an already loaded user.
func (m *AuthMiddleware) Resolve(ctx context.Context, user *domain.User) (*Principal, error) {
	principal := &Principal{User: user}
	if user.DepartmentID != nil {
		dept, err := m.departments.GetByID(ctx, *user.DepartmentID)
		if err != nil && !apperrors.IsNotFound(err) {
			return nil, apperrors.MapError(err)
		}
		if err != nil {
			m.logger.Warn("user department missing", zap.String("user_id", user.ID), zap.String("department_id", *user.DepartmentID))
		}
		principal.Department = dept
	}
	principal.ViewAll = m.scope.ViewAll(user, principal.Department)
	return principal, nil
}

func (m *AuthMiddleware) userFromBearer(ctx context.Context, header string) (*domain.User, error) {
	if header == "" {
		return nil, apperrors.NewUnauthorized("missing x-user-email or authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}
	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	return m.users.GetByID(ctx, claims.Subject)
}

// RequirePermission rejects callers lacking perm.
func RequirePermission(policy *Policy, perm domain.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Can(policy, perm) {
			return apperrors.NewForbidden("missing permission " + string(perm))
		}
		return c.Next()
	}
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
