package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

var departmentCode = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// DepartmentService manages departments and their ticket prefixes.
type DepartmentService struct {
	repo       repository.DepartmentRepository
	dispatcher events.Dispatcher
}

// NewDepartmentService constructs the service.
func NewDepartmentService(repo repository.DepartmentRepository, dispatcher events.Dispatcher) *DepartmentService {
	return &DepartmentService{repo: repo, dispatcher: dispatcher}
}

// DepartmentInput carries writable department fields.
type DepartmentInput struct {
	Name     string
	Code     string
	IsActive *bool
}

func (in DepartmentInput) normalize() (string, string, error) {
	name := strings.TrimSpace(in.Name)
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if name == "" {
		return "", "", apperrors.NewValidationError("name is required", nil)
	}
	if !departmentCode.MatchString(code) {
		return "", "", apperrors.NewValidationError("code must be 2-10 uppercase letters or digits", map[string]any{"code": in.Code})
	}
	return name, code, nil
}

// List returns every department.
func (s *DepartmentService) List(ctx context.Context) ([]domain.Department, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// Get returns one department.
func (s *DepartmentService) Get(ctx context.Context, id string) (*domain.Department, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "department", map[string]any{"department_id": id})
	}
	return d, nil
}

// Create adds a department. Codes are unique and become ticket prefixes.
func (s *DepartmentService) Create(ctx context.Context, actor *auth.Principal, in DepartmentInput) (*domain.Department, error) {
	name, code, err := in.normalize()
	if err != nil {
		return nil, err
	}
	d := &domain.Department{Name: name, Code: code, IsActive: in.IsActive == nil || *in.IsActive}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, apperrors.MapError(err)
	}
	auditChange(ctx, s.dispatcher, actor, "department.created", "department", d.ID, map[string]any{"name": name, "code": code})
	return d, nil
}

// Update renames a department or toggles it. Changing the code only affects new tickets.
func (s *DepartmentService) Update(ctx context.Context, actor *auth.Principal, id string, in DepartmentInput) (*domain.Department, error) {
	name, code, err := in.normalize()
	if err != nil {
		return nil, err
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Name, d.Code = name, code
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, mapNotFound(err, "department", map[string]any{"department_id": id})
	}
	auditChange(ctx, s.dispatcher, actor, "department.updated", "department", d.ID, map[string]any{"name": name, "code": code, "isActive": d.IsActive})
	return d, nil
}
