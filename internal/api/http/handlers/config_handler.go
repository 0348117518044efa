package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/api/dto"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/service"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// ConfigHandler exposes departments, categories, SLA, priority and routing configuration.
type ConfigHandler struct {
	departments *service.DepartmentService
	categories  *service.CategoryService
	sla         *service.SLAService
	priority    *service.PriorityService
	routing     *service.RoutingService
}

// ConfigServices bundles the configuration services.
type ConfigServices struct {
	Departments *service.DepartmentService
	Categories  *service.CategoryService
	SLA         *service.SLAService
	Priority    *service.PriorityService
	Routing     *service.RoutingService
}

// NewConfigHandler constructs handler.
func NewConfigHandler(s ConfigServices) *ConfigHandler {
	return &ConfigHandler{
		departments: s.Departments,
		categories:  s.Categories,
		sla:         s.SLA,
		priority:    s.Priority,
		routing:     s.Routing,
	}
}

// ListDepartments handles GET /api/departments.
func (h *ConfigHandler) ListDepartments(c *fiber.Ctx) error {
	list, err := h.departments.List(c.UserContext())
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.Department{}
	}
	return data(c, http.StatusOK, list)
}

// GetDepartment handles GET /api/departments/:id.
func (h *ConfigHandler) GetDepartment(c *fiber.Ctx) error {
	d, err := h.departments.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, d)
}

// CreateDepartment handles POST /api/departments.
func (h *ConfigHandler) CreateDepartment(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	d, err := h.departments.Create(c.UserContext(), principal, service.DepartmentInput{Name: req.Name, Code: req.Code, IsActive: req.IsActive})
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, d)
}

// UpdateDepartment handles PATCH /api/departments/:id.
func (h *ConfigHandler) UpdateDepartment(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.DepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	d, err := h.departments.Update(c.UserContext(), principal, c.Params("id"), service.DepartmentInput{Name: req.Name, Code: req.Code, IsActive: req.IsActive})
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, d)
}

// Categories handles GET /api/config/categories; ?view=flat returns "L1 > L2" rows.
func (h *ConfigHandler) Categories(c *fiber.Ctx) error {
	switch c.Query("view", "tree") {
	case "flat":
		flat, err := h.categories.Flat(c.UserContext())
		if err != nil {
			return err
		}
		if flat == nil {
			flat = []domain.FlatCategory{}
		}
		return data(c, http.StatusOK, flat)
	case "tree":
		tree, err := h.categories.Tree(c.UserContext())
		if err != nil {
			return err
		}
		return data(c, http.StatusOK, dto.NewCategoryTree(tree))
	default:
		return apperrors.NewValidationError("view must be tree or flat", map[string]any{"view": c.Query("view")})
	}
}

// GetCategory handles GET /api/config/categories/:id.
func (h *ConfigHandler) GetCategory(c *fiber.Ctx) error {
	cat, err := h.categories.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCategoryResponse(cat))
}

// CreateCategory handles POST /api/config/categories.
func (h *ConfigHandler) CreateCategory(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CategoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cat, err := h.categories.Create(c.UserContext(), principal, categoryInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewCategoryResponse(cat))
}

// UpdateCategory handles PATCH /api/config/categories/:id.
func (h *ConfigHandler) UpdateCategory(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CategoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cat, err := h.categories.Update(c.UserContext(), principal, c.Params("id"), categoryInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewCategoryResponse(cat))
}

// DeleteCategory handles DELETE /api/config/categories/:id (soft delete).
func (h *ConfigHandler) DeleteCategory(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.categories.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListSLA handles GET /api/config/sla.
func (h *ConfigHandler) ListSLA(c *fiber.Ctx) error {
	list, err := h.sla.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.SLAResponse, 0, len(list))
	for i := range list {
		out = append(out, dto.NewSLAResponse(&list[i]))
	}
	return data(c, http.StatusOK, out)
}

// GetSLA handles GET /api/config/sla/:id.
func (h *ConfigHandler) GetSLA(c *fiber.Ctx) error {
	cfg, err := h.sla.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewSLAResponse(cfg))
}

// CreateSLA handles POST /api/config/sla.
func (h *ConfigHandler) CreateSLA(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SLARequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cfg, err := h.sla.Create(c.UserContext(), principal, slaInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewSLAResponse(cfg))
}

// UpdateSLA handles PATCH /api/config/sla/:id.
func (h *ConfigHandler) UpdateSLA(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SLARequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cfg, err := h.sla.Update(c.UserContext(), principal, c.Params("id"), slaInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewSLAResponse(cfg))
}

// DeleteSLA handles DELETE /api/config/sla/:id.
func (h *ConfigHandler) DeleteSLA(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.sla.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Priority handles GET /api/config/priority.
func (h *ConfigHandler) Priority(c *fiber.Ctx) error {
	cfg, err := h.priority.Active(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewPriorityResponse(&cfg))
}

// PriorityVersions handles GET /api/config/priority/versions.
func (h *ConfigHandler) PriorityVersions(c *fiber.Ctx) error {
	versions, err := h.priority.Versions(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.PriorityResponse, 0, len(versions))
	for i := range versions {
		out = append(out, dto.NewPriorityResponse(&versions[i]))
	}
	return data(c, http.StatusOK, out)
}

// SavePriority handles PUT /api/config/priority; each save is a new version.
func (h *ConfigHandler) SavePriority(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cfg, err := h.priority.Save(c.UserContext(), principal, service.PriorityConfigInput{
		DefaultBaseScore: req.DefaultBaseScore,
		GMVTierWeights:   req.GMVTierWeights,
		Tiers:            req.Tiers,
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewPriorityResponse(cfg))
}

// ListRouting handles GET /api/config/routing.
func (h *ConfigHandler) ListRouting(c *fiber.Ctx) error {
	rules, err := h.routing.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.RoutingRuleResponse, 0, len(rules))
	for i := range rules {
		out = append(out, dto.NewRoutingRuleResponse(&rules[i]))
	}
	return data(c, http.StatusOK, out)
}

// GetRouting handles GET /api/config/routing/:id.
func (h *ConfigHandler) GetRouting(c *fiber.Ctx) error {
	rule, err := h.routing.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewRoutingRuleResponse(rule))
}

// CreateRouting handles POST /api/config/routing.
func (h *ConfigHandler) CreateRouting(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RoutingRuleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rule, err := h.routing.Create(c.UserContext(), principal, routingInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewRoutingRuleResponse(rule))
}

// UpdateRouting handles PATCH /api/config/routing/:id.
func (h *ConfigHandler) UpdateRouting(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RoutingRuleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rule, err := h.routing.Update(c.UserContext(), principal, c.Params("id"), routingInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewRoutingRuleResponse(rule))
}

// DeleteRouting handles DELETE /api/config/routing/:id.
func (h *ConfigHandler) DeleteRouting(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.routing.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RoutingCandidates handles GET /api/config/routing/candidates?department_id=.
func (h *ConfigHandler) RoutingCandidates(c *fiber.Ctx) error {
	dept := c.Query("department_id")
	if dept == "" {
		return apperrors.NewValidationError("department_id is required", nil)
	}
	users, err := h.routing.Candidates(c.UserContext(), dept)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserList(users))
}

func categoryInput(req dto.CategoryRequest) service.CategoryInput {
	return service.CategoryInput{
		ParentID:          req.ParentID,
		Name:              req.Name,
		DepartmentID:      req.DepartmentID,
		BasePriorityScore: req.BasePriorityScore,
		SLAConfigID:       req.SLAConfigID,
		DefaultTags:       req.DefaultTags,
		RequiredFields:    req.RequiredFields,
	}
}

func slaInput(req dto.SLARequest) service.SLAInput {
	return service.SLAInput{
		Name:              req.Name,
		DepartmentID:      req.DepartmentID,
		PriorityTier:      req.PriorityTier,
		ResponseMinutes:   req.ResponseMinutes,
		ResolutionMinutes: req.ResolutionMinutes,
		IsActive:          req.IsActive,
	}
}

func routingInput(req dto.RoutingRuleRequest) service.RoutingRuleInput {
	return service.RoutingRuleInput{
		CategoryID:      req.CategoryID,
		DepartmentID:    req.DepartmentID,
		OwnerTeam:       req.OwnerTeam,
		PriorityBoost:   req.PriorityBoost,
		Strategy:        req.Strategy,
		SpecificAgentID: req.SpecificAgentID,
		IsActive:        req.IsActive,
	}
}
