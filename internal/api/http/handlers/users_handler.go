package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/api/dto"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/service"
)

// UsersHandler manages helpdesk staff accounts.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	filter := repository.UserFilter{
		DepartmentID: optionalQuery(c, "department_id"),
		Role:         optionalQuery(c, "role"),
		Search:       c.Query("q"),
		Limit:        limit,
		Offset:       offset,
	}
	if c.Query("active") != "" {
		active := queryBool(c, "active")
		filter.Active = &active
	}
	list, err := h.users.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserList(list))
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	u, err := h.users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(u, h.users.Permissions(u)))
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.users.Create(c.UserContext(), principal, userInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, dto.NewUserResponse(u, h.users.Permissions(u)))
}

// Update handles PATCH /api/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	u, err := h.users.Update(c.UserContext(), principal, c.Params("id"), userInput(req))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(u, h.users.Permissions(u)))
}

// Deactivate handles POST /api/users/:id/deactivate.
func (h *UsersHandler) Deactivate(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	u, err := h.users.Deactivate(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserResponse(u, nil))
}

// Drift handles GET /api/users/drift.
func (h *UsersHandler) Drift(c *fiber.Ctx) error {
	list, err := h.users.Drifted(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserList(list))
}

// SyncRoles handles POST /api/users/sync-roles?dry_run=true.
func (h *UsersHandler) SyncRoles(c *fiber.Ctx) error {
	result, err := h.users.SyncRoles(c.UserContext(), queryBool(c, "dry_run"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, result)
}

func userInput(req dto.UserRequest) service.UserInput {
	return service.UserInput{
		Email:               req.Email,
		Name:                req.Name,
		Password:            req.Password,
		Role:                req.Role,
		Roles:               req.Roles,
		DepartmentID:        req.DepartmentID,
		SubDepartment:       req.SubDepartment,
		PermissionOverrides: req.PermissionOverrides,
		IsActive:            req.IsActive,
	}
}
