package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/api/dto"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/service"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// TicketsHandler manages staff ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	now     func() time.Time
}

// NewTicketsHandler constructs handler. now drives the computed SLA status.
func NewTicketsHandler(ticketService *service.TicketService, now func() time.Time) *TicketsHandler {
	if now == nil {
		now = time.Now
	}
	return &TicketsHandler{service: ticketService, now: now}
}

// Create handles POST /api/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Create(c.UserContext(), principal, service.TicketCreateInput{
		Subject:       req.Subject,
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		DepartmentID:  req.DepartmentID,
		VendorHandle:  req.VendorHandle,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Tags:          req.Tags,
		CustomFields:  req.CustomFields,
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, h.response(ticket))
}

// List handles GET /api/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c, principal.User.ID)
	if err != nil {
		return err
	}
	tickets, total, err := h.service.List(c.UserContext(), principal, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, h.response(&tickets[i]))
	}
	return data(c, http.StatusOK, dto.PageResponse[dto.TicketResponse]{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Get handles GET /api/tickets/:id. The id may also be a ticket number.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, h.response(ticket))
}

// Update handles PATCH /api/tickets/:id.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Update(c.UserContext(), principal, c.Params("id"), service.TicketUpdateInput{
		Subject:       req.Subject,
		Description:   req.Description,
		Tags:          req.Tags,
		CustomFields:  req.CustomFields,
		VendorHandle:  req.VendorHandle,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, h.response(ticket))
}

// ChangeStatus handles POST /api/tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), principal, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, h.response(ticket))
}

// Assign handles POST /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Assign(c.UserContext(), principal, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, h.response(ticket))
}

// AddComment handles POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CommentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	comment, err := h.service.AddComment(c.UserContext(), principal, c.Params("id"), req.Body, req.IsInternal)
	if err != nil {
		return err
	}
	return data(c, http.StatusCreated, comment)
}

// ListComments handles GET /api/tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	comments, err := h.service.ListComments(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	if comments == nil {
		comments = []domain.TicketComment{}
	}
	return data(c, http.StatusOK, comments)
}

// Activity handles GET /api/tickets/:id/activity.
func (h *TicketsHandler) Activity(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Activity(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.ActivityLog{}
	}
	return data(c, http.StatusOK, entries)
}

// Delete handles DELETE /api/tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *TicketsHandler) response(t *domain.Ticket) dto.TicketResponse {
	return dto.NewTicketResponse(t, service.AllowedTransitions(t.Status), h.now())
}

// parseTicketQuery reads list filters. assignee_id=me selects the caller.
func parseTicketQuery(c *fiber.Ctx, callerID string) (service.TicketListFilter, error) {
	limit, offset := pagination(c)
	filter := service.TicketListFilter{
		DepartmentID: optionalQuery(c, "department_id"),
		AssigneeID:   optionalQuery(c, "assignee_id"),
		Unassigned:   queryBool(c, "unassigned"),
		CategoryID:   optionalQuery(c, "category_id"),
		VendorHandle: optionalQuery(c, "vendor"),
		SearchTerm:   strings.TrimSpace(c.Query("q")),
		Limit:        limit,
		Offset:       offset,
	}
	if filter.AssigneeID != nil && *filter.AssigneeID == "me" {
		filter.AssigneeID = &callerID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status := domain.TicketStatus(strings.TrimSpace(part))
			if !status.Valid() {
				return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	var err error
	if filter.CreatedFrom, err = parseTime(c.Query("created_from")); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = parseTime(c.Query("created_to")); err != nil {
		return filter, err
	}
	return filter, nil
}
