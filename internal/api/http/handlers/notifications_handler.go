package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/service"
)

// NotificationsHandler exposes the caller's in-app notifications and the audit log.
type NotificationsHandler struct {
	notifications *service.NotificationService
	audit         *service.AuditService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService, audit *service.AuditService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, audit: audit}
}

// List handles GET /api/notifications?unread=true.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	limit, _ := pagination(c)
	list, err := h.notifications.List(c.UserContext(), principal.User.ID, queryBool(c, "unread"), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []domain.Notification{}
	}
	return data(c, http.StatusOK, list)
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	n, err := h.notifications.UnreadCount(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, fiber.Map{"unread": n})
}

// MarkRead handles POST /api/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.notifications.MarkRead(c.UserContext(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	n, err := h.notifications.MarkAllRead(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, fiber.Map{"updated": n})
}

// Audit handles GET /api/audit.
func (h *NotificationsHandler) Audit(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	logs, err := h.audit.List(c.UserContext(), repository.AuditFilter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		ActorEmail: c.Query("actor"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	return data(c, http.StatusOK, logs)
}
