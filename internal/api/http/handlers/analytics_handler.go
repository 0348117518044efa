package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/service"
)

// AnalyticsHandler exposes the team summary.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Summary handles GET /api/analytics/summary.
func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return err
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return err
	}
	summary, err := h.analytics.Summary(c.UserContext(), principal, optionalQuery(c, "department_id"), from, to)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, summary)
}
