package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/api/dto"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/service"
)

// AttendanceHandler exposes agent check-in and presence.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// CheckIn handles POST /api/attendance/check-in.
func (h *AttendanceHandler) CheckIn(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	rec, err := h.attendance.CheckIn(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, rec)
}

// CheckOut handles POST /api/attendance/check-out.
func (h *AttendanceHandler) CheckOut(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	rec, err := h.attendance.CheckOut(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, rec)
}

// Present handles GET /api/attendance/present.
func (h *AttendanceHandler) Present(c *fiber.Ctx) error {
	users, err := h.attendance.Present(c.UserContext())
	if err != nil {
		return err
	}
	return data(c, http.StatusOK, dto.NewUserList(users))
}

// Day handles GET /api/attendance/day?date=YYYY-MM-DD.
func (h *AttendanceHandler) Day(c *fiber.Ctx) error {
	day, err := parseTime(c.Query("date"))
	if err != nil {
		return err
	}
	var at time.Time
	if day != nil {
		at = *day
	}
	records, err := h.attendance.Day(c.UserContext(), at)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.AttendanceRecord{}
	}
	return data(c, http.StatusOK, records)
}
