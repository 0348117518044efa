package service

import (
	"context"
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const defaultAnalyticsWindow = 30 * 24 * time.Hour

// AnalyticsService aggregates ticket metrics.
type AnalyticsService struct {
	tickets repository.TicketRepository
	now     Clock
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(tickets repository.TicketRepository, clock Clock) *AnalyticsService {
	return &AnalyticsService{tickets: tickets, now: clockOrDefault(clock)}
}

// Summary aggregates tickets created in [from, to]. Missing bounds default to the last 30 days.
// Callers without view-all are limited to their department.
func (s *AnalyticsService) Summary(ctx context.Context, actor *auth.Principal, departmentID *string, from, to *time.Time) (*repository.AnalyticsSummary, error) {
	if actor == nil || actor.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	now := s.now()
	if to == nil {
		to = &now
	}
	if from == nil {
		start := to.Add(-defaultAnalyticsWindow)
		from = &start
	}
	if from.After(*to) {
		return nil, apperrors.NewValidationError("from must be before to", nil)
	}
	filter := repository.AnalyticsFilter{DepartmentID: trimmedOrNil(departmentID), From: from, To: to}
	if !actor.ViewAll {
		own := actor.DepartmentID()
		if own == "" || (filter.DepartmentID != nil && *filter.DepartmentID != own) {
			return nil, apperrors.NewForbidden("analytics limited to your department")
		}
		filter.DepartmentID = &own
	}
	summary, err := s.tickets.Analytics(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return summary, nil
}
