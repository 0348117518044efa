package service

import (
	"context"
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

// AttendanceService records agent check-ins.
type AttendanceService struct {
	repo  repository.AttendanceRepository
	users repository.UserRepository
	now   Clock
}

// NewAttendanceService constructs the service.
func NewAttendanceService(repo repository.AttendanceRepository, users repository.UserRepository, clock Clock) *AttendanceService {
	return &AttendanceService{repo: repo, users: users, now: clockOrDefault(clock)}
}

// CheckIn marks the caller present today.
func (s *AttendanceService) CheckIn(ctx context.Context, actor *auth.Principal) (*domain.AttendanceRecord, error) {
	if actor == nil || actor.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	rec, err := s.repo.CheckIn(ctx, actor.User.ID, s.now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rec, nil
}

// CheckOut ends the caller's shift. Checking out without a check-in is a 404.
func (s *AttendanceService) CheckOut(ctx context.Context, actor *auth.Principal) (*domain.AttendanceRecord, error) {
	if actor == nil || actor.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	rec, err := s.repo.CheckOut(ctx, actor.User.ID, s.now())
	if err != nil {
		return nil, mapNotFound(err, "check-in", map[string]any{"user_id": actor.User.ID})
	}
	return rec, nil
}

// Present returns the users checked in today and not checked out.
func (s *AttendanceService) Present(ctx context.Context) ([]domain.User, error) {
	ids, err := s.repo.ListPresent(ctx, domain.DayOf(s.now()))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, apperrors.MapError(err)
		}
		out = append(out, *u)
	}
	return out, nil
}

// Day lists every record of day; a zero day means today.
func (s *AttendanceService) Day(ctx context.Context, day time.Time) ([]domain.AttendanceRecord, error) {
	if day.IsZero() {
		day = s.now()
	}
	list, err := s.repo.ListByDay(ctx, domain.DayOf(day))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}
