package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

type attendanceRepo struct{ d *db }

func attendanceKey(userID string, day time.Time) string {
	return userID + "|" + day.Format("2006-01-02")
}

func (r *attendanceRepo) CheckIn(_ context.Context, userID string, at time.Time) (*domain.AttendanceRecord, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.users[userID]; !ok {
		return nil, foreignKeyViolation("attendance_user_id_fkey")
	}
	day := domain.DayOf(at)
	key := attendanceKey(userID, day)
	if rec, ok := r.d.attendance[key]; ok {
		rec.CheckOutAt = nil
		return cloneAttendance(rec), nil
	}
	rec := &domain.AttendanceRecord{ID: uuid.NewString(), UserID: userID, Day: day, CheckInAt: at}
	r.d.attendance[key] = rec
	return cloneAttendance(rec), nil
}

func (r *attendanceRepo) CheckOut(_ context.Context, userID string, at time.Time) (*domain.AttendanceRecord, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	rec, ok := r.d.attendance[attendanceKey(userID, domain.DayOf(at))]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := at
	rec.CheckOutAt = &out
	return cloneAttendance(rec), nil
}

func (r *attendanceRepo) ListPresent(_ context.Context, day time.Time) ([]string, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	day = domain.DayOf(day)
	var ids []string
	for _, rec := range r.d.attendance {
		if rec.Day.Equal(day) && rec.Present() {
			ids = append(ids, rec.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *attendanceRepo) ListByDay(_ context.Context, day time.Time) ([]domain.AttendanceRecord, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	day = domain.DayOf(day)
	var out []domain.AttendanceRecord
	for _, rec := range r.d.attendance {
		if rec.Day.Equal(day) {
			out = append(out, *cloneAttendance(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInAt.Before(out[j].CheckInAt) })
	return out, nil
}
