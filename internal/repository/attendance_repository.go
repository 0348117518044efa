package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// AttendanceRepository tracks agent check-ins per day.
type AttendanceRepository interface {
	// CheckIn is idempotent per user and day; a later check-in clears an earlier check-out.
	CheckIn(ctx context.Context, userID string, at time.Time) (*domain.AttendanceRecord, error)
	CheckOut(ctx context.Context, userID string, at time.Time) (*domain.AttendanceRecord, error)
	ListPresent(ctx context.Context, day time.Time) ([]string, error)
	ListByDay(ctx context.Context, day time.Time) ([]domain.AttendanceRecord, error)
}

type attendanceRepository struct {
	pool *pgxpool.Pool
}

// NewAttendanceRepository builds repository.
func NewAttendanceRepository(pool *pgxpool.Pool) AttendanceRepository {
	return &attendanceRepository{pool: pool}
}

func (r *attendanceRepository) CheckIn(ctx context.Context, userID string, at time.Time) (*domain.AttendanceRecord, error) {
	const query = `
        INSERT INTO attendance (user_id, day, check_in_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id, day) DO UPDATE SET check_out_at=NULL
        RETURNING id, user_id, day, check_in_at, check_out_at`
	return scanAttendance(r.pool.QueryRow(ctx, query, userID, domain.DayOf(at), at))
}

func (r *attendanceRepository) CheckOut(ctx context.Context, userID string, at time.Time) (*domain.AttendanceRecord, error) {
	const query = `
        UPDATE attendance SET check_out_at=$3
        WHERE user_id=$1 AND day=$2
        RETURNING id, user_id, day, check_in_at, check_out_at`
	return scanAttendance(r.pool.QueryRow(ctx, query, userID, domain.DayOf(at), at))
}

func (r *attendanceRepository) ListPresent(ctx context.Context, day time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id::text FROM attendance WHERE day=$1 AND check_out_at IS NULL ORDER BY user_id`, domain.DayOf(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *attendanceRepository) ListByDay(ctx context.Context, day time.Time) ([]domain.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, day, check_in_at, check_out_at FROM attendance WHERE day=$1 ORDER BY check_in_at`, domain.DayOf(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func scanAttendance(row rowScanner) (*domain.AttendanceRecord, error) {
	var rec domain.AttendanceRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Day, &rec.CheckInAt, &rec.CheckOutAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
