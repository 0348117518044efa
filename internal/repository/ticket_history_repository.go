package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// ActivityRepository stores the per-ticket timeline.
type ActivityRepository interface {
	Create(ctx context.Context, entry *domain.ActivityLog) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLog, error)
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository builds repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, entry *domain.ActivityLog) error {
	const query = `
        INSERT INTO activity_logs (ticket_id, actor_id, action, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.ActorID,
		entry.Action,
		entry.OldValue,
		entry.NewValue,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *activityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityLog, error) {
	const query = `
        SELECT id, ticket_id, actor_id, action, old_value, new_value, created_at
        FROM activity_logs WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ActivityLog
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.Action,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	EntityType string
	EntityID   string
	ActorEmail string
	Limit      int
	Offset     int
}

// AuditRepository stores configuration and data change records.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditLog, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	const query = `
        INSERT INTO audit_logs (actor_email, action, entity_type, entity_id, changes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		entry.ActorEmail,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.Changes,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]domain.AuditLog, error) {
	var where whereBuilder
	if filter.EntityType != "" {
		where.add("entity_type=$%d", filter.EntityType)
	}
	if filter.EntityID != "" {
		where.add("entity_id=$%d", filter.EntityID)
	}
	if filter.ActorEmail != "" {
		where.add("actor_email=$%d", filter.ActorEmail)
	}
	limit, offset := pageBounds(filter.Limit, filter.Offset, 100)
	query := `SELECT id, actor_email, action, entity_type, entity_id, changes, created_at FROM audit_logs` +
		where.sql() + ` ORDER BY created_at DESC LIMIT $` + itoa(len(where.args)+1) + ` OFFSET $` + itoa(len(where.args)+2)
	rows, err := r.pool.Query(ctx, query, append(where.args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditLog
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorEmail,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Changes,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
