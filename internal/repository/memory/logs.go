package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

type commentRepo struct{ d *db }

func (r *commentRepo) Create(_ context.Context, c *domain.TicketComment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.tickets[c.TicketID]; !ok {
		return foreignKeyViolation("ticket_comments_ticket_id_fkey")
	}
	c.ID = uuid.NewString()
	c.CreatedAt = r.d.stamp()
	stored := *c
	r.d.comments = append(r.d.comments, &stored)
	return nil
}

func (r *commentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.TicketComment
	for _, c := range r.d.comments {
		if c.TicketID == ticketID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type activityRepo struct{ d *db }

func (r *activityRepo) Create(_ context.Context, entry *domain.ActivityLog) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.tickets[entry.TicketID]; !ok {
		return foreignKeyViolation("activity_logs_ticket_id_fkey")
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.d.stamp()
	stored := *entry
	stored.ActorID = cloneString(entry.ActorID)
	stored.OldValue = cloneAnyMap(entry.OldValue)
	stored.NewValue = cloneAnyMap(entry.NewValue)
	r.d.activity = append(r.d.activity, &stored)
	return nil
}

func (r *activityRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.ActivityLog, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.ActivityLog
	for _, a := range r.d.activity {
		if a.TicketID == ticketID {
			c := *a
			c.OldValue = cloneAnyMap(a.OldValue)
			c.NewValue = cloneAnyMap(a.NewValue)
			out = append(out, c)
		}
	}
	return out, nil
}

type auditRepo struct{ d *db }

func (r *auditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.d.stamp()
	stored := *entry
	stored.Changes = cloneAnyMap(entry.Changes)
	r.d.audit = append(r.d.audit, &stored)
	return nil
}

func (r *auditRepo) List(_ context.Context, filter repository.AuditFilter) ([]domain.AuditLog, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.AuditLog
	for i := len(r.d.audit) - 1; i >= 0; i-- {
		a := r.d.audit[i]
		if filter.EntityType != "" && a.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && a.EntityID != filter.EntityID {
			continue
		}
		if filter.ActorEmail != "" && a.ActorEmail != filter.ActorEmail {
			continue
		}
		c := *a
		c.Changes = cloneAnyMap(a.Changes)
		out = append(out, c)
	}
	return paginate(out, filter.Limit, filter.Offset, 100), nil
}

type notificationRepo struct{ d *db }

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.users[n.UserID]; !ok {
		return foreignKeyViolation("notifications_user_id_fkey")
	}
	n.ID = uuid.NewString()
	n.CreatedAt = r.d.stamp()
	r.d.notifications = append(r.d.notifications, cloneNotification(n))
	return nil
}

func (r *notificationRepo) ListForUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.Notification
	for i := len(r.d.notifications) - 1; i >= 0; i-- {
		n := r.d.notifications[i]
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, *cloneNotification(n))
	}
	return paginate(out, limit, 0, 50), nil
}

func (r *notificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	count := 0
	for _, n := range r.d.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, userID, id string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, n := range r.d.notifications {
		if n.ID == id && n.UserID == userID {
			if n.ReadAt == nil {
				now := r.d.stamp()
				n.ReadAt = &now
			}
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *notificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	now := r.d.stamp()
	count := 0
	for _, n := range r.d.notifications {
		if n.UserID == userID && n.ReadAt == nil {
			stamp := now
			n.ReadAt = &stamp
			count++
		}
	}
	return count, nil
}
