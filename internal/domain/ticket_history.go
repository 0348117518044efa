package domain

import "time"

// ActivityAction captures what happened in an activity entry.
type ActivityAction string

const (
	ActivityCreated       ActivityAction = "created"
	ActivityStatusChanged ActivityAction = "status_changed"
	ActivityAssigned      ActivityAction = "assigned"
	ActivityUpdated       ActivityAction = "updated"
	ActivityCommented     ActivityAction = "commented"
	ActivitySLABreached   ActivityAction = "sla_breached"
)

// ActivityLog is an append-only ticket timeline entry.
type ActivityLog struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticketId"`
	ActorID   *string        `json:"actorId,omitempty"`
	Action    ActivityAction `json:"action"`
	OldValue  map[string]any `json:"oldValue,omitempty"`
	NewValue  map[string]any `json:"newValue,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditLog is an append-only record of configuration and data changes.
type AuditLog struct {
	ID         string         `json:"id"`
	ActorEmail string         `json:"actorEmail"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Changes    map[string]any `json:"changes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Notification is an in-app message for a single user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	TicketID  *string    `json:"ticketId,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
