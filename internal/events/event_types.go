package events

import (
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketCommented     EventType = "ticket_commented"
	EventTicketSLABreached   EventType = "ticket_sla_breached"
	EventTicketDeleted       EventType = "ticket_deleted"
	EventEntityChanged       EventType = "entity_changed"
)

// TicketEventTypes lists every event that concerns a single ticket.
var TicketEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketAssigned,
	EventTicketUpdated,
	EventTicketCommented,
	EventTicketSLABreached,
}

// Actor encapsulates actor metadata for an event. Empty for system jobs.
type Actor struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ActorFromUser builds an Actor, tolerating nil.
func ActorFromUser(u *domain.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{UserID: u.ID, Email: u.Email, Name: u.Name}
}

// IsSystem reports whether the event was emitted by a background job.
func (a Actor) IsSystem() bool {
	return a.UserID == ""
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TicketID  string         `json:"ticket_id,omitempty"`
	Ticket    *domain.Ticket `json:"-"`
	Actor     Actor          `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   interface{}    `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string `json:"ticket_number"`
	DepartmentID string `json:"department_id"`
	PriorityTier string `json:"priority_tier"`
	Subject      string `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID *string `json:"new_assignee_id,omitempty"`
}

// TicketUpdatedPayload lists the changed fields with their old and new values.
type TicketUpdatedPayload struct {
	Old map[string]any `json:"old"`
	New map[string]any `json:"new"`
}

// TicketCommentedPayload payload.
type TicketCommentedPayload struct {
	CommentID   string `json:"comment_id"`
	IsInternal  bool   `json:"is_internal"`
	BodyPreview string `json:"body_preview"`
}

// TicketSLABreachedPayload payload.
type TicketSLABreachedPayload struct {
	ResolutionDueAt time.Time `json:"resolution_due_at"`
}

// EntityChangedPayload describes a configuration or data change for the audit log.
type EntityChangedPayload struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Changes    map[string]any `json:"changes,omitempty"`
}
