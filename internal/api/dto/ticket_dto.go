package dto

import (
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject       string         `json:"subject"`
	Description   string         `json:"description"`
	CategoryID    *string        `json:"categoryId"`
	DepartmentID  *string        `json:"departmentId"`
	VendorHandle  *string        `json:"vendorHandle"`
	CustomerEmail string         `json:"customerEmail"`
	CustomerName  string         `json:"customerName"`
	Tags          []string       `json:"tags"`
	CustomFields  map[string]any `json:"customFields"`
}

// UpdateTicketRequest payload. Omitted fields are left untouched.
type UpdateTicketRequest struct {
	Subject       *string        `json:"subject"`
	Description   *string        `json:"description"`
	Tags          []string       `json:"tags"`
	CustomFields  map[string]any `json:"customFields"`
	VendorHandle  *string        `json:"vendorHandle"`
	CustomerEmail *string        `json:"customerEmail"`
	CustomerName  *string        `json:"customerName"`
}

// StatusRequest payload.
type StatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignRequest payload. A null assigneeId unassigns.
type AssignRequest struct {
	AssigneeID *string `json:"assigneeId"`
}

// CommentRequest payload.
type CommentRequest struct {
	Body       string `json:"body"`
	IsInternal bool   `json:"isInternal"`
}

// TicketResponse is the API view of a ticket.
type TicketResponse struct {
	ID                 string                  `json:"id"`
	TicketNumber       string                  `json:"ticketNumber"`
	DepartmentID       string                  `json:"departmentId"`
	OwnerTeam          string                  `json:"ownerTeam,omitempty"`
	CategoryID         string                  `json:"categoryId"`
	VendorHandle       *string                 `json:"vendorHandle,omitempty"`
	CustomerEmail      string                  `json:"customerEmail,omitempty"`
	CustomerName       string                  `json:"customerName,omitempty"`
	Subject            string                  `json:"subject"`
	Description        string                  `json:"description"`
	Status             domain.TicketStatus     `json:"status"`
	AllowedTransitions []domain.TicketStatus   `json:"allowedTransitions"`
	PriorityScore      int                     `json:"priorityScore"`
	PriorityTier       string                  `json:"priorityTier"`
	PriorityBadge      string                  `json:"priorityBadge"`
	Tags               []string                `json:"tags"`
	CustomFields       map[string]any          `json:"customFields"`
	ReporterID         string                  `json:"reporterId"`
	AssigneeID         *string                 `json:"assigneeId"`
	RoutingRuleID      *string                 `json:"routingRuleId,omitempty"`
	SLAStatus          domain.SLAStatus        `json:"slaStatus"`
	ResponseDueAt      *time.Time              `json:"responseDueAt"`
	ResolutionDueAt    *time.Time              `json:"resolutionDueAt"`
	FirstResponseAt    *time.Time              `json:"firstResponseAt"`
	SolvedAt           *time.Time              `json:"solvedAt"`
	ClosedAt           *time.Time              `json:"closedAt"`
	SLABreachedAt      *time.Time              `json:"slaBreachedAt,omitempty"`
	CategorySnapshot   domain.CategorySnapshot `json:"categorySnapshot"`
	SLASnapshot        domain.SLASnapshot      `json:"slaSnapshot"`
	PrioritySnapshot   domain.PrioritySnapshot `json:"prioritySnapshot"`
	TagsSnapshot       []string                `json:"tagsSnapshot"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

// NewTicketResponse maps a ticket; transitions and SLA status are computed at now.
func NewTicketResponse(t *domain.Ticket, transitions []domain.TicketStatus, now time.Time) TicketResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	if transitions == nil {
		transitions = []domain.TicketStatus{}
	}
	return TicketResponse{
		ID:                 t.ID,
		TicketNumber:       t.TicketNumber,
		DepartmentID:       t.DepartmentID,
		OwnerTeam:          t.OwnerTeam,
		CategoryID:         t.CategoryID,
		VendorHandle:       t.VendorHandle,
		CustomerEmail:      t.CustomerEmail,
		CustomerName:       t.CustomerName,
		Subject:            t.Subject,
		Description:        t.Description,
		Status:             t.Status,
		AllowedTransitions: transitions,
		PriorityScore:      t.PriorityScore,
		PriorityTier:       t.PriorityTier,
		PriorityBadge:      t.PriorityBadge,
		Tags:               tags,
		CustomFields:       t.CustomFields,
		ReporterID:         t.ReporterID,
		AssigneeID:         t.AssigneeID,
		RoutingRuleID:      t.RoutingRuleID,
		SLAStatus:          t.SLAStatusAt(now),
		ResponseDueAt:      t.ResponseDueAt,
		ResolutionDueAt:    t.ResolutionDueAt,
		FirstResponseAt:    t.FirstResponseAt,
		SolvedAt:           t.SolvedAt,
		ClosedAt:           t.ClosedAt,
		SLABreachedAt:      t.SLABreachedAt,
		CategorySnapshot:   t.CategorySnapshot,
		SLASnapshot:        t.SLASnapshot,
		PrioritySnapshot:   t.PrioritySnapshot,
		TagsSnapshot:       t.TagsSnapshot,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}
