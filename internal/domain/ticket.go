package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew     TicketStatus = "New"
	TicketStatusOpen    TicketStatus = "Open"
	TicketStatusPending TicketStatus = "Pending"
	TicketStatusSolved  TicketStatus = "Solved"
	TicketStatusClosed  TicketStatus = "Closed"
)

// OpenStatuses are the statuses counted as active workload.
var OpenStatuses = []TicketStatus{TicketStatusNew, TicketStatusOpen, TicketStatusPending}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusPending, TicketStatusSolved, TicketStatusClosed:
		return true
	}
	return false
}

// IsOpen reports whether the ticket still counts towards agent load.
func (s TicketStatus) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// SLAStatus describes how a ticket tracks against its resolution target.
type SLAStatus string

const (
	SLAStatusOnTrack  SLAStatus = "on_track"
	SLAStatusAtRisk   SLAStatus = "at_risk"
	SLAStatusBreached SLAStatus = "breached"
	SLAStatusMet      SLAStatus = "met"
)

// CategorySnapshot freezes the category path at creation time.
type CategorySnapshot struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Level int      `json:"level"`
	Path  []string `json:"path"`
}

// SLASnapshot freezes response/resolution targets at creation time.
type SLASnapshot struct {
	ConfigID          string    `json:"configId,omitempty"`
	Name              string    `json:"name"`
	ResponseMinutes   int       `json:"responseMinutes"`
	ResolutionMinutes int       `json:"resolutionMinutes"`
	ResponseDueAt     time.Time `json:"responseDueAt"`
	ResolutionDueAt   time.Time `json:"resolutionDueAt"`
}

// PrioritySnapshot freezes priority scoring at creation time.
type PrioritySnapshot struct {
	ConfigVersion int            `json:"configVersion"`
	Score         int            `json:"score"`
	Tier          string         `json:"tier"`
	Badge         string         `json:"badge"`
	Components    map[string]int `json:"components"`
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID              string
	TicketNumber    string
	Sequence        int
	DepartmentID    string
	OwnerTeam       string
	CategoryID      string
	VendorHandle    *string
	CustomerEmail   string
	CustomerName    string
	Subject         string
	Description     string
	Status          TicketStatus
	PriorityScore   int
	PriorityTier    string
	PriorityBadge   string
	Tags            []string
	CustomFields    map[string]any
	ReporterID      string
	AssigneeID      *string
	RoutingRuleID   *string
	ResponseDueAt   *time.Time
	ResolutionDueAt *time.Time
	FirstResponseAt *time.Time
	SolvedAt        *time.Time
	ClosedAt        *time.Time
	SLABreachedAt   *time.Time

	CategorySnapshot CategorySnapshot
	SLASnapshot      SLASnapshot
	PrioritySnapshot PrioritySnapshot
	TagsSnapshot     []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SLAStatusAt evaluates the resolution SLA at the given instant.
func (t *Ticket) SLAStatusAt(now time.Time) SLAStatus {
	due := t.ResolutionDueAt
	if due == nil {
		return SLAStatusOnTrack
	}
	if t.SolvedAt != nil {
		if t.SolvedAt.After(*due) {
			return SLAStatusBreached
		}
		return SLAStatusMet
	}
	if now.After(*due) {
		return SLAStatusBreached
	}
	window := due.Sub(t.CreatedAt)
	if window > 0 && now.Sub(t.CreatedAt)*4 >= window*3 {
		return SLAStatusAtRisk
	}
	return SLAStatusOnTrack
}

// FormatTicketNumber renders the per-department sequential ticket number.
func FormatTicketNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}
