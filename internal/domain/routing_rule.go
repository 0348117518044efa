package domain

import "time"

// AssignmentStrategy selects how a routing rule picks an agent.
type AssignmentStrategy string

const (
	AssignNone          AssignmentStrategy = "none"
	AssignRoundRobin    AssignmentStrategy = "round_robin"
	AssignLeastLoaded   AssignmentStrategy = "least_loaded"
	AssignSpecificAgent AssignmentStrategy = "specific_agent"
)

// Valid reports whether the strategy is known.
func (s AssignmentStrategy) Valid() bool {
	switch s {
	case AssignNone, AssignRoundRobin, AssignLeastLoaded, AssignSpecificAgent:
		return true
	}
	return false
}

// RoutingRule auto-routes new tickets of a category.
type RoutingRule struct {
	ID                string
	CategoryID        string
	DepartmentID      *string
	OwnerTeam         string
	PriorityBoost     int
	Strategy          AssignmentStrategy
	SpecificAgentID   *string
	RoundRobinCounter int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
