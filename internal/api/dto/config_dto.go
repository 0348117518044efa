package dto

import (
	"time"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// DepartmentRequest payload.
type DepartmentRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	IsActive *bool  `json:"isActive"`
}

// CategoryRequest payload. parentId is only honored on create.
type CategoryRequest struct {
	ParentID          *string  `json:"parentId"`
	Name              string   `json:"name"`
	DepartmentID      *string  `json:"departmentId"`
	BasePriorityScore int      `json:"basePriorityScore"`
	SLAConfigID       *string  `json:"slaConfigId"`
	DefaultTags       []string `json:"defaultTags"`
	RequiredFields    []string `json:"requiredFields"`
}

// CategoryResponse is the API view of a category.
type CategoryResponse struct {
	ID                string     `json:"id"`
	ParentID          *string    `json:"parentId"`
	Level             int        `json:"level"`
	Name              string     `json:"name"`
	DepartmentID      *string    `json:"departmentId"`
	BasePriorityScore int        `json:"basePriorityScore"`
	SLAConfigID       *string    `json:"slaConfigId"`
	DefaultTags       []string   `json:"defaultTags"`
	RequiredFields    []string   `json:"requiredFields"`
	Version           int        `json:"version"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// CategoryNodeResponse is one node of the category tree.
type CategoryNodeResponse struct {
	CategoryResponse
	Children []CategoryNodeResponse `json:"children"`
}

// NewCategoryResponse maps a category.
func NewCategoryResponse(c *domain.Category) CategoryResponse {
	return CategoryResponse{
		ID:                c.ID,
		ParentID:          c.ParentID,
		Level:             c.Level,
		Name:              c.Name,
		DepartmentID:      c.DepartmentID,
		BasePriorityScore: c.BasePriorityScore,
		SLAConfigID:       c.SLAConfigID,
		DefaultTags:       nonNilStrings(c.DefaultTags),
		RequiredFields:    nonNilStrings(c.RequiredFields),
		Version:           c.Version,
		DeletedAt:         c.DeletedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// NewCategoryTree maps tree nodes recursively.
func NewCategoryTree(nodes []*domain.CategoryNode) []CategoryNodeResponse {
	out := make([]CategoryNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, CategoryNodeResponse{
			CategoryResponse: NewCategoryResponse(&n.Category),
			Children:         NewCategoryTree(n.Children),
		})
	}
	return out
}

// SLARequest payload.
type SLARequest struct {
	Name              string  `json:"name"`
	DepartmentID      *string `json:"departmentId"`
	PriorityTier      string  `json:"priorityTier"`
	ResponseMinutes   int     `json:"responseMinutes"`
	ResolutionMinutes int     `json:"resolutionMinutes"`
	IsActive          *bool   `json:"isActive"`
}

// SLAResponse is the API view of an SLA config.
type SLAResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	DepartmentID      *string   `json:"departmentId"`
	PriorityTier      string    `json:"priorityTier,omitempty"`
	ResponseMinutes   int       `json:"responseMinutes"`
	ResolutionMinutes int       `json:"resolutionMinutes"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewSLAResponse maps an SLA config.
func NewSLAResponse(s *domain.SLAConfig) SLAResponse {
	return SLAResponse{
		ID:                s.ID,
		Name:              s.Name,
		DepartmentID:      s.DepartmentID,
		PriorityTier:      s.PriorityTier,
		ResponseMinutes:   s.ResponseMinutes,
		ResolutionMinutes: s.ResolutionMinutes,
		IsActive:          s.IsActive,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// PriorityRequest payload; saving always creates a new version.
type PriorityRequest struct {
	DefaultBaseScore int                   `json:"defaultBaseScore"`
	GMVTierWeights   map[string]int        `json:"gmvTierWeights"`
	Tiers            []domain.PriorityTier `json:"tiers"`
}

// PriorityResponse is the API view of a priority config version.
type PriorityResponse struct {
	ID               string                `json:"id,omitempty"`
	Version          int                   `json:"version"`
	DefaultBaseScore int                   `json:"defaultBaseScore"`
	GMVTierWeights   map[string]int        `json:"gmvTierWeights"`
	Tiers            []domain.PriorityTier `json:"tiers"`
	IsActive         bool                  `json:"isActive"`
	CreatedBy        string                `json:"createdBy,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
}

// NewPriorityResponse maps a priority config.
func NewPriorityResponse(p *domain.PriorityConfig) PriorityResponse {
	return PriorityResponse{
		ID:               p.ID,
		Version:          p.Version,
		DefaultBaseScore: p.DefaultBaseScore,
		GMVTierWeights:   p.GMVTierWeights,
		Tiers:            p.Tiers,
		IsActive:         p.IsActive,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
	}
}

// RoutingRuleRequest payload.
type RoutingRuleRequest struct {
	CategoryID      string                    `json:"categoryId"`
	DepartmentID    *string                   `json:"departmentId"`
	OwnerTeam       string                    `json:"ownerTeam"`
	PriorityBoost   int                       `json:"priorityBoost"`
	Strategy        domain.AssignmentStrategy `json:"strategy"`
	SpecificAgentID *string                   `json:"specificAgentId"`
	IsActive        *bool                     `json:"isActive"`
}

// RoutingRuleResponse is the API view of a routing rule.
type RoutingRuleResponse struct {
	ID                string                    `json:"id"`
	CategoryID        string                    `json:"categoryId"`
	DepartmentID      *string                   `json:"departmentId"`
	OwnerTeam         string                    `json:"ownerTeam,omitempty"`
	PriorityBoost     int                       `json:"priorityBoost"`
	Strategy          domain.AssignmentStrategy `json:"strategy"`
	SpecificAgentID   *string                   `json:"specificAgentId,omitempty"`
	RoundRobinCounter int                       `json:"roundRobinCounter"`
	IsActive          bool                      `json:"isActive"`
	CreatedAt         time.Time                 `json:"createdAt"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// NewRoutingRuleResponse maps a routing rule.
func NewRoutingRuleResponse(r *domain.RoutingRule) RoutingRuleResponse {
	return RoutingRuleResponse{
		ID:                r.ID,
		CategoryID:        r.CategoryID,
		DepartmentID:      r.DepartmentID,
		OwnerTeam:         r.OwnerTeam,
		PriorityBoost:     r.PriorityBoost,
		Strategy:          r.Strategy,
		SpecificAgentID:   r.SpecificAgentID,
		RoundRobinCounter: r.RoundRobinCounter,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
