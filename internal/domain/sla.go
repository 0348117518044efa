package domain

import "time"

// SLAConfig defines response and resolution targets for a department and tier.
type SLAConfig struct {
	ID                string
	Name              string
	DepartmentID      *string
	PriorityTier      string
	ResponseMinutes   int
	ResolutionMinutes int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PriorityTier maps a minimum score to a tier label and badge.
type PriorityTier struct {
	Name     string `json:"name" yaml:"name"`
	MinScore int    `json:"minScore" yaml:"minScore"`
	Badge    string `json:"badge" yaml:"badge"`
}

// PriorityConfig holds the scoring rules. Each update creates a new version.
type PriorityConfig struct {
	ID               string
	Version          int
	DefaultBaseScore int
	GMVTierWeights   map[string]int
	Tiers            []PriorityTier
	IsActive         bool
	CreatedBy        string
	CreatedAt        time.Time
}

// DefaultPriorityConfig is used until an administrator saves one.
func DefaultPriorityConfig() PriorityConfig {
	return PriorityConfig{
		Version:          0,
		DefaultBaseScore: 20,
		GMVTierWeights: map[string]int{
			"Platinum": 40,
			"Gold":     30,
			"Silver":   20,
			"Bronze":   10,
			GMVTierNew: 0,
		},
		Tiers: []PriorityTier{
			{Name: "P1", MinScore: 80, Badge: "Critical"},
			{Name: "P2", MinScore: 60, Badge: "High"},
			{Name: "P3", MinScore: 40, Badge: "Medium"},
			{Name: "P4", MinScore: 0, Badge: "Low"},
		},
		IsActive: true,
	}
}
