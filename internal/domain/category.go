package domain

import "time"

// UncategorizedCategoryID is the seeded fallback category.
const UncategorizedCategoryID = "00000000-0000-0000-0000-000000000001"

// MaxCategoryLevel is the depth of the category tree.
const MaxCategoryLevel = 4

// Category is a node of the L1–L4 issue tree.
type Category struct {
	ID                string
	ParentID          *string
	Level             int
	Name              string
	DepartmentID      *string
	BasePriorityScore int
	SLAConfigID       *string
	DefaultTags       []string
	RequiredFields    []string
	Version           int
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsDeleted reports whether the category was soft deleted.
func (c *Category) IsDeleted() bool {
	return c.DeletedAt != nil
}

// CategoryNode is a category with its resolved children.
type CategoryNode struct {
	Category
	Children []*CategoryNode
}

// FlatCategory is one row of the flattened hierarchy.
type FlatCategory struct {
	ID       string   `json:"id"`
	Level    int      `json:"level"`
	Name     string   `json:"name"`
	Path     []string `json:"path"`
	FullPath string   `json:"fullPath"`
	IsLeaf   bool     `json:"isLeaf"`
}
