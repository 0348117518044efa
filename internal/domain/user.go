package domain

import (
	"strings"
	"time"
)

// Role names used by the permission policy.
const (
	RoleOwner   = "Owner"
	RoleAdmin   = "Admin"
	RoleHead    = "Head"
	RoleManager = "Manager"
	RoleLead    = "Lead"
	RoleAgent   = "Agent"
	RoleViewer  = "Viewer"
)

// rolePrecedence orders roles from most to least privileged.
var rolePrecedence = []string{RoleOwner, RoleAdmin, RoleHead, RoleManager, RoleLead, RoleAgent, RoleViewer}

// User is an operator of the helpdesk.
type User struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	Role                string
	Roles               []string
	DepartmentID        *string
	SubDepartment       string
	PermissionOverrides map[string]bool
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanonicalRole maps case variants onto the known role names.
func CanonicalRole(role string) string {
	trimmed := strings.TrimSpace(role)
	for _, known := range rolePrecedence {
		if strings.EqualFold(known, trimmed) {
			return known
		}
	}
	return trimmed
}

// PrimaryRole projects a role list onto the single most privileged role.
func PrimaryRole(roles []string) string {
	best := -1
	var fallback string
	for _, r := range roles {
		r = CanonicalRole(r)
		if r == "" {
			continue
		}
		if fallback == "" {
			fallback = r
		}
		for i, known := range rolePrecedence {
			if known == r && (best == -1 || i < best) {
				best = i
			}
		}
	}
	if best >= 0 {
		return rolePrecedence[best]
	}
	return fallback
}

// NormalizeRoles merges a legacy single role into a deduplicated role list.
// Roles is the source of truth; the returned role is always its projection.
func NormalizeRoles(role string, roles []string) (string, []string) {
	seen := make(map[string]struct{}, len(roles)+1)
	out := make([]string, 0, len(roles)+1)
	add := func(r string) {
		r = CanonicalRole(r)
		if r == "" {
			return
		}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	if len(roles) == 0 || !containsRole(roles, role) {
		add(role)
	}
	for _, r := range roles {
		add(r)
	}
	if len(out) == 0 {
		out = append(out, RoleAgent)
	}
	return PrimaryRole(out), out
}

func containsRole(roles []string, role string) bool {
	role = CanonicalRole(role)
	for _, r := range roles {
		if CanonicalRole(r) == role {
			return true
		}
	}
	return false
}

// Normalize keeps Role and Roles consistent.
func (u *User) Normalize() {
	u.Role, u.Roles = NormalizeRoles(u.Role, u.Roles)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
}

// HasRole reports whether the user holds the role.
func (u *User) HasRole(role string) bool {
	return containsRole(u.Roles, role) || CanonicalRole(u.Role) == CanonicalRole(role)
}

// RolesDrifted reports whether stored Role disagrees with the Roles projection.
func (u *User) RolesDrifted() bool {
	if len(u.Roles) == 0 {
		return true
	}
	return CanonicalRole(u.Role) != PrimaryRole(u.Roles)
}
