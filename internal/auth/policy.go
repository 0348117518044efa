package auth

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

const wildcardPermission = "*"

// Policy maps roles to permission sets.
type Policy struct {
	roles map[string]map[domain.Permission]struct{}
	all   map[string]bool
}

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPolicy parses the embedded defaults, then applies roles from path if given.
// Roles listed in the override file replace the default entry for that role.
func LoadPolicy(path string) (*Policy, error) {
	policy, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	override, err := ParsePolicy(raw)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	for role, perms := range override.roles {
		policy.roles[role] = perms
		policy.all[role] = override.all[role]
	}
	return policy, nil
}

// ParsePolicy builds a Policy from YAML.
func ParsePolicy(raw []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	policy := &Policy{
		roles: make(map[string]map[domain.Permission]struct{}, len(file.Roles)),
		all:   make(map[string]bool),
	}
	for role, perms := range file.Roles {
		role = domain.CanonicalRole(role)
		set := make(map[domain.Permission]struct{}, len(perms))
		for _, p := range perms {
			p = strings.TrimSpace(p)
			if p == wildcardPermission {
				policy.all[role] = true
				continue
			}
			set[domain.Permission(p)] = struct{}{}
		}
		policy.roles[role] = set
	}
	return policy, nil
}

// Can evaluates the union of the user's role permissions, then per-user overrides.
func (p *Policy) Can(user *domain.User, perm domain.Permission) bool {
	if user == nil || !user.IsActive {
		return false
	}
	if override, ok := user.PermissionOverrides[string(perm)]; ok {
		return override
	}
	for _, role := range userRoles(user) {
		if p.all[role] {
			return true
		}
		if _, ok := p.roles[role][perm]; ok {
			return true
		}
	}
	return false
}

// Permissions lists the effective permissions of user, sorted.
func (p *Policy) Permissions(user *domain.User) []domain.Permission {
	candidates := make(map[domain.Permission]struct{})
	for _, perms := range p.roles {
		for perm := range perms {
			candidates[perm] = struct{}{}
		}
	}
	for key := range user.PermissionOverrides {
		candidates[domain.Permission(key)] = struct{}{}
	}
	for _, perm := range domain.AllPermissions {
		candidates[perm] = struct{}{}
	}
	out := make([]domain.Permission, 0, len(candidates))
	for perm := range candidates {
		if p.Can(user, perm) {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func userRoles(user *domain.User) []string {
	roles := user.Roles
	if len(roles) == 0 && user.Role != "" {
		roles = []string{user.Role}
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, domain.CanonicalRole(r))
	}
	return out
}
