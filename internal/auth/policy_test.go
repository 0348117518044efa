package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

func activeUser(roles ...string) *domain.User {
	u := &domain.User{Email: "a@example.com", Roles: roles, IsActive: true}
	u.Normalize()
	return u
}

func TestDefaultPolicyRoles(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)

	assert.True(t, policy.Can(activeUser(domain.RoleOwner), domain.PermConfigManage))
	assert.True(t, policy.Can(activeUser(domain.RoleAdmin), domain.PermTicketsViewAll))
	assert.True(t, policy.Can(activeUser(domain.RoleHead), domain.PermTicketsDelete))
	assert.False(t, policy.Can(activeUser(domain.RoleHead), domain.PermConfigManage))
	assert.True(t, policy.Can(activeUser(domain.RoleAgent), domain.PermTicketsCreate))
	assert.False(t, policy.Can(activeUser(domain.RoleAgent), domain.PermTicketsAssign))
	assert.False(t, policy.Can(activeUser(domain.RoleViewer), domain.PermTicketsCreate))
}

func TestPolicyUnionOfRoles(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)

	user := activeUser(domain.RoleAgent, domain.RoleLead)
	assert.True(t, policy.Can(user, domain.PermTicketsAssign))
	assert.True(t, policy.Can(user, domain.PermTicketsCreate))
}

func TestPolicyOverrides(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)

	user := activeUser(domain.RoleAgent)
	user.PermissionOverrides = map[string]bool{
		string(domain.PermAnalyticsView): true,
		string(domain.PermTicketsEdit):   false,
	}
	assert.True(t, policy.Can(user, domain.PermAnalyticsView))
	assert.False(t, policy.Can(user, domain.PermTicketsEdit))

	perms := policy.Permissions(user)
	assert.Contains(t, perms, domain.PermAnalyticsView)
	assert.NotContains(t, perms, domain.PermTicketsEdit)
}

func TestPolicyInactiveUserHasNothing(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)

	user := activeUser(domain.RoleOwner)
	user.IsActive = false
	assert.False(t, policy.Can(user, domain.PermTicketsCreate))
	assert.False(t, policy.Can(nil, domain.PermTicketsCreate))
}

func TestPolicyFileOverridesRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  agent:\n    - tickets.create\n    - tickets.assign\n"), 0o600))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.True(t, policy.Can(activeUser(domain.RoleAgent), domain.PermTicketsAssign))
	assert.False(t, policy.Can(activeUser(domain.RoleAgent), domain.PermTicketsEdit))
	assert.True(t, policy.Can(activeUser(domain.RoleOwner), domain.PermConfigManage))
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestScopeViewAll(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)
	scope := NewScope(policy, []string{"CX"})

	cx := &domain.Department{ID: "d1", Name: "CX", Code: "CX"}
	ss := &domain.Department{ID: "d2", Name: "Seller Support", Code: "SS"}

	assert.True(t, scope.ViewAll(activeUser(domain.RoleAgent), cx))
	assert.False(t, scope.ViewAll(activeUser(domain.RoleAgent), ss))
	assert.True(t, scope.ViewAll(activeUser(domain.RoleAdmin), ss))
	assert.False(t, scope.ViewAll(activeUser(domain.RoleAgent), nil))
}

func TestPrincipalDepartmentAccess(t *testing.T) {
	dept := "d2"
	p := &Principal{User: &domain.User{DepartmentID: &dept}}
	assert.True(t, p.CanAccessDepartment("d2"))
	assert.False(t, p.CanAccessDepartment("d1"))

	p.ViewAll = true
	assert.True(t, p.CanAccessDepartment("d1"))
}
