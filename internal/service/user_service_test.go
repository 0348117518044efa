package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/repository/memory"
)

func TestCreateUserNormalizesRoles(t *testing.T) {
	f := newFixture(t)
	ss := f.departments["SS"].ID

	u, err := f.users.Create(f.ctx, nil, UserInput{
		Email:        ptrString(" Mina@Example.com "),
		Name:         ptrString("Mina"),
		Roles:        []string{"agent", "lead", "Agent"},
		DepartmentID: &ss,
		Password:     ptrString("correct-horse"),
	})
	require.NoError(t, err)
	assert.Equal(t, "mina@example.com", u.Email)
	assert.Equal(t, domain.RoleLead, u.Role)
	assert.Equal(t, []string{domain.RoleAgent, domain.RoleLead}, u.Roles)
	assert.True(t, u.IsActive)
	assert.NotEmpty(t, u.PasswordHash)

	bare, err := f.users.Create(f.ctx, nil, UserInput{Email: ptrString("bare@example.com"), Name: ptrString("Bare")})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgent, bare.Role)
	assert.Equal(t, []string{domain.RoleAgent}, bare.Roles)
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.Create(f.ctx, nil, UserInput{Email: ptrString("not-an-email"), Name: ptrString("x")})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.users.Create(f.ctx, nil, UserInput{Email: ptrString("x@example.com")})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.users.Create(f.ctx, nil, UserInput{
		Email:               ptrString("x@example.com"),
		Name:                ptrString("x"),
		PermissionOverrides: map[string]bool{"tickets.fly": true},
	})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.users.Create(f.ctx, nil, UserInput{
		Email:        ptrString("x@example.com"),
		Name:         ptrString("x"),
		DepartmentID: ptrString("7d9c2b1e-0000-4000-8000-000000000000"),
	})
	assertStatus(t, err, http.StatusBadRequest)
	_, err = f.users.Create(f.ctx, nil, UserInput{Email: ptrString("x@example.com"), Name: ptrString("x"), Password: ptrString("short")})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = f.users.Create(f.ctx, nil, UserInput{Email: ptrString("dup@example.com"), Name: ptrString("one")})
	require.NoError(t, err)
	_, err = f.users.Create(f.ctx, nil, UserInput{Email: ptrString("DUP@example.com"), Name: ptrString("two")})
	assertStatus(t, err, http.StatusConflict)
}

func TestUpdateUserRolesAndOverrides(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "rita", "SS", domain.RoleAgent)

	updated, err := f.users.Update(f.ctx, nil, u.ID, UserInput{Roles: []string{domain.RoleViewer, domain.RoleHead}})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHead, updated.Role)
	assert.Equal(t, []string{domain.RoleViewer, domain.RoleHead}, updated.Roles)

	updated, err = f.users.Update(f.ctx, nil, u.ID, UserInput{Role: ptrString("manager")})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, updated.Role)
	assert.Equal(t, []string{domain.RoleManager}, updated.Roles)

	updated, err = f.users.Update(f.ctx, nil, u.ID, UserInput{PermissionOverrides: map[string]bool{
		string(domain.PermAuditView):     true,
		string(domain.PermTicketsAssign): false,
	}})
	require.NoError(t, err)
	assert.True(t, f.policy.Can(updated, domain.PermAuditView))
	assert.False(t, f.policy.Can(updated, domain.PermTicketsAssign))
	assert.True(t, f.policy.Can(updated, domain.PermTicketsEdit))
	assert.Contains(t, f.users.Permissions(updated), domain.PermAuditView)

	_, err = f.users.Update(f.ctx, nil, "0c1d5f3a-0000-4000-8000-000000000000", UserInput{Name: ptrString("ghost")})
	assertStatus(t, err, http.StatusNotFound)
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "ada", "CX", domain.RoleAdmin)
	agent := f.user(t, "sam", "SS", domain.RoleAgent)

	_, err := f.users.Deactivate(f.ctx, f.principal(admin), admin.ID)
	assertStatus(t, err, http.StatusBadRequest)

	off, err := f.users.Deactivate(f.ctx, f.principal(admin), agent.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)

	f.dispatcher.Wait()
	logs, err := f.store.Audit.List(f.ctx, repository.AuditFilter{EntityID: agent.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "user.updated", logs[0].Action)
	assert.Equal(t, "ada@example.com", logs[0].ActorEmail)
}

func TestSyncRolesRepairsDrift(t *testing.T) {
	f := newFixture(t)
	f.user(t, "fine", "SS", domain.RoleAgent)
	memory.InsertRawUser(f.store, &domain.User{Email: "legacy@example.com", Name: "Legacy", Role: domain.RoleHead, IsActive: true})
	memory.InsertRawUser(f.store, &domain.User{Email: "mixed@example.com", Name: "Mixed", Role: domain.RoleAgent, Roles: []string{domain.RoleAgent, domain.RoleOwner}, IsActive: true})

	drifted, err := f.users.Drifted(f.ctx)
	require.NoError(t, err)
	require.Len(t, drifted, 2)

	dry, err := f.users.SyncRoles(f.ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Checked)
	assert.Zero(t, dry.Fixed)
	assert.Equal(t, []string{"legacy@example.com", "mixed@example.com"}, dry.Emails)

	res, err := f.users.SyncRoles(f.ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fixed)
	assert.Empty(t, res.Errors)

	drifted, err = f.users.Drifted(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, drifted)

	legacy, err := f.store.Users.GetByEmail(f.ctx, "legacy@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleHead}, legacy.Roles)
	mixed, err := f.store.Users.GetByEmail(f.ctx, "mixed@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, mixed.Role)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	tokens := auth.NewTokenManager("test-secret", 60)
	svc := NewAuthService(AuthDependencies{UserRepo: f.store.Users, TokenManager: tokens, BcryptCost: 4})
	u, err := f.users.Create(f.ctx, nil, UserInput{Email: ptrString("lina@example.com"), Name: ptrString("Lina"), Password: ptrString("s3cret-pass")})
	require.NoError(t, err)
	f.user(t, "nopass", "SS")

	got, token, exp, err := svc.Login(f.ctx, " LINA@example.com ", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, exp.After(time.Now()))
	claims, err := tokens.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "lina@example.com", claims.Email)

	_, _, _, err = svc.Login(f.ctx, "lina@example.com", "wrong-pass")
	assertStatus(t, err, http.StatusUnauthorized)
	_, _, _, err = svc.Login(f.ctx, "ghost@example.com", "whatever1")
	assertStatus(t, err, http.StatusUnauthorized)
	_, _, _, err = svc.Login(f.ctx, "nopass@example.com", "whatever1")
	assertStatus(t, err, http.StatusUnauthorized)
	_, _, _, err = svc.Login(f.ctx, "", "")
	assertStatus(t, err, http.StatusBadRequest)

	_, err = f.users.Deactivate(f.ctx, nil, u.ID)
	require.NoError(t, err)
	_, _, _, err = svc.Login(f.ctx, "lina@example.com", "s3cret-pass")
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	svc := NewAuthService(AuthDependencies{UserRepo: f.store.Users, TokenManager: auth.NewTokenManager("s", 5), BcryptCost: 4})
	u, err := f.users.Create(f.ctx, nil, UserInput{Email: ptrString("p@example.com"), Name: ptrString("P"), Password: ptrString("first-pass")})
	require.NoError(t, err)

	assertStatus(t, svc.ChangePassword(f.ctx, u.ID, "first-pass", "short"), http.StatusBadRequest)
	assertStatus(t, svc.ChangePassword(f.ctx, u.ID, "nope-nope", "second-pass"), http.StatusUnauthorized)
	require.NoError(t, svc.ChangePassword(f.ctx, u.ID, "first-pass", "second-pass"))

	_, _, _, err = svc.Login(f.ctx, "p@example.com", "second-pass")
	require.NoError(t, err)
}
