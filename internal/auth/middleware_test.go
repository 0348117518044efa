package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

func newAuthApp(t *testing.T) (*fiber.App, *TokenManager, map[string]*domain.User) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	policy, err := LoadPolicy("")
	require.NoError(t, err)

	cx, err := store.Departments.GetByName(ctx, "CX")
	require.NoError(t, err)
	ss, err := store.Departments.GetByName(ctx, "SS")
	require.NoError(t, err)

	users := map[string]*domain.User{
		"cx":       {Email: "cx@example.com", Name: "CX Agent", Role: domain.RoleAgent, DepartmentID: &cx.ID, IsActive: true},
		"ss":       {Email: "ss@example.com", Name: "SS Agent", Role: domain.RoleAgent, DepartmentID: &ss.ID, IsActive: true},
		"inactive": {Email: "gone@example.com", Name: "Gone", Role: domain.RoleAgent, IsActive: false},
	}
	for _, u := range users {
		require.NoError(t, store.Users.Create(ctx, u))
	}

	tokens := NewTokenManager("secret", 5)
	mw := NewAuthMiddleware(tokens, store.Users, store.Departments, NewScope(policy, []string{"CX"}), zap.NewNop())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": de.Message})
		},
	})
	app.Get("/me", mw.Handle, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("no principal")
		}
		return c.JSON(fiber.Map{"email": p.User.Email, "viewAll": p.ViewAll})
	})
	app.Get("/config", mw.Handle, RequirePermission(policy, domain.PermConfigManage), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, tokens, users
}

func TestMiddlewareHeaderIdentity(t *testing.T) {
	app, _, _ := newAuthApp(t)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set(UserEmailHeader, "CX@example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareRejects(t *testing.T) {
	app, _, _ := newAuthApp(t)

	cases := map[string]string{
		"unknown":  "nobody@example.com",
		"inactive": "gone@example.com",
	}
	for name, email := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			req.Header.Set(UserEmailHeader, email)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareBearerToken(t *testing.T) {
	app, tokens, users := newAuthApp(t)
	token, _, err := tokens.GenerateToken(users["ss"].ID, users["ss"].Email)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequirePermissionForbidden(t *testing.T) {
	app, _, _ := newAuthApp(t)

	req := httptest.NewRequest("GET", "/config", nil)
	req.Header.Set(UserEmailHeader, "ss@example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWebhookAuth(t *testing.T) {
	verifier := NewTokenManager("hook-secret", 5)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Post("/hook", WebhookAuth(verifier), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusAccepted) })

	token, _, err := verifier.GenerateToken("n8n", "")
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/hook", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	bad, _, err := NewTokenManager("other", 5).GenerateToken("n8n", "")
	require.NoError(t, err)
	req = httptest.NewRequest("POST", "/hook", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
