package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/observability"
	"github.com/spec-kit/flow-helpdesk/internal/repository/memory"
)

const (
	ownerEmail    = "owner@example.com"
	ownerPassword = "correct horse"
	webhookSecret = "n8n-shared"
)

type harness struct {
	t   *testing.T
	app *App
	srv *fiber.App
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "flow-helpdesk", Version: "test"},
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 30,
			BcryptCost:            4,
			AllTicketDepartments:  []string{"CX"},
			BootstrapEmail:        ownerEmail,
			BootstrapPassword:     ownerPassword,
		},
		N8N:       config.N8NConfig{WebhookSecret: webhookSecret, SlackChannel: "#flow"},
		BigQuery:  config.BigQueryConfig{LookbackDays: 30},
		Tickets:   config.TicketConfig{DefaultResponseMinutes: 240, DefaultResolutionMinutes: 2880, GMVTiers: domain.DefaultGMVTiers},
		Scheduler: config.SchedulerConfig{SLASweepSchedule: "*/5 * * * *"},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	a, err := New(Dependencies{
		Config:  testConfig(),
		Store:   memory.NewStore(),
		Logger:  zap.NewNop(),
		Metrics: observability.NewMetrics(),
		Storage: "memory",
	})
	require.NoError(t, err)
	require.NoError(t, a.Bootstrap(context.Background()))
	t.Cleanup(a.Dispatcher.Wait)
	return &harness{t: t, app: a, srv: a.HTTP()}
}

func (h *harness) do(method, path, email string, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if email != "" {
		req.Header.Set(auth.UserEmailHeader, email)
	}
	return h.send(req)
}

func (h *harness) send(req *http.Request) (int, map[string]any) {
	h.t.Helper()
	resp, err := h.srv.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(h.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (h *harness) departmentID(code string) string {
	h.t.Helper()
	d, err := h.app.Store.Departments.GetByName(context.Background(), code)
	require.NoError(h.t, err)
	return d.ID
}

// createUser makes a user through the API as the bootstrap owner.
func (h *harness) createUser(email, dept string, roles ...string) string {
	h.t.Helper()
	status, body := h.do(http.MethodPost, "/api/users", ownerEmail, map[string]any{
		"email":        email,
		"name":         email,
		"roles":        roles,
		"departmentId": h.departmentID(dept),
	})
	require.Equal(h.t, http.StatusCreated, status, body)
	return dataOf(body)["id"].(string)
}

func dataOf(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "memory", body["storage"])

	status, body = h.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, body = h.do(http.MethodGet, "/health/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "requests")
}

func TestErrorEnvelope(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(http.MethodGet, "/api/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
	assert.NotEmpty(t, body["error"])

	status, body = h.do(http.MethodGet, "/api/tickets", "ghost@example.com", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unknown user", body["error"])

	status, body = h.do(http.MethodGet, "/api/tickets/SS-999999", ownerEmail, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])

	status, body = h.do(http.MethodGet, "/api/nothing-here", ownerEmail, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestLoginAndBearerAuth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": ownerEmail, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = h.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": ownerEmail, "password": ownerPassword})
	require.Equal(t, http.StatusOK, status, body)
	token := dataOf(body)["accessToken"].(string)
	require.NotEmpty(t, token)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	status, body = h.send(req)
	require.Equal(t, http.StatusOK, status, body)
	me := dataOf(body)
	assert.Equal(t, true, me["viewAll"])
	user := me["user"].(map[string]any)
	assert.Equal(t, domain.RoleOwner, user["role"])
	assert.NotContains(t, user, "passwordHash")
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.createUser("agent@example.com", "SS", domain.RoleAgent)
	leadID := h.createUser("lead@example.com", "SS", domain.RoleLead)
	h.createUser("other@example.com", "CS", domain.RoleAgent)

	status, body := h.do(http.MethodPost, "/api/tickets", "agent@example.com", map[string]any{
		"subject":     "Payout missing",
		"description": "Vendor did not receive payout",
		"tags":        []string{"payout"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticket := dataOf(body)
	id := ticket["id"].(string)
	assert.Equal(t, "SS-000001", ticket["ticketNumber"])
	assert.Equal(t, string(domain.SLAStatusOnTrack), ticket["slaStatus"])
	assert.Equal(t, "P4", ticket["priorityTier"])
	assert.Contains(t, ticket["allowedTransitions"], "Open")

	status, body = h.do(http.MethodGet, "/api/tickets/SS-000001", "other@example.com", nil)
	assert.Equal(t, http.StatusForbidden, status, body)

	status, body = h.do(http.MethodGet, "/api/tickets?status=New", "agent@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, dataOf(body)["total"])

	status, _ = h.do(http.MethodGet, "/api/tickets?status=Bogus", "agent@example.com", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(http.MethodPost, "/api/tickets/"+id+"/assign", "agent@example.com", map[string]any{"assigneeId": leadID})
	assert.Equal(t, http.StatusForbidden, status, body)
	assert.Equal(t, "FORBIDDEN", body["code"])

	status, body = h.do(http.MethodPost, "/api/tickets/"+id+"/assign", "lead@example.com", map[string]any{"assigneeId": leadID})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, leadID, dataOf(body)["assigneeId"])

	status, body = h.do(http.MethodPost, "/api/tickets/"+id+"/status", "lead@example.com", map[string]any{"status": "Closed"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []any{"Open"}, dataOf(body)["allowedTransitions"])

	status, body = h.do(http.MethodPost, "/api/tickets/"+id+"/status", "lead@example.com", map[string]any{"status": "Pending"})
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, body = h.do(http.MethodPost, "/api/tickets/"+id+"/comments", "lead@example.com", map[string]any{"body": "closing note"})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = h.do(http.MethodDelete, "/api/tickets/"+id, "lead@example.com", nil)
	assert.Equal(t, http.StatusForbidden, status)

	h.app.Dispatcher.Wait()
	status, body = h.do(http.MethodGet, "/api/tickets/"+id+"/activity", "lead@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 4)

	req := httptest.NewRequest(http.MethodDelete, "/api/tickets/"+id, nil)
	req.Header.Set(auth.UserEmailHeader, ownerEmail)
	resp, err := h.srv.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestConfigWritesRequirePermission(t *testing.T) {
	h := newHarness(t)
	h.createUser("agent@example.com", "SS", domain.RoleAgent)

	status, _ := h.do(http.MethodPost, "/api/config/categories", "agent@example.com", map[string]any{"name": "Payments"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := h.do(http.MethodPost, "/api/config/categories", ownerEmail, map[string]any{"name": "Payments", "basePriorityScore": 30})
	require.Equal(t, http.StatusCreated, status, body)
	parent := dataOf(body)["id"].(string)
	status, body = h.do(http.MethodPost, "/api/config/categories", ownerEmail, map[string]any{"name": "Refunds", "parentId": parent})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = h.do(http.MethodGet, "/api/config/categories?view=flat", "agent@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	var paths []string
	for _, row := range body["data"].([]any) {
		paths = append(paths, row.(map[string]any)["fullPath"].(string))
	}
	assert.Contains(t, paths, "Payments > Refunds")

	status, _ = h.do(http.MethodGet, "/api/config/categories?view=list", "agent@example.com", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(http.MethodPost, "/api/departments", ownerEmail, map[string]any{"name": "Logistics", "code": "LG"})
	require.Equal(t, http.StatusCreated, status, body)
	status, body = h.do(http.MethodPost, "/api/departments", ownerEmail, map[string]any{"name": "Logistics 2", "code": "LG"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status, body = h.do(http.MethodPut, "/api/config/priority", ownerEmail, map[string]any{
		"defaultBaseScore": 25,
		"gmvTierWeights":   map[string]int{"Gold": 30},
		"tiers":            []map[string]any{{"name": "P1", "minScore": 50, "badge": "Critical"}, {"name": "P2", "minScore": 0, "badge": "Low"}},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, dataOf(body)["version"])
}

func TestVendorImportAndWebhook(t *testing.T) {
	h := newHarness(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "vendors.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Handle,Name,Total Orders\nacme,Acme,250\nbeta,Beta,3\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/vendors/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.UserEmailHeader, ownerEmail)
	status, body := h.send(req)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, dataOf(body)["upserted"])

	status, body = h.do(http.MethodGet, "/api/vendors/acme", ownerEmail, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Gold", dataOf(body)["gmvTier"])

	status, _ = h.do(http.MethodPost, "/api/webhooks/n8n/vendors", "", map[string]any{"vendors": []any{}})
	assert.Equal(t, http.StatusUnauthorized, status)

	token, _, err := auth.NewTokenManager(webhookSecret, 5).GenerateToken("n8n", "")
	require.NoError(t, err)
	raw, _ := json.Marshal(map[string]any{"vendors": []map[string]any{{"handle": "gamma", "name": "Gamma", "totalOrders": 600}}})
	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/n8n/vendors", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	status, body = h.send(req)
	require.Equal(t, http.StatusOK, status, body)

	status, body = h.do(http.MethodGet, "/api/vendors/gamma", ownerEmail, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Platinum", dataOf(body)["gmvTier"])
	assert.Equal(t, domain.VendorSourceN8N, dataOf(body)["source"])

	status, body = h.do(http.MethodPost, "/api/vendors/sync", ownerEmail, nil)
	assert.Equal(t, http.StatusBadRequest, status, "bigquery disabled")
}

func TestNotificationsAndAttendance(t *testing.T) {
	h := newHarness(t)
	h.createUser("head@example.com", "SS", domain.RoleHead)
	h.createUser("agent@example.com", "SS", domain.RoleAgent)

	status, body := h.do(http.MethodPost, "/api/attendance/check-in", "agent@example.com", nil)
	require.Equal(t, http.StatusOK, status, body)
	status, body = h.do(http.MethodGet, "/api/attendance/present", "head@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	status, _ = h.do(http.MethodGet, "/api/attendance/day", "agent@example.com", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do(http.MethodGet, "/api/attendance/day?date="+time.Now().UTC().Format(time.DateOnly), "head@example.com", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = h.do(http.MethodPost, "/api/tickets", "agent@example.com", map[string]any{"subject": "hello"})
	require.Equal(t, http.StatusCreated, status)
	h.app.Dispatcher.Wait()

	status, body = h.do(http.MethodGet, "/api/notifications/unread-count", "head@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, dataOf(body)["unread"])

	status, body = h.do(http.MethodPost, "/api/notifications/read-all", "head@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, dataOf(body)["updated"])

	status, body = h.do(http.MethodGet, "/api/audit?entity_type=ticket", "head@example.com", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	status, _ = h.do(http.MethodGet, "/api/audit", "agent@example.com", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(http.MethodGet, "/api/analytics/summary", "head@example.com", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, dataOf(body)["total"])
}

func TestSchedulerRegistersJobs(t *testing.T) {
	h := newHarness(t)
	s, err := h.app.Scheduler()
	require.NoError(t, err)
	assert.Equal(t, []string{"sla_sweep"}, s.Jobs())
}
