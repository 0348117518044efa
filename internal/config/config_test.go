package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("AUTH_ALL_TICKET_DEPARTMENTS", "")
	t.Setenv("TICKETS_GMV_TIERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, []string{"CX"}, cfg.Auth.AllTicketDepartments)
	assert.Equal(t, domain.DefaultGMVTiers, cfg.Tickets.GMVTiers)
	assert.Equal(t, 10*time.Second, cfg.N8N.Timeout())
	assert.False(t, cfg.SMTP.Configured())
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.SLASweepSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")
	t.Setenv("AUTH_ALL_TICKET_DEPARTMENTS", " CX , QA ,")
	t.Setenv("N8N_BASE_URL", "https://n8n.internal/")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("SMTP_HOST", "smtp.internal")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")
	t.Setenv("TICKETS_GMV_TIERS", "Gold:100, Platinum:1000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Zero(t, cfg.App.RequestTimeout())
	assert.Equal(t, []string{"CX", "QA"}, cfg.Auth.AllTicketDepartments)
	assert.Equal(t, "https://n8n.internal", cfg.N8N.BaseURL)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.SMTP.Configured())
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, []domain.GMVTierThreshold{
		{Tier: "Platinum", MinOrders: 1000},
		{Tier: "Gold", MinOrders: 100},
	}, cfg.Tickets.GMVTiers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_DB")

	t.Setenv("REDIS_DB", "0")
	t.Setenv("TICKETS_GMV_TIERS", "Gold=100")
	_, err = Load()
	assert.ErrorContains(t, err, "TICKETS_GMV_TIERS")
}

func TestLoadRejectsSharedWebhookSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "shared")
	t.Setenv("N8N_WEBHOOK_SECRET", "shared")
	_, err := Load()
	assert.ErrorContains(t, err, "N8N_WEBHOOK_SECRET")

	t.Setenv("N8N_WEBHOOK_SECRET", "dev-secret")
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "N8N_WEBHOOK_SECRET", "the default jwt secret counts too")

	t.Setenv("N8N_WEBHOOK_SECRET", "hook-only")
	t.Setenv("AUTH_JWT_SECRET", "shared")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "hook-only", cfg.N8N.WebhookSecret)
}
