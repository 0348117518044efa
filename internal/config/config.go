package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	N8N       N8NConfig
	BigQuery  BigQueryConfig
	SMTP      SMTPConfig
	Tickets   TicketConfig
	Scheduler SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects in-memory storage.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection and cache values.
type RedisConfig struct {
	Addr                string
	Password            string
	DB                  int
	Enabled             bool
	CategoryTTLSeconds  int
	VendorLookupTTLSecs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication and authorization parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	AllTicketDepartments  []string
	PolicyFile            string
	BootstrapEmail        string
	BootstrapPassword     string
}

// N8NConfig configures the n8n webhook relay.
type N8NConfig struct {
	BaseURL        string
	WebhookSecret  string
	TimeoutSeconds int
	SlackChannel   string
}

// BigQueryConfig configures vendor sync.
type BigQueryConfig struct {
	Enabled         bool
	ProjectID       string
	Dataset         string
	CredentialsFile string
	SyncSchedule    string
	LookbackDays    int
	HomeCountry     string
}

// SMTPConfig configures outbound email.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// TicketConfig holds ticket defaults.
type TicketConfig struct {
	DefaultResponseMinutes   int
	DefaultResolutionMinutes int
	GMVTiers                 []domain.GMVTierThreshold
}

// SchedulerConfig holds cron specs for background jobs.
type SchedulerConfig struct {
	Enabled          bool
	SLASweepSchedule string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	tiers, err := parseGMVTiers(getEnv("TICKETS_GMV_TIERS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid TICKETS_GMV_TIERS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "flow-helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:                getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:            os.Getenv("REDIS_PASSWORD"),
			DB:                  redisDB,
			Enabled:             getEnvAsBool("REDIS_ENABLED", true),
			CategoryTTLSeconds:  getEnvAsInt("REDIS_CATEGORY_TTL_SECONDS", 300),
			VendorLookupTTLSecs: getEnvAsInt("REDIS_VENDOR_LOOKUP_TTL_SECONDS", 600),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 480),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			AllTicketDepartments:  getEnvAsList("AUTH_ALL_TICKET_DEPARTMENTS", []string{"CX"}),
			PolicyFile:            os.Getenv("AUTH_POLICY_FILE"),
			BootstrapEmail:        os.Getenv("AUTH_BOOTSTRAP_OWNER_EMAIL"),
			BootstrapPassword:     os.Getenv("AUTH_BOOTSTRAP_OWNER_PASSWORD"),
		},
		N8N: N8NConfig{
			BaseURL:        strings.TrimRight(os.Getenv("N8N_BASE_URL"), "/"),
			WebhookSecret:  os.Getenv("N8N_WEBHOOK_SECRET"),
			TimeoutSeconds: getEnvAsInt("N8N_TIMEOUT_SECONDS", 10),
			SlackChannel:   getEnv("N8N_SLACK_CHANNEL", "#flow-tickets"),
		},
		BigQuery: BigQueryConfig{
			Enabled:         getEnvAsBool("BIGQUERY_ENABLED", false),
			ProjectID:       os.Getenv("BIGQUERY_PROJECT_ID"),
			Dataset:         getEnv("BIGQUERY_DATASET", "marketplace"),
			CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			SyncSchedule:    getEnv("BIGQUERY_SYNC_SCHEDULE", "0 */6 * * *"),
			LookbackDays:    getEnvAsInt("BIGQUERY_LOOKBACK_DAYS", 365),
			HomeCountry:     getEnv("BIGQUERY_HOME_COUNTRY", "PK"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "flow@example.com"),
		},
		Tickets: TicketConfig{
			DefaultResponseMinutes:   getEnvAsInt("TICKETS_DEFAULT_RESPONSE_MINUTES", 240),
			DefaultResolutionMinutes: getEnvAsInt("TICKETS_DEFAULT_RESOLUTION_MINUTES", 2880),
			GMVTiers:                 tiers,
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			SLASweepSchedule: getEnv("SCHEDULER_SLA_SWEEP_SCHEDULE", "*/5 * * * *"),
		},
	}

	// a shared secret would let any user access token open the n8n receiver
	if cfg.N8N.WebhookSecret != "" && cfg.N8N.WebhookSecret == cfg.Auth.JWTSecret {
		return nil, fmt.Errorf("N8N_WEBHOOK_SECRET must differ from AUTH_JWT_SECRET")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the n8n HTTP client timeout.
func (n N8NConfig) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Configured reports whether outbound SMTP is usable.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Port > 0
}

// parseGMVTiers reads "Platinum:500,Gold:200" into thresholds sorted descending.
func parseGMVTiers(raw string) ([]domain.GMVTierThreshold, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]domain.GMVTierThreshold(nil), domain.DefaultGMVTiers...), nil
	}
	var tiers []domain.GMVTierThreshold
	for _, part := range strings.Split(raw, ",") {
		name, minStr, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("expected tier:min, got %q", part)
		}
		minOrders, err := strconv.ParseInt(strings.TrimSpace(minStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", name, err)
		}
		tiers = append(tiers, domain.GMVTierThreshold{Tier: strings.TrimSpace(name), MinOrders: minOrders})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinOrders > tiers[j].MinOrders })
	return tiers, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
