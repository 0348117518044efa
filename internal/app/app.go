// Package app wires repositories, integrations and services into a runnable helpdesk.
package app

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/flow-helpdesk/internal/api/http"
	"github.com/spec-kit/flow-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/bigquery"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/mail"
	"github.com/spec-kit/flow-helpdesk/internal/observability"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/service"
	"github.com/spec-kit/flow-helpdesk/internal/worker"
	apperrors "github.com/spec-kit/flow-helpdesk/pkg/util/errorutil"
)

const sideEffectTimeout = 15 * time.Second

// Dependencies are the external collaborators of the application.
type Dependencies struct {
	Config  *config.Config
	Store   *repository.Store
	Cache   persistence.Cache
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Storage names the active driver ("postgres" or "memory").
	Storage string
	// Pingers are checked by the readiness probe.
	Pingers map[string]handlers.Pinger

	Lookup service.VendorLookup
	Relay  service.Relay
	Mailer mail.Mailer
	// Source opens a BigQuery session per sync run; nil disables sync.
	Source service.SourceFactory
	Clock  service.Clock
}

// App holds the wired services.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Store      *repository.Store
	Policy     *auth.Policy
	Tokens     *auth.TokenManager
	Dispatcher events.Dispatcher

	Departments   *service.DepartmentService
	Priority      *service.PriorityService
	SLA           *service.SLAService
	Categories    *service.CategoryService
	Routing       *service.RoutingService
	Vendors       *service.VendorService
	Sync          *service.SyncService
	Imports       *service.ImportService
	Tickets       *service.TicketService
	Users         *service.UserService
	Auth          *service.AuthService
	Notifications *service.NotificationService
	Audit         *service.AuditService
	Attendance    *service.AttendanceService
	Analytics     *service.AnalyticsService

	storage string
	pingers map[string]handlers.Pinger
	clock   service.Clock
}

// New wires every service and registers the side-effect handlers.
func New(deps Dependencies) (*App, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy, err := auth.LoadPolicy(cfg.Auth.PolicyFile)
	if err != nil {
		return nil, err
	}
	clock := deps.Clock
	store := deps.Store
	dispatcher := events.NewAsyncDispatcher(logger, deps.Metrics, sideEffectTimeout)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    deps.Metrics,
		Store:      store,
		Policy:     policy,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		storage:    deps.Storage,
		pingers:    deps.Pingers,
		clock:      clock,
	}

	a.Departments = service.NewDepartmentService(store.Departments, dispatcher)
	a.Priority = service.NewPriorityService(store.Priority, dispatcher)
	a.SLA = service.NewSLAService(service.SLADependencies{
		SLARepo:    store.SLAs,
		Dispatcher: dispatcher,
		Defaults:   cfg.Tickets,
		Clock:      clock,
	})
	a.Categories = service.NewCategoryService(service.CategoryDependencies{
		CategoryRepo: store.Categories,
		Cache:        deps.Cache,
		CacheTTL:     time.Duration(cfg.Redis.CategoryTTLSeconds) * time.Second,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Clock:        clock,
	})
	a.Routing = service.NewRoutingService(service.RoutingDependencies{
		RuleRepo:       store.RoutingRules,
		UserRepo:       store.Users,
		TicketRepo:     store.Tickets,
		AttendanceRepo: store.Attendance,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Clock:          clock,
	})
	a.Vendors = service.NewVendorService(service.VendorDependencies{
		VendorRepo: store.Vendors,
		Lookup:     deps.Lookup,
		Cache:      deps.Cache,
		CacheTTL:   time.Duration(cfg.Redis.VendorLookupTTLSecs) * time.Second,
		GMVTiers:   cfg.Tickets.GMVTiers,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      clock,
	})
	a.Sync = service.NewSyncService(service.SyncDependencies{
		VendorRepo:   store.Vendors,
		Source:       deps.Source,
		GMVTiers:     cfg.Tickets.GMVTiers,
		LookbackDays: cfg.BigQuery.LookbackDays,
		Logger:       logger,
		Clock:        clock,
	})
	a.Imports = service.NewImportService(store.Vendors, cfg.Tickets.GMVTiers, dispatcher, logger)
	a.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:     store.Tickets,
		CommentRepo:    store.Comments,
		ActivityRepo:   store.Activity,
		DepartmentRepo: store.Departments,
		UserRepo:       store.Users,
		Categories:     a.Categories,
		Vendors:        a.Vendors,
		Routing:        a.Routing,
		SLA:            a.SLA,
		Priority:       a.Priority,
		Policy:         policy,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Clock:          clock,
	})
	a.Users = service.NewUserService(service.UserDependencies{
		UserRepo:       store.Users,
		DepartmentRepo: store.Departments,
		Policy:         policy,
		Dispatcher:     dispatcher,
		Logger:         logger,
		BcryptCost:     cfg.Auth.BcryptCost,
	})
	a.Auth = service.NewAuthService(service.AuthDependencies{
		UserRepo:     store.Users,
		TokenManager: tokens,
		BcryptCost:   cfg.Auth.BcryptCost,
	})
	a.Notifications = service.NewNotificationService(service.NotificationDependencies{
		ActivityRepo:     store.Activity,
		AuditRepo:        store.Audit,
		NotificationRepo: store.Notifications,
		UserRepo:         store.Users,
		Relay:            deps.Relay,
		Mailer:           deps.Mailer,
		SlackChannel:     cfg.N8N.SlackChannel,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	a.Notifications.RegisterHandlers()
	a.Audit = service.NewAuditService(store.Audit)
	a.Attendance = service.NewAttendanceService(store.Attendance, store.Users, clock)
	a.Analytics = service.NewAnalyticsService(store.Tickets, clock)
	return a, nil
}

// HTTP builds the fiber application.
func (a *App) HTTP() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      a.Config.App.Name,
		BodyLimit:    12 * 1024 * 1024,
		ReadTimeout:  a.Config.App.RequestTimeout(),
		WriteTimeout: a.Config.App.RequestTimeout() + time.Minute,
	})
	httptransport.RegisterMiddlewares(app, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	scope := auth.NewScope(a.Policy, a.Config.Auth.AllTicketDepartments)
	var webhookVerifier *auth.TokenManager
	if a.Config.N8N.WebhookSecret != "" {
		webhookVerifier = auth.NewTokenManager(a.Config.N8N.WebhookSecret, 0)
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, a.storage, a.pingers, a.Metrics),
		Auth:          handlers.NewAuthHandler(a.Auth, a.Users),
		Tickets:       handlers.NewTicketsHandler(a.Tickets, a.clock),
		Users:         handlers.NewUsersHandler(a.Users),
		Vendors:       handlers.NewVendorsHandler(a.Vendors, a.Imports, a.Sync),
		Config: handlers.NewConfigHandler(handlers.ConfigServices{
			Departments: a.Departments,
			Categories:  a.Categories,
			SLA:         a.SLA,
			Priority:    a.Priority,
			Routing:     a.Routing,
		}),
		Notifications:   handlers.NewNotificationsHandler(a.Notifications, a.Audit),
		Attendance:      handlers.NewAttendanceHandler(a.Attendance),
		Analytics:       handlers.NewAnalyticsHandler(a.Analytics),
		Webhooks:        handlers.NewWebhooksHandler(a.Sync),
		AuthMiddleware:  auth.NewAuthMiddleware(a.Tokens, a.Store.Users, a.Store.Departments, scope, a.Logger),
		Policy:          a.Policy,
		WebhookVerifier: webhookVerifier,
	})
	return app
}

// Scheduler builds the cron scheduler for vendor sync and the SLA sweep.
func (a *App) Scheduler() (*worker.Scheduler, error) {
	s := worker.NewScheduler(a.Logger, 0)
	if a.Config.BigQuery.Enabled {
		if err := s.AddVendorSync(a.Config.BigQuery.SyncSchedule, a.Sync); err != nil {
			return nil, err
		}
	}
	if err := s.AddSLASweep(a.Config.Scheduler.SLASweepSchedule, a.Tickets); err != nil {
		return nil, err
	}
	return s, nil
}

// Bootstrap creates the configured Owner account when no user has that email yet.
func (a *App) Bootstrap(ctx context.Context) error {
	email := a.Config.Auth.BootstrapEmail
	if email == "" {
		return nil
	}
	if _, err := a.Store.Users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}
	name := "Owner"
	password := a.Config.Auth.BootstrapPassword
	_, err := a.Users.Create(ctx, nil, service.UserInput{
		Email:    &email,
		Name:     &name,
		Password: &password,
		Roles:    []string{domain.RoleOwner},
	})
	if err != nil {
		return err
	}
	a.Logger.Info("bootstrap owner created", zap.String("email", email))
	return nil
}

// Drain waits for in-flight side effects.
func (a *App) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BigQuerySource opens a fresh BigQuery session per run.
func BigQuerySource(cfg config.BigQueryConfig) service.SourceFactory {
	if !cfg.Enabled {
		return nil
	}
	return func(ctx context.Context) (bigquery.RowSource, error) {
		return bigquery.NewSource(ctx, cfg)
	}
}
