package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/flow-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Users          *handlers.UsersHandler
	Vendors        *handlers.VendorsHandler
	Config         *handlers.ConfigHandler
	Notifications  *handlers.NotificationsHandler
	Attendance     *handlers.AttendanceHandler
	Analytics      *handlers.AnalyticsHandler
	Webhooks       *handlers.WebhooksHandler
	AuthMiddleware *auth.AuthMiddleware
	Policy         *auth.Policy
	// WebhookVerifier checks n8n bearer tokens; nil disables the receiver.
	WebhookVerifier *auth.TokenManager
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api")
	api.Post("/auth/login", cfg.Auth.Login)

	if cfg.WebhookVerifier != nil {
		hooks := api.Group("/webhooks/n8n", auth.WebhookAuth(cfg.WebhookVerifier))
		hooks.Post("/vendors", cfg.Webhooks.Vendors)
		hooks.Post("/sync", cfg.Webhooks.Sync)
	}

	protected := api.Group("", cfg.AuthMiddleware.Handle)
	can := func(perm domain.Permission) fiber.Handler {
		return auth.RequirePermission(cfg.Policy, perm)
	}

	protected.Get("/me", cfg.Auth.Me)
	protected.Post("/me/password", cfg.Auth.ChangePassword)

	tickets := protected.Group("/tickets")
	tickets.Get("/", cfg.Tickets.List)
	tickets.Post("/", can(domain.PermTicketsCreate), cfg.Tickets.Create)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Patch("/:id", can(domain.PermTicketsEdit), cfg.Tickets.Update)
	tickets.Delete("/:id", can(domain.PermTicketsDelete), cfg.Tickets.Delete)
	tickets.Post("/:id/status", can(domain.PermTicketsEdit), cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/assign", can(domain.PermTicketsEdit), cfg.Tickets.Assign)
	tickets.Get("/:id/comments", cfg.Tickets.ListComments)
	tickets.Post("/:id/comments", can(domain.PermTicketsEdit), cfg.Tickets.AddComment)
	tickets.Get("/:id/activity", cfg.Tickets.Activity)

	users := protected.Group("/users")
	users.Get("/", cfg.Users.List)
	users.Get("/drift", can(domain.PermUsersManage), cfg.Users.Drift)
	users.Post("/sync-roles", can(domain.PermUsersManage), cfg.Users.SyncRoles)
	users.Post("/", can(domain.PermUsersManage), cfg.Users.Create)
	users.Get("/:id", cfg.Users.Get)
	users.Patch("/:id", can(domain.PermUsersManage), cfg.Users.Update)
	users.Post("/:id/deactivate", can(domain.PermUsersManage), cfg.Users.Deactivate)

	vendors := protected.Group("/vendors")
	vendors.Get("/", cfg.Vendors.List)
	vendors.Post("/", can(domain.PermVendorsManage), cfg.Vendors.Create)
	vendors.Post("/import", can(domain.PermVendorsManage), cfg.Vendors.Import)
	vendors.Post("/sync", can(domain.PermVendorsSync), cfg.Vendors.Sync)
	vendors.Get("/sync/last", can(domain.PermVendorsSync), cfg.Vendors.LastSync)
	vendors.Get("/:handle", cfg.Vendors.Get)
	vendors.Patch("/:handle", can(domain.PermVendorsManage), cfg.Vendors.Update)

	departments := protected.Group("/departments")
	departments.Get("/", cfg.Config.ListDepartments)
	departments.Get("/:id", cfg.Config.GetDepartment)
	departments.Post("/", can(domain.PermConfigManage), cfg.Config.CreateDepartment)
	departments.Patch("/:id", can(domain.PermConfigManage), cfg.Config.UpdateDepartment)

	conf := protected.Group("/config")
	conf.Get("/categories", cfg.Config.Categories)
	conf.Get("/categories/:id", cfg.Config.GetCategory)
	conf.Post("/categories", can(domain.PermConfigManage), cfg.Config.CreateCategory)
	conf.Patch("/categories/:id", can(domain.PermConfigManage), cfg.Config.UpdateCategory)
	conf.Delete("/categories/:id", can(domain.PermConfigManage), cfg.Config.DeleteCategory)

	conf.Get("/sla", cfg.Config.ListSLA)
	conf.Get("/sla/:id", cfg.Config.GetSLA)
	conf.Post("/sla", can(domain.PermConfigManage), cfg.Config.CreateSLA)
	conf.Patch("/sla/:id", can(domain.PermConfigManage), cfg.Config.UpdateSLA)
	conf.Delete("/sla/:id", can(domain.PermConfigManage), cfg.Config.DeleteSLA)

	conf.Get("/priority", cfg.Config.Priority)
	conf.Get("/priority/versions", cfg.Config.PriorityVersions)
	conf.Put("/priority", can(domain.PermConfigManage), cfg.Config.SavePriority)

	conf.Get("/routing", cfg.Config.ListRouting)
	conf.Get("/routing/candidates", can(domain.PermTicketsAssign), cfg.Config.RoutingCandidates)
	conf.Get("/routing/:id", cfg.Config.GetRouting)
	conf.Post("/routing", can(domain.PermConfigManage), cfg.Config.CreateRouting)
	conf.Patch("/routing/:id", can(domain.PermConfigManage), cfg.Config.UpdateRouting)
	conf.Delete("/routing/:id", can(domain.PermConfigManage), cfg.Config.DeleteRouting)

	notifications := protected.Group("/notifications", can(domain.PermNotificationsView))
	notifications.Get("/", cfg.Notifications.List)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	protected.Get("/audit", can(domain.PermAuditView), cfg.Notifications.Audit)

	attendance := protected.Group("/attendance")
	attendance.Post("/check-in", cfg.Attendance.CheckIn)
	attendance.Post("/check-out", cfg.Attendance.CheckOut)
	attendance.Get("/present", cfg.Attendance.Present)
	attendance.Get("/day", can(domain.PermAttendanceManage), cfg.Attendance.Day)

	protected.Get("/analytics/summary", can(domain.PermAnalyticsView), cfg.Analytics.Summary)
}
