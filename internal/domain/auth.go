package domain

// Permission is a named capability checked by the policy.
type Permission string

const (
	PermTicketsCreate     Permission = "tickets.create"
	PermTicketsViewAll    Permission = "tickets.view_all"
	PermTicketsEdit       Permission = "tickets.edit"
	PermTicketsAssign     Permission = "tickets.assign"
	PermTicketsDelete     Permission = "tickets.delete"
	PermUsersManage       Permission = "users.manage"
	PermVendorsManage     Permission = "vendors.manage"
	PermVendorsSync       Permission = "vendors.sync"
	PermConfigManage      Permission = "config.manage"
	PermAnalyticsView     Permission = "analytics.view"
	PermAttendanceManage  Permission = "attendance.manage"
	PermAuditView         Permission = "audit.view"
	PermNotificationsView Permission = "notifications.view"
)

// AllPermissions lists every permission known to the service.
var AllPermissions = []Permission{
	PermTicketsCreate,
	PermTicketsViewAll,
	PermTicketsEdit,
	PermTicketsAssign,
	PermTicketsDelete,
	PermUsersManage,
	PermVendorsManage,
	PermVendorsSync,
	PermConfigManage,
	PermAnalyticsView,
	PermAttendanceManage,
	PermAuditView,
	PermNotificationsView,
}
