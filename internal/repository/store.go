package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Store bundles every repository used by the services.
type Store struct {
	Departments   DepartmentRepository
	Users         UserRepository
	Vendors       VendorRepository
	Categories    CategoryRepository
	SLAs          SLARepository
	Priority      PriorityConfigRepository
	RoutingRules  RoutingRuleRepository
	Tickets       TicketRepository
	Comments      CommentRepository
	Activity      ActivityRepository
	Audit         AuditRepository
	Notifications NotificationRepository
	Attendance    AttendanceRepository
}

// NewPostgresStore wires the pgx-backed repositories.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Departments:   NewDepartmentRepository(pool),
		Users:         NewUserRepository(pool),
		Vendors:       NewVendorRepository(pool),
		Categories:    NewCategoryRepository(pool),
		SLAs:          NewSLARepository(pool),
		Priority:      NewPriorityConfigRepository(pool),
		RoutingRules:  NewRoutingRuleRepository(pool),
		Tickets:       NewTicketRepository(pool),
		Comments:      NewCommentRepository(pool),
		Activity:      NewActivityRepository(pool),
		Audit:         NewAuditRepository(pool),
		Notifications: NewNotificationRepository(pool),
		Attendance:    NewAttendanceRepository(pool),
	}
}
