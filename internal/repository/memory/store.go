// Package memory provides process-local repositories for development and tests.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
)

type db struct {
	mu sync.Mutex

	departments   map[string]*domain.Department
	users         map[string]*domain.User
	vendors       map[string]*domain.Vendor
	categories    map[string]*domain.Category
	slas          map[string]*domain.SLAConfig
	priority      []*domain.PriorityConfig
	rules         map[string]*domain.RoutingRule
	tickets       map[string]*domain.Ticket
	comments      []*domain.TicketComment
	activity      []*domain.ActivityLog
	audit         []*domain.AuditLog
	notifications []*domain.Notification
	attendance    map[string]*domain.AttendanceRecord

	now func() time.Time
}

// NewStore returns an empty store seeded like the SQL migrations.
func NewStore() *repository.Store {
	return newStore(time.Now)
}

// NewStoreWithClock is NewStore with an injectable clock.
func NewStoreWithClock(now func() time.Time) *repository.Store {
	return newStore(now)
}

func newStore(now func() time.Time) *repository.Store {
	d := &db{
		departments: map[string]*domain.Department{},
		users:       map[string]*domain.User{},
		vendors:     map[string]*domain.Vendor{},
		categories:  map[string]*domain.Category{},
		slas:        map[string]*domain.SLAConfig{},
		rules:       map[string]*domain.RoutingRule{},
		tickets:     map[string]*domain.Ticket{},
		attendance:  map[string]*domain.AttendanceRecord{},
		now:         now,
	}
	d.seed()
	return &repository.Store{
		Departments:   &departmentRepo{d},
		Users:         &userRepo{d},
		Vendors:       &vendorRepo{d},
		Categories:    &categoryRepo{d},
		SLAs:          &slaRepo{d},
		Priority:      &priorityRepo{d},
		RoutingRules:  &routingRepo{d},
		Tickets:       &ticketRepo{d},
		Comments:      &commentRepo{d},
		Activity:      &activityRepo{d},
		Audit:         &auditRepo{d},
		Notifications: &notificationRepo{d},
		Attendance:    &attendanceRepo{d},
	}
}

func (d *db) seed() {
	ts := d.now().UTC()
	for _, seed := range []struct{ name, code string }{
		{"Seller Support", "SS"},
		{"Customer Support", "CS"},
		{"CX", "CX"},
	} {
		id := uuid.NewString()
		d.departments[id] = &domain.Department{ID: id, Name: seed.name, Code: seed.code, IsActive: true, CreatedAt: ts, UpdatedAt: ts}
	}
	d.categories[domain.UncategorizedCategoryID] = &domain.Category{
		ID:             domain.UncategorizedCategoryID,
		Level:          1,
		Name:           "Uncategorized",
		DefaultTags:    []string{},
		RequiredFields: []string{},
		Version:        1,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
}

func (d *db) stamp() time.Time {
	return d.now().UTC()
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: constraint,
	}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           "23503",
		Message:        "insert or update violates foreign key constraint",
		ConstraintName: constraint,
	}
}

func paginate[T any](items []T, limit, offset, defaultLimit int) []T {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
