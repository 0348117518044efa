package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/config"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
	"github.com/spec-kit/flow-helpdesk/internal/events"
	"github.com/spec-kit/flow-helpdesk/internal/integrations/n8n"
	"github.com/spec-kit/flow-helpdesk/internal/persistence"
	"github.com/spec-kit/flow-helpdesk/internal/repository"
	"github.com/spec-kit/flow-helpdesk/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLookup struct {
	mu      sync.Mutex
	vendors map[string]n8n.VendorRecord
	calls   int
}

func (f *fakeLookup) LookupVendor(_ context.Context, handle string) (*n8n.VendorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rec, ok := f.vendors[handle]
	if !ok {
		return nil, n8n.ErrVendorNotFound
	}
	return &rec, nil
}

type fakeRelay struct {
	mu     sync.Mutex
	slack  []n8n.SlackMessage
	events []string
}

func (f *fakeRelay) SendSlack(_ context.Context, msg n8n.SlackMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slack = append(f.slack, msg)
	return nil
}

func (f *fakeRelay) NotifyEvent(_ context.Context, eventType string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent [][]string
}

func (f *fakeMailer) Send(_ context.Context, to []string, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]string{subject}, to...))
	return nil
}

// memoryCache is a map-backed persistence.Cache for tests.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

type fixture struct {
	ctx        context.Context
	clock      *fakeClock
	store      *repository.Store
	policy     *auth.Policy
	scope      *auth.Scope
	dispatcher events.Dispatcher
	cache      *memoryCache
	lookup     *fakeLookup
	relay      *fakeRelay
	mailer     *fakeMailer

	departments map[string]*domain.Department

	priority      *PriorityService
	sla           *SLAService
	categories    *CategoryService
	routing       *RoutingService
	vendors       *VendorService
	tickets       *TicketService
	users         *UserService
	notifications *NotificationService
	attendance    *AttendanceService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStoreWithClock(clock.Now)
	policy, err := auth.LoadPolicy("")
	require.NoError(t, err)

	f := &fixture{
		ctx:         ctx,
		clock:       clock,
		store:       store,
		policy:      policy,
		scope:       auth.NewScope(policy, []string{"CX"}),
		dispatcher:  events.NewAsyncDispatcher(zap.NewNop(), nil, time.Second),
		cache:       newMemoryCache(),
		lookup:      &fakeLookup{vendors: map[string]n8n.VendorRecord{}},
		relay:       &fakeRelay{},
		mailer:      &fakeMailer{},
		departments: map[string]*domain.Department{},
	}
	for _, code := range []string{"SS", "CS", "CX"} {
		d, err := store.Departments.GetByName(ctx, code)
		require.NoError(t, err)
		f.departments[code] = d
	}

	defaults := config.TicketConfig{DefaultResponseMinutes: 240, DefaultResolutionMinutes: 2880, GMVTiers: domain.DefaultGMVTiers}
	f.priority = NewPriorityService(store.Priority, f.dispatcher)
	f.sla = NewSLAService(SLADependencies{SLARepo: store.SLAs, Dispatcher: f.dispatcher, Defaults: defaults, Clock: clock.Now})
	f.categories = NewCategoryService(CategoryDependencies{
		CategoryRepo: store.Categories,
		Cache:        f.cache,
		Dispatcher:   f.dispatcher,
		Clock:        clock.Now,
	})
	f.routing = NewRoutingService(RoutingDependencies{
		RuleRepo:       store.RoutingRules,
		UserRepo:       store.Users,
		TicketRepo:     store.Tickets,
		AttendanceRepo: store.Attendance,
		Dispatcher:     f.dispatcher,
		Clock:          clock.Now,
	})
	f.vendors = NewVendorService(VendorDependencies{
		VendorRepo: store.Vendors,
		Lookup:     f.lookup,
		Cache:      f.cache,
		GMVTiers:   domain.DefaultGMVTiers,
		Dispatcher: f.dispatcher,
		Clock:      clock.Now,
	})
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:     store.Tickets,
		CommentRepo:    store.Comments,
		ActivityRepo:   store.Activity,
		DepartmentRepo: store.Departments,
		UserRepo:       store.Users,
		Categories:     f.categories,
		Vendors:        f.vendors,
		Routing:        f.routing,
		SLA:            f.sla,
		Priority:       f.priority,
		Policy:         policy,
		Dispatcher:     f.dispatcher,
		Clock:          clock.Now,
	})
	f.users = NewUserService(UserDependencies{
		UserRepo:       store.Users,
		DepartmentRepo: store.Departments,
		Policy:         policy,
		Dispatcher:     f.dispatcher,
		BcryptCost:     4,
	})
	f.notifications = NewNotificationService(NotificationDependencies{
		ActivityRepo:     store.Activity,
		AuditRepo:        store.Audit,
		NotificationRepo: store.Notifications,
		UserRepo:         store.Users,
		Relay:            f.relay,
		Mailer:           f.mailer,
		SlackChannel:     "#flow",
		Dispatcher:       f.dispatcher,
	})
	f.notifications.RegisterHandlers()
	f.attendance = NewAttendanceService(store.Attendance, store.Users, clock.Now)
	t.Cleanup(f.dispatcher.Wait)
	return f
}

// user stores a user in dept (a department code, or "" for none) holding roles.
func (f *fixture) user(t *testing.T, name, dept string, roles ...string) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:    name + "@example.com",
		Name:     name,
		Roles:    roles,
		IsActive: true,
	}
	if dept != "" {
		u.DepartmentID = &f.departments[dept].ID
	}
	require.NoError(t, f.store.Users.Create(f.ctx, u))
	return u
}

func (f *fixture) principal(u *domain.User) *auth.Principal {
	p := &auth.Principal{User: u}
	if u.DepartmentID != nil {
		for _, d := range f.departments {
			if d.ID == *u.DepartmentID {
				p.Department = d
			}
		}
	}
	p.ViewAll = f.scope.ViewAll(u, p.Department)
	return p
}

func (f *fixture) category(t *testing.T, in CategoryInput) *domain.Category {
	t.Helper()
	c, err := f.categories.Create(f.ctx, nil, in)
	require.NoError(t, err)
	return c
}

var _ persistence.Cache = (*memoryCache)(nil)
