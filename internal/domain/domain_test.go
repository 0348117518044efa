package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSLAStatusAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	due := created.Add(4 * time.Hour)
	solvedLate := due.Add(time.Minute)
	solvedEarly := created.Add(time.Hour)

	cases := []struct {
		name   string
		ticket Ticket
		now    time.Time
		want   SLAStatus
	}{
		{"no target", Ticket{CreatedAt: created}, created.Add(100 * time.Hour), SLAStatusOnTrack},
		{"early", Ticket{CreatedAt: created, ResolutionDueAt: &due}, created.Add(time.Hour), SLAStatusOnTrack},
		{"three quarters", Ticket{CreatedAt: created, ResolutionDueAt: &due}, created.Add(3 * time.Hour), SLAStatusAtRisk},
		{"past due", Ticket{CreatedAt: created, ResolutionDueAt: &due}, due.Add(time.Second), SLAStatusBreached},
		{"solved in time", Ticket{CreatedAt: created, ResolutionDueAt: &due, SolvedAt: &solvedEarly}, due.Add(time.Hour), SLAStatusMet},
		{"solved late", Ticket{CreatedAt: created, ResolutionDueAt: &due, SolvedAt: &solvedLate}, due.Add(time.Hour), SLAStatusBreached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ticket.SLAStatusAt(tc.now))
		})
	}
}

func TestFormatTicketNumber(t *testing.T) {
	assert.Equal(t, "SS-000001", FormatTicketNumber("SS", 1))
	assert.Equal(t, "CX-123456", FormatTicketNumber("CX", 123456))
	assert.Equal(t, "CS-1234567", FormatTicketNumber("CS", 1234567))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, TicketStatusPending.Valid())
	assert.False(t, TicketStatus("pending").Valid())
	assert.True(t, TicketStatusNew.IsOpen())
	assert.False(t, TicketStatusSolved.IsOpen())
}

func TestNormalizeRoles(t *testing.T) {
	role, roles := NormalizeRoles("", []string{"agent", "Lead", "Agent"})
	assert.Equal(t, RoleLead, role)
	assert.Equal(t, []string{RoleAgent, RoleLead}, roles)

	role, roles = NormalizeRoles("head", nil)
	assert.Equal(t, RoleHead, role)
	assert.Equal(t, []string{RoleHead}, roles)

	role, roles = NormalizeRoles("", nil)
	assert.Equal(t, RoleAgent, role)
	assert.Equal(t, []string{RoleAgent}, roles)

	role, roles = NormalizeRoles("Admin", []string{"Agent"})
	assert.Equal(t, RoleAdmin, role)
	assert.ElementsMatch(t, []string{RoleAdmin, RoleAgent}, roles)
}

func TestRolesDrifted(t *testing.T) {
	u := &User{Role: RoleAgent, Roles: []string{RoleAgent, RoleManager}}
	assert.True(t, u.RolesDrifted())
	u.Normalize()
	assert.False(t, u.RolesDrifted())
	assert.Equal(t, RoleManager, u.Role)
	assert.True(t, u.HasRole("agent"))

	assert.True(t, (&User{Role: RoleAgent}).RolesDrifted())
}

func TestPrimaryRoleKeepsUnknownRoles(t *testing.T) {
	assert.Equal(t, "Auditor", PrimaryRole([]string{"Auditor"}))
	assert.Equal(t, RoleViewer, PrimaryRole([]string{"Auditor", "viewer"}))
	assert.Equal(t, "", PrimaryRole(nil))
}

func TestGMVTierFor(t *testing.T) {
	cases := map[int64]string{
		0:   GMVTierNew,
		1:   "Bronze",
		49:  "Bronze",
		50:  "Silver",
		200: "Gold",
		499: "Gold",
		500: "Platinum",
	}
	for orders, want := range cases {
		assert.Equal(t, want, GMVTierFor(orders, nil), "orders=%d", orders)
	}
	custom := []GMVTierThreshold{{MinOrders: 10, Tier: "Top"}}
	assert.Equal(t, "Top", GMVTierFor(10, custom))
	assert.Equal(t, GMVTierNew, GMVTierFor(9, custom))
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("PKT", 5*60*60)
	at := time.Date(2024, 3, 2, 2, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), DayOf(at))

	rec := &AttendanceRecord{}
	assert.True(t, rec.Present())
	out := at
	rec.CheckOutAt = &out
	assert.False(t, rec.Present())
}
