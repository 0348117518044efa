package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/flow-helpdesk/internal/auth"
	"github.com/spec-kit/flow-helpdesk/internal/domain"
)

func TestAttendanceCheckInOut(t *testing.T) {
	f := newFixture(t)
	alice := f.principal(f.user(t, "alice", "SS", domain.RoleAgent))
	bob := f.principal(f.user(t, "bob", "SS", domain.RoleAgent))

	_, err := f.attendance.CheckOut(f.ctx, alice)
	assertStatus(t, err, 404)

	first, err := f.attendance.CheckIn(f.ctx, alice)
	require.NoError(t, err)
	assert.True(t, first.Present())
	assert.Equal(t, domain.DayOf(f.clock.Now()), first.Day)

	f.clock.Advance(time.Hour)
	again, err := f.attendance.CheckIn(f.ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "one record per user and day")
	assert.Equal(t, first.CheckInAt, again.CheckInAt)

	_, err = f.attendance.CheckIn(f.ctx, bob)
	require.NoError(t, err)
	present, err := f.attendance.Present(f.ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, userNames(present))

	out, err := f.attendance.CheckOut(f.ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, out.CheckOutAt)
	assert.Equal(t, f.clock.Now(), *out.CheckOutAt)

	present, err = f.attendance.Present(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, userNames(present))

	day, err := f.attendance.Day(f.ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, day, 2)

	f.clock.Advance(24 * time.Hour)
	present, err = f.attendance.Present(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, present, "presence resets each day")

	yesterday, err := f.attendance.Day(f.ctx, f.clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, yesterday, 2)
}

func TestAttendanceRequiresCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.attendance.CheckIn(f.ctx, nil)
	assertStatus(t, err, 401)
	_, err = f.attendance.CheckOut(f.ctx, &auth.Principal{})
	assertStatus(t, err, 401)
}

func userNames(users []domain.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Name)
	}
	return out
}
