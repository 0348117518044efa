package domain

import "time"

// AttendanceRecord tracks an agent's working day.
type AttendanceRecord struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Day        time.Time  `json:"day"`
	CheckInAt  time.Time  `json:"checkInAt"`
	CheckOutAt *time.Time `json:"checkOutAt,omitempty"`
}

// Present reports whether the agent is currently checked in.
func (a *AttendanceRecord) Present() bool {
	return a.CheckOutAt == nil
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
