package timetable

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Day is a lower-cased english weekday name.
type Day string

const (
	Monday    Day = "monday"
	Tuesday   Day = "tuesday"
	Wednesday Day = "wednesday"
	Thursday  Day = "thursday"
	Friday    Day = "friday"
	Saturday  Day = "saturday"
	Sunday    Day = "sunday"
)

var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseDay accepts any casing of a weekday name.
func ParseDay(s string) (Day, bool) {
	d := Day(strings.ToLower(strings.TrimSpace(s)))
	return d, d.IsValid()
}

func (d Day) IsValid() bool {
	return d.Index() >= 0
}

// Index is the 0-based position of the day in an ISO week (monday = 0), or -1.
func (d Day) Index() int {
	for i, day := range Days {
		if d == day {
			return i
		}
	}
	return -1
}

// Date truncates `t` to midnight UTC of its calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// WeekStart returns the monday of the ISO week containing `t`.
func WeekStart(t time.Time) time.Time {
	t = Date(t)
	offset := (int(t.Weekday()) + 6) % 7 // monday = 0
	return t.AddDate(0, 0, -offset)
}

// WeekEnd returns the sunday of the ISO week containing `t`.
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 6)
}

// DayOf returns the weekday of `t`.
func DayOf(t time.Time) Day {
	return Days[(int(t.Weekday())+6)%7]
}

// DateOf returns the concrete date of `day` in the week starting at `weekStart`.
func DateOf(weekStart time.Time, day Day) time.Time {
	idx := day.Index()
	if idx < 0 {
		idx = 0
	}
	return WeekStart(weekStart).AddDate(0, 0, idx)
}
