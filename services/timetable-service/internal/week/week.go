package week

import (
	"errors"
	"fmt"
	"time"
)

// Weekdays is the number of bookable days per week (Monday..Friday).
const Weekdays = 5

const DateLayout = "2006-01-02"

var ErrWeekdayRange = errors.New("weekday index must be between 1 (Monday) and 5 (Friday)")

// Normalize strips the time-of-day, keeping the date's location.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// MondayOf returns the Monday of the week containing reference, at midnight.
// Sunday is the last day of its week, so a Sunday maps six days back.
func MondayOf(reference time.Time) time.Time {
	day := Normalize(reference)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// DateForWeekday returns the date of weekday (1=Monday .. 5=Friday) in the
// week starting at weekStart.
func DateForWeekday(weekStart time.Time, weekday int) (time.Time, error) {
	if weekday < 1 || weekday > Weekdays {
		return time.Time{}, fmt.Errorf("%w (got %d)", ErrWeekdayRange, weekday)
	}
	return Normalize(weekStart).AddDate(0, 0, weekday-1), nil
}

// ShiftWeek moves deltaWeeks weeks forward (or back when negative).
func ShiftWeek(weekStart time.Time, deltaWeeks int) time.Time {
	return MondayOf(weekStart.AddDate(0, 0, 7*deltaWeeks))
}

// SameDay compares calendar dates, ignoring time-of-day and location.
func SameDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 0
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ca := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	cb := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(cb.Sub(ca).Hours() / 24)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD) as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Window is the Monday..Friday range displayed for one week.
type Window struct {
	Start time.Time
}

func WindowOf(reference time.Time) Window {
	return Window{Start: MondayOf(reference)}
}

// End returns the Friday of the window.
func (w Window) End() time.Time {
	return w.Start.AddDate(0, 0, Weekdays-1)
}

// Contains reports whether date falls on Monday..Friday of the window.
func (w Window) Contains(date time.Time) bool {
	n := DaysBetween(w.Start, date)
	return n >= 0 && n < Weekdays
}

// Weekday returns the 1-based weekday index of date within the window,
// or 0 when the date is outside Monday..Friday of this week.
func (w Window) Weekday(date time.Time) int {
	if !w.Contains(date) {
		return 0
	}
	return DaysBetween(w.Start, date) + 1
}

func (w Window) Days() []time.Time {
	days := make([]time.Time, 0, Weekdays)
	for i := 0; i < Weekdays; i++ {
		days = append(days, w.Start.AddDate(0, 0, i))
	}
	return days
}

func (w Window) Next() Window     { return Window{Start: ShiftWeek(w.Start, 1)} }
func (w Window) Previous() Window { return Window{Start: ShiftWeek(w.Start, -1)} }

// Label renders the header shown above the grid, e.g. "2025-01-06 - 2025-01-10".
func (w Window) Label() string {
	return FormatDate(w.Start) + " - " + FormatDate(w.End())
}
