package booking

import (
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

// EffectiveAvailability merges the authoritative appointment list with the
// optimistic marker. A cell is available iff no listed appointment occupies it
// and the marker does not point at it. Unparseable clocks are never available.
func EffectiveAvailability(server []model.Appointment, marker *model.SlotRef, date time.Time, clock string) bool {
	minutes, err := timetable.ParseClock(clock)
	if err != nil {
		return false
	}
	for _, a := range server {
		if occupies(a.Date, a.Time, date, minutes) {
			return false
		}
	}
	if marker != nil && occupies(marker.Date, marker.Time, date, minutes) {
		return false
	}
	return true
}

// SameSlot reports whether a and b name the same (date, time) cell.
func SameSlot(a, b model.SlotRef) bool {
	m, err := timetable.ParseClock(b.Time)
	if err != nil {
		return false
	}
	return occupies(a.Date, a.Time, b.Date, m)
}

func occupies(date time.Time, clock string, wantDate time.Time, wantMinutes int) bool {
	if !week.SameDay(date, wantDate) {
		return false
	}
	m, err := timetable.ParseClock(clock)
	if err != nil {
		return false
	}
	return m == wantMinutes
}
