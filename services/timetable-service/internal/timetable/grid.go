package timetable

import (
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

type DropReason string

const (
	DropOutsideWeek   DropReason = "outside_week"
	DropWeekend       DropReason = "weekend"
	DropOffGrid       DropReason = "off_grid"
	DropMalformedTime DropReason = "malformed_time"
)

// Drop records an appointment that could not be placed on the grid.
type Drop struct {
	Appointment model.Appointment
	Reason      DropReason
}

// Grid is the weekday x slot projection of one week's appointments.
// Cells[d][s] is nil when the cell is free.
type Grid struct {
	Window  week.Window
	Cells   [week.Weekdays][SlotCount]*model.Appointment
	Dropped []Drop
}

// Build projects appointments onto the grid for the week starting at weekStart.
//
// Only Monday..Friday dates of that week with a time that lands exactly on a
// slot are placed. Everything else is returned in Dropped and never rendered.
// If two appointments land on the same cell the later one wins.
func Build(appointments []model.Appointment, weekStart time.Time) Grid {
	g := Grid{Window: week.WindowOf(weekStart)}
	for i := range appointments {
		appt := appointments[i]
		offset := week.DaysBetween(g.Window.Start, appt.Date)
		if offset < 0 || offset > 6 {
			g.Dropped = append(g.Dropped, Drop{Appointment: appt, Reason: DropOutsideWeek})
			continue
		}
		day := g.Window.Weekday(appt.Date)
		if day == 0 {
			g.Dropped = append(g.Dropped, Drop{Appointment: appt, Reason: DropWeekend})
			continue
		}
		minutes, err := ParseClock(appt.Time)
		if err != nil {
			g.Dropped = append(g.Dropped, Drop{Appointment: appt, Reason: DropMalformedTime})
			continue
		}
		slot := SlotIndex(minutes)
		if slot < 0 {
			g.Dropped = append(g.Dropped, Drop{Appointment: appt, Reason: DropOffGrid})
			continue
		}
		g.Cells[day-1][slot] = &appt
	}
	return g
}

// At returns the appointment at weekday (1=Monday) and slot index, or nil.
func (g *Grid) At(weekday, slot int) *model.Appointment {
	if weekday < 1 || weekday > week.Weekdays || slot < 0 || slot >= SlotCount {
		return nil
	}
	return g.Cells[weekday-1][slot]
}

// Count returns the number of occupied cells.
func (g *Grid) Count() int {
	n := 0
	for d := range g.Cells {
		for s := range g.Cells[d] {
			if g.Cells[d][s] != nil {
				n++
			}
		}
	}
	return n
}
