package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

func renderGrid(out io.Writer, g timetable.Grid) error {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, g.Window.Label())

	header := []string{"time"}
	for _, d := range g.Window.Days() {
		header = append(header, d.Format("Mon 01-02"))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, slot := range timetable.Slots() {
		cells := []string{slot.Label}
		for day := 1; day <= week.Weekdays; day++ {
			cell := "."
			if a := g.At(day, slot.Index); a != nil {
				cell = a.PatientID
			}
			cells = append(cells, cell)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if len(g.Dropped) > 0 {
		fmt.Fprintf(tw, "%d appointment(s) outside the grid\n", len(g.Dropped))
	}
	return tw.Flush()
}

func renderList(out io.Writer, appts []model.Appointment) error {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tdate\ttime\tdoctor")
	for _, a := range appts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, week.FormatDate(a.Date), a.Time, a.DoctorID)
	}
	return tw.Flush()
}
