package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
)

func TestRenderGrid(t *testing.T) {
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	g := timetable.Build([]model.Appointment{
		{ID: "a1", PatientID: "p-42", Date: monday.AddDate(0, 0, 1), Time: "08:30"},
		{ID: "a2", PatientID: "p-7", Date: monday.AddDate(0, 0, 5), Time: "08:30"},
	}, monday)

	var buf bytes.Buffer
	if err := renderGrid(&buf, g); err != nil {
		t.Fatalf("renderGrid: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "2025-01-06 - 2025-01-10" {
		t.Fatalf("unexpected label %q", lines[0])
	}
	// label + header + 20 slots + dropped note
	if len(lines) != 23 {
		t.Fatalf("expected 23 lines, got %d:\n%s", len(lines), buf.String())
	}
	row := strings.Fields(lines[3])
	if len(row) != 6 || row[0] != "08:30" || row[1] != "." || row[2] != "p-42" {
		t.Fatalf("unexpected 08:30 row %q", lines[3])
	}
	if !strings.Contains(lines[22], "1 appointment(s) outside the grid") {
		t.Fatalf("missing dropped note: %q", lines[22])
	}
}

func TestRenderList(t *testing.T) {
	var buf bytes.Buffer
	err := renderList(&buf, []model.Appointment{
		{ID: "a1", DoctorID: "d1", Date: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), Time: "10:00"},
	})
	if err != nil {
		t.Fatalf("renderList: %v", err)
	}
	if !strings.Contains(buf.String(), "a1") || !strings.Contains(buf.String(), "2025-01-07") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}
