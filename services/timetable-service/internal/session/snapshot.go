package session

import (
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/booking"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

type Snapshot struct {
	ID        string      `json:"id"`
	DoctorID  string      `json:"doctor_id"`
	PatientID string      `json:"patient_id"`
	Status    string      `json:"status"`
	Stale     bool        `json:"stale"`
	Error     string      `json:"error,omitempty"`
	Week      WeekView    `json:"week"`
	Rows      []Row       `json:"rows,omitempty"`
	Dropped   int         `json:"dropped"`
	Booking   BookingView `json:"booking"`
}

type WeekView struct {
	Start string    `json:"start"`
	End   string    `json:"end"`
	Label string    `json:"label"`
	Days  []DayView `json:"days"`
}

type DayView struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
}

type Row struct {
	Time  string `json:"time"`
	Cells []Cell `json:"cells"`
}

type Cell struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Mine      bool   `json:"mine,omitempty"`
}

type SlotView struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type BookingView struct {
	State       string    `json:"state"`
	Selected    *SlotView `json:"selected,omitempty"`
	NewlyBooked *SlotView `json:"newly_booked,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

func NewWeekView(w week.Window) WeekView {
	view := WeekView{
		Start: week.FormatDate(w.Start),
		End:   week.FormatDate(w.End()),
		Label: w.Label(),
	}
	for _, d := range w.Days() {
		view.Days = append(view.Days, DayView{Date: week.FormatDate(d), Weekday: d.Weekday().String()})
	}
	return view
}

func slotView(ref model.SlotRef, ok bool) *SlotView {
	if !ok {
		return nil
	}
	return &SlotView{Date: week.FormatDate(ref.Date), Time: ref.Time}
}

// Snapshot renders the session for clients. Cells are omitted unless the
// status is ready, and reported unavailable while a newly displayed week is
// still loading.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.hasData && !s.loadedWeek.Equal(s.window.Start)
	snap := Snapshot{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		PatientID: s.PatientID,
		Status:    s.status.String(),
		Stale:     stale,
		Week:      NewWeekView(s.window),
		Booking: BookingView{
			State:       s.rec.State().String(),
			Selected:    slotView(s.rec.Selected()),
			NewlyBooked: slotView(s.rec.Marker()),
		},
	}
	if err := s.rec.LastError(); err != nil {
		snap.Booking.LastError = err.Error()
	}
	if s.status == StatusFailed && s.fetchErr != nil {
		snap.Error = s.fetchErr.Error()
	}
	if s.status != StatusReady {
		return snap
	}

	grid := timetable.Build(s.rec.Appointments(), s.window.Start)
	snap.Dropped = len(grid.Dropped)
	marker, hasMarker := s.rec.Marker()
	days := s.window.Days()
	for _, slot := range timetable.Slots() {
		row := Row{Time: slot.Label, Cells: make([]Cell, 0, len(days))}
		for i, d := range days {
			cell := Cell{
				Date:      week.FormatDate(d),
				Time:      slot.Label,
				Available: !stale && s.rec.IsAvailable(d, slot.Label),
			}
			if a := grid.At(i+1, slot.Index); a != nil && a.PatientID == s.PatientID {
				cell.Mine = true
			}
			if hasMarker && booking.SameSlot(marker, model.SlotRef{Date: d, Time: slot.Label}) {
				cell.Mine = true
			}
			row.Cells = append(row.Cells, cell)
		}
		snap.Rows = append(snap.Rows, row)
	}
	return snap
}

// DoctorGrid is the doctor's read-only view of a week with patient names.
type DoctorGrid struct {
	DoctorID string      `json:"doctor_id"`
	Week     WeekView    `json:"week"`
	Rows     []DoctorRow `json:"rows"`
	Dropped  int         `json:"dropped"`
}

type DoctorRow struct {
	Time  string       `json:"time"`
	Cells []DoctorCell `json:"cells"`
}

type DoctorCell struct {
	Date          string `json:"date"`
	AppointmentID string `json:"appointment_id,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
}

// BuildDoctorGrid places appts on the grid of the week containing reference.
// Unknown patients are shown as "Unknown".
func BuildDoctorGrid(doctorID string, appts []model.Appointment, reference time.Time, names map[string]string) DoctorGrid {
	w := week.WindowOf(reference)
	grid := timetable.Build(appts, w.Start)
	out := DoctorGrid{DoctorID: doctorID, Week: NewWeekView(w), Dropped: len(grid.Dropped)}
	days := w.Days()
	for _, slot := range timetable.Slots() {
		row := DoctorRow{Time: slot.Label, Cells: make([]DoctorCell, 0, len(days))}
		for i, d := range days {
			cell := DoctorCell{Date: week.FormatDate(d)}
			if a := grid.At(i+1, slot.Index); a != nil {
				cell.AppointmentID = a.ID
				cell.PatientID = a.PatientID
				cell.PatientName = "Unknown"
				if n, ok := names[a.PatientID]; ok && n != "" {
					cell.PatientName = n
				}
			}
			row.Cells = append(row.Cells, cell)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
