package directory

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/cache"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

// Directory is the appointment backend: the medical portal REST API or the
// local Postgres store.
type Directory interface {
	AppointmentsByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error)
	AppointmentsByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, req model.NewAppointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, appt model.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
}

// PatientNamer resolves display names for the doctor view. Optional.
type PatientNamer interface {
	PatientNames(ctx context.Context) (map[string]string, error)
}

// RangeLister is implemented by directories that can filter by date range
// server-side. WeekLoader prefers it over listing every appointment.
type RangeLister interface {
	AppointmentsInRange(ctx context.Context, doctorID string, from, to time.Time) ([]model.Appointment, error)
}

// WeekLoader serves one doctor's week through the week cache.
type WeekLoader struct {
	dir    Directory
	cache  cache.WeekCache
	logger *slog.Logger
}

func NewWeekLoader(dir Directory, weekCache cache.WeekCache, logger *slog.Logger) *WeekLoader {
	return &WeekLoader{dir: dir, cache: weekCache, logger: logger}
}

// Week returns the doctor's appointments dated Monday..Sunday of the week
// containing weekStart. Cache failures fall through to the directory.
func (l *WeekLoader) Week(ctx context.Context, doctorID string, weekStart time.Time) ([]model.Appointment, error) {
	monday := week.MondayOf(weekStart)
	if l.cache != nil {
		appts, ok, err := l.cache.Get(ctx, doctorID, monday)
		if err != nil {
			l.logger.Warn("week cache read failed", "err", err, "doctor_id", doctorID)
		} else if ok {
			return appts, nil
		}
	}

	var (
		all []model.Appointment
		err error
	)
	if rl, ok := l.dir.(RangeLister); ok {
		all, err = rl.AppointmentsInRange(ctx, doctorID, monday, monday.AddDate(0, 0, 7))
	} else {
		all, err = l.dir.AppointmentsByDoctor(ctx, doctorID)
	}
	if err != nil {
		return nil, err
	}
	appts := InWeek(all, monday)
	if l.cache != nil {
		if err := l.cache.Set(ctx, doctorID, monday, appts); err != nil {
			l.logger.Warn("week cache write failed", "err", err, "doctor_id", doctorID)
		}
	}
	return appts, nil
}

func (l *WeekLoader) Invalidate(ctx context.Context, doctorID string, date time.Time) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, doctorID, week.MondayOf(date)); err != nil {
		l.logger.Warn("week cache invalidate failed", "err", err, "doctor_id", doctorID)
	}
}

// InWeek keeps the appointments dated within the 7 days starting at monday.
func InWeek(appts []model.Appointment, monday time.Time) []model.Appointment {
	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if n := week.DaysBetween(monday, a.Date); n >= 0 && n < 7 {
			out = append(out, a)
		}
	}
	return out
}

// SortChronologically orders appointments by date then time of day;
// unparseable times sort last within their day.
func SortChronologically(appts []model.Appointment) {
	minutes := func(a model.Appointment) int {
		m, err := timetable.ParseClock(a.Time)
		if err != nil {
			return 24 * 60
		}
		return m
	}
	sort.SliceStable(appts, func(i, j int) bool {
		if d := week.DaysBetween(appts[j].Date, appts[i].Date); d != 0 {
			return d < 0
		}
		return minutes(appts[i]) < minutes(appts[j])
	})
}
