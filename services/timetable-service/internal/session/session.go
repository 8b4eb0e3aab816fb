// Package session hosts one patient's view of one doctor's week: the
// displayed window, the last fetched appointment list and the booking
// reconciler.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/medportal/timetable/libs/otel"
	"github.com/medportal/timetable/services/timetable-service/internal/booking"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrNotReady       = errors.New("timetable is not loaded")
	ErrOutsideWindow  = errors.New("date is outside the displayed week")
	ErrOffGrid        = booking.ErrNotBookable
	ErrUnknownSession = errors.New("session not found")
)

// Weeks loads and invalidates one doctor's week of appointments.
type Weeks interface {
	Week(ctx context.Context, doctorID string, weekStart time.Time) ([]model.Appointment, error)
	Invalidate(ctx context.Context, doctorID string, date time.Time)
}

type fetchTicket struct {
	doctorID  string
	weekStart time.Time
	gen       uint64
	done      chan struct{}
}

type Session struct {
	ID        string
	PatientID string
	DoctorID  string

	weeks   Weeks
	creator booking.Creator
	logger  *slog.Logger
	// values carries request-scoped values (caller token, request id) for
	// background fetches; it is never cancelled.
	values context.Context

	mu         sync.Mutex
	window     week.Window
	loadedWeek time.Time
	hasData    bool
	status     Status
	fetchErr   error
	gen        uint64
	pending    chan struct{}
	rec        *booking.Reconciler
	lastSeen   time.Time
}

func newSession(ctx context.Context, id, patientID, doctorID string, reference time.Time, weeks Weeks, creator booking.Creator, logger *slog.Logger) *Session {
	return &Session{
		ID:        id,
		PatientID: patientID,
		DoctorID:  doctorID,
		weeks:     weeks,
		creator:   creator,
		logger:    logger.With("session_id", id, "doctor_id", doctorID),
		values:    context.WithoutCancel(ctx),
		window:    week.WindowOf(reference),
		status:    StatusLoading,
		rec:       booking.NewReconciler(patientID, doctorID, creator),
	}
}

// Refresh starts a background fetch of the displayed week. Stale data keeps
// being served until it resolves.
func (s *Session) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startFetchLocked()
}

func (s *Session) startFetchLocked() {
	s.gen++
	t := fetchTicket{
		doctorID:  s.DoctorID,
		weekStart: s.window.Start,
		gen:       s.gen,
		done:      make(chan struct{}),
	}
	s.pending = t.done
	if !s.hasData {
		s.status = StatusLoading
	}
	go s.fetch(t)
}

func (s *Session) fetch(t fetchTicket) {
	defer close(t.done)
	ctx, span := otelx.Tracer().Start(s.values, "timetable.fetch_week",
		trace.WithAttributes(
			attribute.String("doctor_id", t.doctorID),
			attribute.String("week_start", week.FormatDate(t.weekStart)),
		),
	)
	defer span.End()

	appts, err := s.weeks.Week(ctx, t.doctorID, t.weekStart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch")
	}
	s.apply(t, appts, err)
}

func (s *Session) apply(t fetchTicket, appts []model.Appointment, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.gen != s.gen || !t.weekStart.Equal(s.window.Start) {
		s.logger.Debug("stale week fetch discarded", "week_start", week.FormatDate(t.weekStart), "gen", t.gen)
		return
	}
	if err != nil {
		s.logger.Warn("week fetch failed", "err", err, "week_start", week.FormatDate(t.weekStart))
		s.status = StatusFailed
		s.fetchErr = err
		return
	}
	s.rec.Refresh(appts)
	s.loadedWeek = t.weekStart
	s.hasData = true
	s.status = StatusReady
	s.fetchErr = nil
}

// Await blocks until the most recent fetch has resolved or ctx is done.
func (s *Session) Await(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return nil
	}
	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate moves the displayed week by delta weeks; 0 returns to the current
// week. Booking state is left alone.
func (s *Session) Navigate(delta int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delta == 0 {
		s.window = week.WindowOf(now)
	} else {
		s.window = week.Window{Start: week.ShiftWeek(s.window.Start, delta)}
	}
	s.startFetchLocked()
}

// Select opens the confirmation step for a cell of the displayed week.
func (s *Session) Select(date time.Time, clock string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusReady || !s.loadedWeek.Equal(s.window.Start) {
		return ErrNotReady
	}
	if !s.window.Contains(date) {
		return ErrOutsideWindow
	}
	return s.rec.SelectSlot(date, clock)
}

func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Cancel()
}

// Confirm submits the pending selection. The create request runs outside the
// session lock; while it is in flight the reconciler rejects other changes.
func (s *Session) Confirm(ctx context.Context) (model.Appointment, error) {
	s.mu.Lock()
	req, err := s.rec.BeginSubmit()
	s.mu.Unlock()
	if err != nil {
		return model.Appointment{}, err
	}

	ctx, span := otelx.Tracer().Start(ctx, "timetable.confirm",
		trace.WithAttributes(
			attribute.String("doctor_id", req.DoctorID),
			attribute.String("date", week.FormatDate(req.Date)),
			attribute.String("time", req.Time),
		),
	)
	defer span.End()

	var created model.Appointment
	var createErr error
	if s.creator == nil {
		createErr = errors.New("no appointment creator configured")
	} else {
		created, createErr = s.creator.CreateAppointment(ctx, req)
	}

	s.mu.Lock()
	err = s.rec.CompleteSubmit(created, createErr)
	s.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm")
		s.logger.Warn("booking failed", "err", err, "date", week.FormatDate(req.Date), "time", req.Time)
		return model.Appointment{}, err
	}

	s.logger.Info("appointment booked", "appointment_id", created.ID, "date", week.FormatDate(req.Date), "time", req.Time)
	s.weeks.Invalidate(ctx, s.DoctorID, req.Date)
	s.Refresh()
	return created, nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) shows(date time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := week.DaysBetween(s.window.Start, date)
	return n >= 0 && n < 7
}
