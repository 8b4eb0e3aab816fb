package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

type State int

const (
	StateIdle State = iota
	StateSlotSelected
	StateConfirming
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSlotSelected:
		return "slot_selected"
	case StateConfirming:
		return "confirming"
	case StateSubmitting:
		return "submitting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidTransition = errors.New("invalid booking state transition")
	ErrSlotUnavailable   = errors.New("slot is not available")
	ErrNotBookable       = errors.New("not a bookable weekday slot")
)

// TransitionError reports an operation attempted from the wrong state.
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// SubmitError wraps a failed create request for the selected slot.
type SubmitError struct {
	Slot model.SlotRef
	Err  error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("booking %s %s failed: %v", week.FormatDate(e.Slot.Date), e.Slot.Time, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Creator persists a new appointment. Implementations return model.ErrSlotTaken
// when the backend rejects an occupied slot.
type Creator interface {
	CreateAppointment(ctx context.Context, req model.NewAppointment) (model.Appointment, error)
}

// Reconciler is the booking state machine for one patient looking at one
// doctor's timetable. It is not safe for concurrent use.
type Reconciler struct {
	patientID string
	doctorID  string
	creator   Creator

	state        State
	appointments []model.Appointment
	selected     *model.SlotRef
	marker       *model.SlotRef
	lastErr      error
}

func NewReconciler(patientID, doctorID string, creator Creator) *Reconciler {
	return &Reconciler{patientID: patientID, doctorID: doctorID, creator: creator}
}

func (r *Reconciler) State() State { return r.state }

func (r *Reconciler) LastError() error { return r.lastErr }

func (r *Reconciler) Appointments() []model.Appointment { return r.appointments }

func (r *Reconciler) Selected() (model.SlotRef, bool) {
	if r.selected == nil {
		return model.SlotRef{}, false
	}
	return *r.selected, true
}

// Marker returns the optimistic "newly booked" slot, if any.
func (r *Reconciler) Marker() (model.SlotRef, bool) {
	if r.marker == nil {
		return model.SlotRef{}, false
	}
	return *r.marker, true
}

// Refresh installs a freshly fetched authoritative list. The marker is dropped
// once the list itself contains the booked slot.
func (r *Reconciler) Refresh(appointments []model.Appointment) {
	r.appointments = appointments
	if r.marker == nil {
		return
	}
	for _, a := range appointments {
		if SameSlot(model.SlotRef{Date: a.Date, Time: a.Time}, *r.marker) {
			r.marker = nil
			return
		}
	}
}

func (r *Reconciler) IsAvailable(date time.Time, clock string) bool {
	return EffectiveAvailability(r.appointments, r.marker, date, clock)
}

// SelectSlot picks an available cell and opens the confirmation step. Only
// grid slots on Monday to Friday can be selected.
func (r *Reconciler) SelectSlot(date time.Time, clock string) error {
	if r.state != StateIdle {
		return &TransitionError{Op: "select", From: r.state}
	}
	minutes, err := timetable.ParseClock(clock)
	if err != nil {
		return err
	}
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday || timetable.SlotIndex(minutes) < 0 {
		return ErrNotBookable
	}
	canonical := timetable.FormatClock(minutes)
	if !r.IsAvailable(date, canonical) {
		return ErrSlotUnavailable
	}
	r.selected = &model.SlotRef{Date: week.Normalize(date), Time: canonical}
	r.state = StateSlotSelected
	r.lastErr = nil
	// The confirmation prompt opens immediately after selection.
	r.state = StateConfirming
	return nil
}

func (r *Reconciler) Cancel() error {
	if r.state != StateConfirming {
		return &TransitionError{Op: "cancel", From: r.state}
	}
	r.selected = nil
	r.lastErr = nil
	r.state = StateIdle
	return nil
}

// BeginSubmit moves confirming -> submitting and returns the create request.
// Callers that perform the request themselves must finish with CompleteSubmit.
func (r *Reconciler) BeginSubmit() (model.NewAppointment, error) {
	if r.state != StateConfirming || r.selected == nil {
		return model.NewAppointment{}, &TransitionError{Op: "confirm", From: r.state}
	}
	r.state = StateSubmitting
	return model.NewAppointment{
		PatientID: r.patientID,
		DoctorID:  r.doctorID,
		Date:      r.selected.Date,
		Time:      r.selected.Time,
	}, nil
}

// CompleteSubmit applies the outcome of the create request started by BeginSubmit.
// On success the marker is set and the selection cleared; on failure the
// selection is kept for a retry and the marker is left alone.
func (r *Reconciler) CompleteSubmit(created model.Appointment, err error) error {
	if r.state != StateSubmitting || r.selected == nil {
		return &TransitionError{Op: "complete", From: r.state}
	}
	slot := *r.selected
	if err != nil {
		r.lastErr = &SubmitError{Slot: slot, Err: err}
		r.state = StateConfirming
		return r.lastErr
	}
	r.marker = &slot
	r.selected = nil
	r.lastErr = nil
	r.state = StateIdle
	return nil
}

// Confirm submits the pending selection through the configured Creator.
func (r *Reconciler) Confirm(ctx context.Context) (model.Appointment, error) {
	req, err := r.BeginSubmit()
	if err != nil {
		return model.Appointment{}, err
	}
	if r.creator == nil {
		return model.Appointment{}, r.CompleteSubmit(model.Appointment{}, errors.New("no appointment creator configured"))
	}
	created, err := r.creator.CreateAppointment(ctx, req)
	if err := r.CompleteSubmit(created, err); err != nil {
		return model.Appointment{}, err
	}
	return created, nil
}
