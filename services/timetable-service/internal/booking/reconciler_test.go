package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
)

type fakeCreator struct {
	err   error
	calls []model.NewAppointment
}

func (f *fakeCreator) CreateAppointment(_ context.Context, req model.NewAppointment) (model.Appointment, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return model.Appointment{}, f.err
	}
	return model.Appointment{ID: "new-1", PatientID: req.PatientID, DoctorID: req.DoctorID, Date: req.Date, Time: req.Time}, nil
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestEffectiveAvailability(t *testing.T) {
	server := []model.Appointment{{ID: "a", Date: date("2025-01-06"), Time: "09:00:00"}}
	marker := &model.SlotRef{Date: date("2025-01-07"), Time: "10:00"}

	if EffectiveAvailability(server, marker, date("2025-01-06"), "9:00 AM") {
		t.Fatal("server appointment must block its slot")
	}
	if EffectiveAvailability(server, marker, date("2025-01-07"), "10:00") {
		t.Fatal("marker must block its slot")
	}
	if !EffectiveAvailability(server, marker, date("2025-01-07"), "10:30") {
		t.Fatal("free slot must be available")
	}
	if !EffectiveAvailability(nil, nil, date("2025-01-06"), "09:00") {
		t.Fatal("empty state must be available")
	}
	if EffectiveAvailability(nil, nil, date("2025-01-06"), "later") {
		t.Fatal("malformed clock must not be available")
	}
}

func TestReconciler_OptimisticBooking(t *testing.T) {
	creator := &fakeCreator{}
	r := NewReconciler("p1", "d1", creator)
	r.Refresh(nil)

	if err := r.SelectSlot(date("2025-01-07"), "10:00"); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	if r.State() != StateConfirming {
		t.Fatalf("expected confirming, got %s", r.State())
	}
	if _, err := r.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}
	if r.IsAvailable(date("2025-01-07"), "10:00") {
		t.Fatal("booked slot must be unavailable before refetch")
	}
	if _, ok := r.Selected(); ok {
		t.Fatal("selection must be cleared")
	}
	if len(creator.calls) != 1 || creator.calls[0].PatientID != "p1" || creator.calls[0].DoctorID != "d1" {
		t.Fatalf("unexpected create calls: %+v", creator.calls)
	}
}

func TestReconciler_FailedSubmissionKeepsSlotBookable(t *testing.T) {
	creator := &fakeCreator{err: errors.New("backend down")}
	r := NewReconciler("p1", "d1", creator)

	if err := r.SelectSlot(date("2025-01-07"), "10:00"); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	_, err := r.Confirm(context.Background())
	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected SubmitError, got %v", err)
	}
	if !r.IsAvailable(date("2025-01-07"), "10:00") {
		t.Fatal("slot must stay available after a failed submission")
	}
	if _, ok := r.Marker(); ok {
		t.Fatal("marker must not be set on failure")
	}
	if r.State() != StateConfirming {
		t.Fatalf("expected confirming for retry, got %s", r.State())
	}
	if r.LastError() == nil {
		t.Fatal("failure must be surfaced")
	}

	creator.err = nil
	if _, err := r.Confirm(context.Background()); err != nil {
		t.Fatalf("retry Confirm: %v", err)
	}
	if r.IsAvailable(date("2025-01-07"), "10:00") {
		t.Fatal("slot must be unavailable after a successful retry")
	}
}

func TestReconciler_SlotTakenSurfacesSentinel(t *testing.T) {
	r := NewReconciler("p1", "d1", &fakeCreator{err: model.ErrSlotTaken})
	if err := r.SelectSlot(date("2025-01-08"), "11:00"); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	if _, err := r.Confirm(context.Background()); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestReconciler_CannotSelectOccupiedSlot(t *testing.T) {
	r := NewReconciler("p1", "d1", &fakeCreator{})
	r.Refresh([]model.Appointment{{ID: "a", Date: date("2025-01-06"), Time: "09:00"}})

	if err := r.SelectSlot(date("2025-01-06"), "09:00"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}
}

func TestReconciler_Transitions(t *testing.T) {
	r := NewReconciler("p1", "d1", &fakeCreator{})

	if err := r.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel from idle: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := r.Confirm(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("confirm from idle: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.SelectSlot(date("2025-01-06"), "08:00"); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	if err := r.SelectSlot(date("2025-01-06"), "08:30"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second select: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after cancel, got %s", r.State())
	}
	if _, ok := r.Selected(); ok {
		t.Fatal("cancel must discard the selection")
	}
	if !r.IsAvailable(date("2025-01-06"), "08:00") {
		t.Fatal("cancelled slot must be available")
	}
}

func TestReconciler_SubmittingBlocksOtherOperations(t *testing.T) {
	r := NewReconciler("p1", "d1", nil)
	if err := r.SelectSlot(date("2025-01-06"), "08:00"); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	if _, err := r.BeginSubmit(); err != nil {
		t.Fatalf("BeginSubmit: %v", err)
	}
	if err := r.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel while submitting: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.SelectSlot(date("2025-01-06"), "09:00"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("select while submitting: expected ErrInvalidTransition, got %v", err)
	}
	if err := r.CompleteSubmit(model.Appointment{ID: "x"}, nil); err != nil {
		t.Fatalf("CompleteSubmit: %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}
}

func TestReconciler_RefreshClearsMarkerOnceConfirmed(t *testing.T) {
	r := NewReconciler("p1", "d1", &fakeCreator{})
	if err := r.SelectSlot(date("2025-01-07"), "10:00"); err != nil {
		t.Fatalf("SelectSlot: %v", err)
	}
	if _, err := r.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	// A refetch that has not caught up yet keeps the marker.
	r.Refresh([]model.Appointment{{ID: "other", Date: date("2025-01-07"), Time: "11:00"}})
	if _, ok := r.Marker(); !ok {
		t.Fatal("marker must survive a stale refetch")
	}
	if r.IsAvailable(date("2025-01-07"), "10:00") {
		t.Fatal("slot must stay masked by the marker")
	}

	r.Refresh([]model.Appointment{{ID: "new-1", Date: date("2025-01-07"), Time: "10:00:00"}})
	if _, ok := r.Marker(); ok {
		t.Fatal("marker must be cleared once the server list includes the booking")
	}
	if r.IsAvailable(date("2025-01-07"), "10:00") {
		t.Fatal("slot must be unavailable from the server list")
	}
}

func TestReconciler_IsAvailableIsPure(t *testing.T) {
	r := NewReconciler("p1", "d1", nil)
	r.Refresh([]model.Appointment{{ID: "a", Date: date("2025-01-06"), Time: "09:00"}})
	for i := 0; i < 3; i++ {
		if r.IsAvailable(date("2025-01-06"), "09:00") {
			t.Fatal("occupied slot reported available")
		}
		if !r.IsAvailable(date("2025-01-06"), "09:30") {
			t.Fatal("free slot reported unavailable")
		}
	}
	if r.State() != StateIdle {
		t.Fatalf("IsAvailable must not change state, got %s", r.State())
	}
}

func TestReconciler_RejectsWeekendAndOffGridSlots(t *testing.T) {
	creator := &fakeCreator{}
	r := NewReconciler("p1", "d1", creator)
	cases := []struct {
		name  string
		date  string
		clock string
	}{
		{"saturday", "2025-01-11", "09:00"},
		{"sunday", "2025-01-12", "09:00"},
		{"before opening", "2025-01-07", "07:30"},
		{"after last slot", "2025-01-07", "18:00"},
		{"between slots", "2025-01-07", "10:15"},
	}
	for _, tc := range cases {
		if err := r.SelectSlot(date(tc.date), tc.clock); !errors.Is(err, ErrNotBookable) {
			t.Fatalf("%s: expected ErrNotBookable, got %v", tc.name, err)
		}
		if r.State() != StateIdle {
			t.Fatalf("%s: expected idle, got %s", tc.name, r.State())
		}
	}
	if _, err := r.Confirm(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected nothing to confirm, got %v", err)
	}
	if len(creator.calls) != 0 {
		t.Fatalf("no appointment may be created: %+v", creator.calls)
	}
	if err := r.SelectSlot(date("2025-01-10"), "5:30 PM"); err != nil {
		t.Fatalf("last Friday slot: %v", err)
	}
}
