package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/medportal/timetable/libs/auth"
	"github.com/medportal/timetable/libs/httpx"
	"github.com/medportal/timetable/services/timetable-service/internal/booking"
	"github.com/medportal/timetable/services/timetable-service/internal/directory"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/session"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

type TimetableHandler struct {
	sessions *session.Store
	dir      directory.Directory
	weeks    *directory.WeekLoader
	names    directory.PatientNamer
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewTimetableHandler wires the HTTP surface. names may be nil.
func NewTimetableHandler(sessions *session.Store, dir directory.Directory, weeks *directory.WeekLoader, names directory.PatientNamer, logger *slog.Logger) *TimetableHandler {
	return &TimetableHandler{
		sessions: sessions,
		dir:      dir,
		weeks:    weeks,
		names:    names,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Register mounts the routes on mux behind authn.
func (h *TimetableHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(fn))
	}
	const base = "/api/v1/timetable"
	handle("POST "+base+"/sessions", requireRole(h.CreateSession, auth.RolePatient))
	handle("GET "+base+"/sessions/{id}", requireRole(h.GetSession, auth.RolePatient))
	handle("DELETE "+base+"/sessions/{id}", requireRole(h.CloseSession, auth.RolePatient))
	handle("POST "+base+"/sessions/{id}/week", requireRole(h.NavigateWeek, auth.RolePatient))
	handle("POST "+base+"/sessions/{id}/select", requireRole(h.SelectSlot, auth.RolePatient))
	handle("POST "+base+"/sessions/{id}/confirm", requireRole(h.Confirm, auth.RolePatient))
	handle("POST "+base+"/sessions/{id}/cancel", requireRole(h.Cancel, auth.RolePatient))
	handle("GET "+base+"/doctors/{doctorID}/grid", requireRole(h.DoctorGrid, auth.RoleDoctor))
	handle("GET "+base+"/patients/me/appointments", requireRole(h.MyAppointments, auth.RolePatient))
	handle("PUT "+base+"/appointments/{id}", requireRole(h.Reschedule, auth.RolePatient, auth.RoleDoctor))
	handle("DELETE "+base+"/appointments/{id}", requireRole(h.DeleteAppointment, auth.RolePatient, auth.RoleDoctor))
}

type createSessionRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,max=128"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type weekRequest struct {
	Direction string `json:"direction" validate:"required,oneof=next previous current"`
}

type slotRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,max=16"`
}

type rescheduleRequest struct {
	DoctorID string `json:"doctor_id" validate:"omitempty,max=128"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string `json:"time" validate:"required,max=16"`
}

type appointmentItem struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type confirmResponse struct {
	Appointment appointmentItem  `json:"appointment"`
	Session     session.Snapshot `json:"session"`
}

func toItem(a model.Appointment) appointmentItem {
	return appointmentItem{ID: a.ID, DoctorID: a.DoctorID, PatientID: a.PatientID, Date: week.FormatDate(a.Date), Time: a.Time}
}

func (h *TimetableHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ownSession resolves {id} to a session opened by the caller. Sessions of
// other patients are reported as missing.
func (h *TimetableHandler) ownSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil || s.PatientID != callerOf(r).Subject {
		httpx.WriteError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func (h *TimetableHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	reference := h.now()
	if req.Date != "" {
		d, err := week.ParseDate(req.Date)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid date")
			return
		}
		reference = d
	}

	s := h.sessions.Create(r.Context(), callerOf(r).Subject, strings.TrimSpace(req.DoctorID), reference)
	// The first load is awaited so the response can carry the grid; a slow
	// backend yields a "loading" snapshot instead.
	_ = s.Await(r.Context())
	w.Header().Set("Location", r.URL.Path+"/"+s.ID)
	httpx.WriteJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *TimetableHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("refresh") == "1" {
		s.Refresh()
	}
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

func (h *TimetableHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownSession(w, r); !ok {
		return
	}
	h.sessions.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *TimetableHandler) NavigateWeek(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	var req weekRequest
	if !h.decode(w, r, &req) {
		return
	}
	delta := 0
	switch req.Direction {
	case "next":
		delta = 1
	case "previous":
		delta = -1
	}
	s.Navigate(delta, h.now())
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

func (h *TimetableHandler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	var req slotRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := week.ParseDate(req.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	if err := s.Select(date, req.Time); err != nil {
		h.writeSessionError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

func (h *TimetableHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	created, err := s.Confirm(r.Context())
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, confirmResponse{Appointment: toItem(created), Session: s.Snapshot()})
}

func (h *TimetableHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.ownSession(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		h.writeSessionError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

func (h *TimetableHandler) writeSessionError(w http.ResponseWriter, err error) {
	var submitErr *booking.SubmitError
	switch {
	case errors.Is(err, model.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &submitErr):
		httpx.WriteError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, session.ErrNotReady):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrOutsideWindow),
		errors.Is(err, session.ErrOffGrid),
		errors.Is(err, timetable.ErrMalformedTime):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("timetable request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
