package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/medportal/timetable/libs/auth"
	"github.com/medportal/timetable/libs/httpx"
	"github.com/medportal/timetable/services/timetable-service/internal/booking"
	"github.com/medportal/timetable/services/timetable-service/internal/directory"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/session"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

func (h *TimetableHandler) DoctorGrid(w http.ResponseWriter, r *http.Request) {
	doctorID := r.PathValue("doctorID")
	if doctorID != callerOf(r).Subject {
		httpx.WriteError(w, http.StatusForbidden, "forbidden")
		return
	}
	reference := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := week.ParseDate(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid date")
			return
		}
		reference = d
	}

	appts, err := h.weeks.Week(r.Context(), doctorID, week.MondayOf(reference))
	if err != nil {
		h.logger.Error("doctor week load failed", "err", err, "doctor_id", doctorID)
		httpx.WriteError(w, http.StatusBadGateway, "appointments unavailable")
		return
	}
	var names map[string]string
	if h.names != nil {
		names, err = h.names.PatientNames(r.Context())
		if err != nil {
			h.logger.Warn("patient names unavailable", "err", err)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, session.BuildDoctorGrid(doctorID, appts, reference, names))
}

func (h *TimetableHandler) MyAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := h.dir.AppointmentsByPatient(r.Context(), callerOf(r).Subject)
	if err != nil {
		h.logger.Error("patient appointments load failed", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "appointments unavailable")
		return
	}
	directory.SortChronologically(appts)
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// owned looks up appointment id among the caller's own appointments.
func (h *TimetableHandler) owned(ctx context.Context, claims *auth.Claims, id string) (model.Appointment, error) {
	var (
		appts []model.Appointment
		err   error
	)
	if claims.Role == auth.RoleDoctor {
		appts, err = h.dir.AppointmentsByDoctor(ctx, claims.Subject)
	} else {
		appts, err = h.dir.AppointmentsByPatient(ctx, claims.Subject)
	}
	if err != nil {
		return model.Appointment{}, err
	}
	for _, a := range appts {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, model.ErrNotFound
}

func (h *TimetableHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := callerOf(r)
	current, err := h.owned(r.Context(), claims, r.PathValue("id"))
	if err != nil {
		h.writeDirectoryError(w, err)
		return
	}

	date, err := week.ParseDate(req.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	if wd := date.Weekday(); wd < 1 || wd > 5 {
		httpx.WriteError(w, http.StatusBadRequest, "appointments are only held Monday to Friday")
		return
	}
	minutes, err := timetable.ParseClock(req.Time)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if timetable.SlotIndex(minutes) < 0 {
		httpx.WriteError(w, http.StatusBadRequest, session.ErrOffGrid.Error())
		return
	}

	next := current
	next.Date = date
	next.Time = timetable.FormatClock(minutes)
	if d := strings.TrimSpace(req.DoctorID); d != "" && claims.Role == auth.RolePatient {
		next.DoctorID = d
	}

	taken, err := h.weeks.Week(r.Context(), next.DoctorID, week.MondayOf(date))
	if err != nil {
		h.writeDirectoryError(w, err)
		return
	}
	others := make([]model.Appointment, 0, len(taken))
	for _, a := range taken {
		if a.ID != current.ID {
			others = append(others, a)
		}
	}
	if !booking.EffectiveAvailability(others, nil, date, next.Time) {
		httpx.WriteError(w, http.StatusConflict, model.ErrSlotTaken.Error())
		return
	}

	if err := h.dir.UpdateAppointment(r.Context(), next); err != nil {
		h.writeDirectoryError(w, err)
		return
	}
	h.changed(r.Context(), current)
	h.changed(r.Context(), next)
	httpx.WriteJSON(w, http.StatusOK, toItem(next))
}

func (h *TimetableHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	current, err := h.owned(r.Context(), callerOf(r), r.PathValue("id"))
	if err != nil {
		h.writeDirectoryError(w, err)
		return
	}
	if err := h.dir.DeleteAppointment(r.Context(), current.ID); err != nil {
		h.writeDirectoryError(w, err)
		return
	}
	h.changed(r.Context(), current)
	w.WriteHeader(http.StatusNoContent)
}

// changed drops the cached week of a and refreshes sessions showing it.
func (h *TimetableHandler) changed(ctx context.Context, a model.Appointment) {
	h.weeks.Invalidate(ctx, a.DoctorID, a.Date)
	h.sessions.RefreshDoctor(a.DoctorID, a.Date)
}

func (h *TimetableHandler) writeDirectoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("appointment directory failed", "err", err)
		httpx.WriteError(w, http.StatusBadGateway, "appointments unavailable")
	}
}
