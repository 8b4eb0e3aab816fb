package model

import (
	"errors"
	"time"
)

var (
	ErrSlotTaken = errors.New("time slot already booked")
	ErrNotFound  = errors.New("appointment not found")
)

// Appointment is one scheduled meeting between a patient and a doctor.
// Date carries the calendar day only; Time is the raw time-of-day string as
// delivered by the source ("HH:MM", "HH:MM:SS" or "H:MM AM/PM").
type Appointment struct {
	ID        string
	DoctorID  string
	PatientID string
	Date      time.Time
	Time      string
}

// NewAppointment is the create request sent to the appointment directory.
type NewAppointment struct {
	PatientID string
	DoctorID  string
	Date      time.Time
	Time      string
}

// SlotRef identifies a (date, time) cell independent of any appointment.
type SlotRef struct {
	Date time.Time
	Time string
}
