package outbox

import (
	"encoding/json"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
)

// Topics published by the timetable service. The Kafka topic equals EventType.
const (
	TopicAppointmentBooked      = "timetable.appointment.booked.v1"
	TopicAppointmentCancelled   = "timetable.appointment.cancelled.v1"
	TopicAppointmentRescheduled = "timetable.appointment.rescheduled.v1"
)

const AggregateAppointment = "appointment"

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the JSON body of every appointment event. Previous*
// fields are set on reschedules only.
type AppointmentPayload struct {
	AppointmentID    string    `json:"appointment_id"`
	DoctorID         string    `json:"doctor_id"`
	PatientID        string    `json:"patient_id"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	PreviousDoctorID string    `json:"previous_doctor_id,omitempty"`
	PreviousDate     string    `json:"previous_date,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func NewAppointmentEvent(eventType string, appt model.Appointment, previous *model.Appointment) (Event, error) {
	p := AppointmentPayload{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Date:          week.FormatDate(appt.Date),
		Time:          appt.Time,
		OccurredAt:    time.Now().UTC(),
	}
	if previous != nil {
		p.PreviousDoctorID = previous.DoctorID
		p.PreviousDate = week.FormatDate(previous.Date)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
