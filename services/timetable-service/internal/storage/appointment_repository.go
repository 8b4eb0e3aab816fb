package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/medportal/timetable/libs/db"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
	"github.com/medportal/timetable/services/timetable-service/internal/outbox"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
)

// AppointmentRepository is the Postgres appointment backend. Every write
// records its outbox event in the same transaction.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id::text, doctor_id, patient_id, appt_date, slot_minutes`

func scanAppointment(row pgx.CollectableRow) (model.Appointment, error) {
	var (
		a       model.Appointment
		minutes int
	)
	if err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.Date, &minutes); err != nil {
		return model.Appointment{}, err
	}
	a.Date = civil(a.Date)
	a.Time = timetable.FormatClock(minutes)
	return a, nil
}

func (r *AppointmentRepository) AppointmentsByDoctor(ctx context.Context, doctorID string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY appt_date, slot_minutes
	`, doctorID)
}

func (r *AppointmentRepository) AppointmentsByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appt_date, slot_minutes
	`, patientID)
}

// AppointmentsInRange lists one doctor's appointments with from <= date < to.
func (r *AppointmentRepository) AppointmentsInRange(ctx context.Context, doctorID string, from, to time.Time) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appt_date >= $2 AND appt_date < $3
		ORDER BY appt_date, slot_minutes
	`, doctorID, civil(from), civil(to))
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

func (r *AppointmentRepository) CreateAppointment(ctx context.Context, req model.NewAppointment) (model.Appointment, error) {
	minutes, err := timetable.ParseClock(req.Time)
	if err != nil {
		return model.Appointment{}, err
	}
	var created model.Appointment
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			INSERT INTO appointments (doctor_id, patient_id, appt_date, slot_minutes)
			VALUES ($1, $2, $3, $4)
			RETURNING `+appointmentColumns,
			req.DoctorID, req.PatientID, civil(req.Date), minutes)
		if err != nil {
			return err
		}
		created, err = pgx.CollectExactlyOneRow(rows, scanAppointment)
		if err != nil {
			return err
		}
		return r.emit(ctx, tx, outbox.TopicAppointmentBooked, created, nil)
	})
	if err != nil {
		return model.Appointment{}, mapErr(err)
	}
	return created, nil
}

// UpdateAppointment moves an existing appointment to appt's doctor, date and time.
func (r *AppointmentRepository) UpdateAppointment(ctx context.Context, appt model.Appointment) error {
	minutes, err := timetable.ParseClock(appt.Time)
	if err != nil {
		return err
	}
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id::text = $1
			FOR UPDATE
		`, appt.ID)
		if err != nil {
			return err
		}
		previous, err := pgx.CollectExactlyOneRow(rows, scanAppointment)
		if err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `
			UPDATE appointments
			SET doctor_id = $2, patient_id = $3, appt_date = $4, slot_minutes = $5, updated_at = now()
			WHERE id::text = $1
			RETURNING `+appointmentColumns,
			appt.ID, appt.DoctorID, appt.PatientID, civil(appt.Date), minutes)
		if err != nil {
			return err
		}
		updated, err := pgx.CollectExactlyOneRow(rows, scanAppointment)
		if err != nil {
			return err
		}
		return r.emit(ctx, tx, outbox.TopicAppointmentRescheduled, updated, &previous)
	})
	return mapErr(err)
}

func (r *AppointmentRepository) DeleteAppointment(ctx context.Context, id string) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			DELETE FROM appointments
			WHERE id::text = $1
			RETURNING `+appointmentColumns, id)
		if err != nil {
			return err
		}
		deleted, err := pgx.CollectExactlyOneRow(rows, scanAppointment)
		if err != nil {
			return err
		}
		return r.emit(ctx, tx, outbox.TopicAppointmentCancelled, deleted, nil)
	})
	return mapErr(err)
}

// PatientNames maps patient id to display name from the patients table.
func (r *AppointmentRepository) PatientNames(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, first_name || ' ' || last_name FROM patients`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (r *AppointmentRepository) emit(ctx context.Context, tx pgx.Tx, topic string, appt model.Appointment, previous *model.Appointment) error {
	if r.outbox == nil {
		return nil
	}
	evt, err := outbox.NewAppointmentEvent(topic, appt, previous)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return model.ErrSlotTaken
	case IsNotFound(err):
		return model.ErrNotFound
	default:
		return err
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
