package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/outbox"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
	"github.com/segmentio/kafka-go"
)

// WeekInvalidator drops a doctor's cached week.
type WeekInvalidator interface {
	Invalidate(ctx context.Context, doctorID string, date time.Time)
}

// SessionRefresher refetches open sessions showing a doctor's week.
type SessionRefresher interface {
	RefreshDoctor(doctorID string, date time.Time) int
}

// InvalidateWeeks handles appointment events by invalidating the affected
// weeks and refreshing the sessions that show them. Malformed payloads are
// logged and skipped.
func InvalidateWeeks(weeks WeekInvalidator, sessions SessionRefresher, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var p outbox.AppointmentPayload
		if err := json.Unmarshal(msg.Value, &p); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		touch := func(doctorID, rawDate string) {
			if doctorID == "" || rawDate == "" {
				return
			}
			d, err := week.ParseDate(rawDate)
			if err != nil {
				logger.Warn("event date not parseable", "date", rawDate, "topic", msg.Topic)
				return
			}
			weeks.Invalidate(ctx, doctorID, d)
			if n := sessions.RefreshDoctor(doctorID, d); n > 0 {
				logger.Debug("sessions refreshed", "doctor_id", doctorID, "count", n)
			}
		}
		if p.DoctorID == "" || p.Date == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		touch(p.DoctorID, p.Date)
		if p.PreviousDate != "" {
			prevDoctor := p.PreviousDoctorID
			if prevDoctor == "" {
				prevDoctor = p.DoctorID
			}
			touch(prevDoctor, p.PreviousDate)
		}
		return nil
	}
}
