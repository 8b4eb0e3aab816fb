package outbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
	"time"

	"github.com/medportal/timetable/libs/kafkax"
	otelx "github.com/medportal/timetable/libs/otel"
	"github.com/medportal/timetable/services/timetable-service/internal/model"
)

func TestNewAppointmentEvent_Reschedule(t *testing.T) {
	prev := model.Appointment{ID: "a1", DoctorID: "d0", PatientID: "p1", Date: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), Time: "09:00"}
	next := prev
	next.DoctorID = "d1"
	next.Date = time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	evt, err := NewAppointmentEvent(TopicAppointmentRescheduled, next, &prev)
	if err != nil {
		t.Fatalf("NewAppointmentEvent: %v", err)
	}
	if evt.AggregateID != "a1" || evt.EventType != TopicAppointmentRescheduled || evt.AggregateType != AggregateAppointment {
		t.Fatalf("unexpected envelope %+v", evt)
	}
	var p AppointmentPayload
	if err := json.Unmarshal(evt.Payload, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Date != "2025-01-14" || p.PreviousDate != "2025-01-06" || p.PreviousDoctorID != "d0" || p.DoctorID != "d1" {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestToMessage_CarriesMetaAndTrace(t *testing.T) {
	if _, err := otelx.Setup(context.Background(), otelx.Config{}); err != nil {
		t.Fatalf("otel setup: %v", err)
	}
	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msg := ToMessage(context.Background(), Record{
		EventID:     "evt-1",
		AggregateID: "a1",
		EventType:   TopicAppointmentBooked,
		Payload:     []byte(`{}`),
		Traceparent: parent,
	})
	if msg.Topic != TopicAppointmentBooked || string(msg.Key) != "a1" {
		t.Fatalf("unexpected message routing %s/%s", msg.Topic, msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != TopicAppointmentBooked {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if kafkax.HeaderValue(msg.Headers, "traceparent") != parent {
		t.Fatalf("trace context not propagated: %v", msg.Headers)
	}
}

func TestMigration_HasOutboxColumns(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sql := string(raw)
	start := strings.Index(sql, "CREATE TABLE IF NOT EXISTS outbox_events")
	if start < 0 {
		t.Fatal("outbox_events table missing from migration")
	}
	table := sql[start:]
	table = table[:strings.Index(table, ");")]

	for _, col := range []string{
		"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload",
		"traceparent", "tracestate", "attempts", "last_error", "created_at", "published_at",
	} {
		if !strings.Contains(table, "\n    "+col+" ") {
			t.Fatalf("outbox_events lacks column %q", col)
		}
	}
}

func TestTruncateError_KeepsRunesWhole(t *testing.T) {
	if got := truncateError("short", 16); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	msg := strings.Repeat("a", 9) + "é" + "tail"
	got := truncateError(msg, 10)
	if got != strings.Repeat("a", 9) {
		t.Fatalf("unexpected %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncated message is not valid UTF-8")
	}
}
