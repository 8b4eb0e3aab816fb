package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/medportal/timetable/libs/kafkax"
	"github.com/medportal/timetable/services/timetable-service/internal/inbox"
	"github.com/segmentio/kafka-go"
)

type sliceReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *sliceReader) Close() error { return nil }

func TestConsumer_SkipsDuplicates(t *testing.T) {
	msg := kafka.Message{
		Topic:   "timetable.appointment.booked.v1",
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: "e1", EventType: "timetable.appointment.booked.v1"}),
	}
	other := kafka.Message{Topic: "timetable.appointment.booked.v1", Key: []byte("e2")}
	reader := &sliceReader{msgs: []kafka.Message{msg, msg, other}}

	var mu sync.Mutex
	var handled []string
	done := make(chan struct{})
	c := NewWithReader(reader, slog.New(slog.NewTextHandler(io.Discard, nil)), inbox.NewMemoryRecorder(10),
		func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			handled = append(handled, kafkax.ExtractEventMeta(m).EventID)
			if len(handled) == 2 {
				close(done)
			}
			return errors.New("handler errors are logged, not fatal")
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 || handled[0] != "e1" || handled[1] != "e2" {
		t.Fatalf("unexpected handled ids %v", handled)
	}
}

type recordingTargets struct {
	invalidated []string
	refreshed   []string
}

func (r *recordingTargets) Invalidate(_ context.Context, doctorID string, date time.Time) {
	r.invalidated = append(r.invalidated, doctorID+"@"+date.Format("2006-01-02"))
}

func (r *recordingTargets) RefreshDoctor(doctorID string, date time.Time) int {
	r.refreshed = append(r.refreshed, doctorID+"@"+date.Format("2006-01-02"))
	return 1
}

func TestInvalidateWeeks(t *testing.T) {
	targets := &recordingTargets{}
	h := InvalidateWeeks(targets, targets, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	booked := kafka.Message{Value: []byte(`{"appointment_id":"a1","doctor_id":"d1","date":"2025-01-07","time":"10:00"}`)}
	if err := h(ctx, booked); err != nil {
		t.Fatalf("booked: %v", err)
	}
	moved := kafka.Message{Value: []byte(`{"appointment_id":"a1","doctor_id":"d2","date":"2025-01-15","time":"10:00","previous_doctor_id":"d1","previous_date":"2025-01-07"}`)}
	if err := h(ctx, moved); err != nil {
		t.Fatalf("rescheduled: %v", err)
	}
	if err := h(ctx, kafka.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("malformed payload must be skipped, got %v", err)
	}

	want := []string{"d1@2025-01-07", "d2@2025-01-15", "d1@2025-01-07"}
	if len(targets.invalidated) != len(want) {
		t.Fatalf("unexpected invalidations %v", targets.invalidated)
	}
	for i := range want {
		if targets.invalidated[i] != want[i] || targets.refreshed[i] != want[i] {
			t.Fatalf("call %d: invalidated %v refreshed %v", i, targets.invalidated, targets.refreshed)
		}
	}
}
