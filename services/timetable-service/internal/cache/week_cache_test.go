package cache

import (
	"context"
	"testing"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/model"
)

func TestMemoryWeekCache_RoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryWeekCache(time.Minute)
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	wednesday := monday.AddDate(0, 0, 2)

	appts := []model.Appointment{{ID: "a1", DoctorID: "d1", PatientID: "p1", Date: wednesday, Time: "10:00"}}
	if err := c.Set(ctx, "d1", monday, appts); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Any day of the week resolves to the same key.
	got, ok, err := c.Get(ctx, "d1", wednesday)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].ID != "a1" || !got[0].Date.Equal(wednesday) || got[0].Time != "10:00" {
		t.Fatalf("unexpected cached value: %+v", got)
	}

	if _, ok, _ := c.Get(ctx, "d2", monday); ok {
		t.Fatal("expected miss for another doctor")
	}
	if _, ok, _ := c.Get(ctx, "d1", monday.AddDate(0, 0, 7)); ok {
		t.Fatal("expected miss for another week")
	}

	if err := c.Invalidate(ctx, "d1", monday); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "d1", monday); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestMemoryWeekCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryWeekCache(time.Minute)
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	if err := c.Set(ctx, "d1", monday, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "d1", monday); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "d1", monday); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestRedisWeekCache_KeyUsesMonday(t *testing.T) {
	c := NewRedisWeekCache(nil, 0, "")
	friday := time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC)
	if got := c.key("d1", friday); got != "timetable:week:d1:2025-01-06" {
		t.Fatalf("unexpected key %q", got)
	}
}
