package timetable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	SlotCount       = 20
	FirstSlotMinute = 8 * 60
	SlotStepMinutes = 30
)

var ErrMalformedTime = errors.New("malformed time of day")

// Slot is one fixed 30-minute row of the weekly grid.
type Slot struct {
	Index   int
	Minutes int
	Label   string
}

var slots = func() [SlotCount]Slot {
	var out [SlotCount]Slot
	for i := range out {
		m := FirstSlotMinute + i*SlotStepMinutes
		out[i] = Slot{Index: i, Minutes: m, Label: FormatClock(m)}
	}
	return out
}()

// Slots returns the fixed slot table, 08:00 through 17:30.
func Slots() []Slot {
	out := make([]Slot, SlotCount)
	copy(out, slots[:])
	return out
}

// SlotIndex returns the slot starting exactly at minutes, or -1.
func SlotIndex(minutes int) int {
	if minutes < FirstSlotMinute || (minutes-FirstSlotMinute)%SlotStepMinutes != 0 {
		return -1
	}
	i := (minutes - FirstSlotMinute) / SlotStepMinutes
	if i >= SlotCount {
		return -1
	}
	return i
}

// ParseClock converts "HH:MM", "HH:MM:SS" or "H:MM AM/PM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, ErrMalformedTime
	}

	period := ""
	switch {
	case strings.HasSuffix(raw, "AM"):
		period = "AM"
	case strings.HasSuffix(raw, "PM"):
		period = "PM"
	}
	if period != "" {
		raw = strings.TrimSpace(strings.TrimSuffix(raw, period))
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	if len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	if len(parts) == 3 {
		sec := parts[2]
		if i := strings.IndexByte(sec, '.'); i >= 0 {
			sec = sec[:i]
		}
		if n, err := strconv.Atoi(sec); err != nil || n < 0 || n > 59 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
	}

	switch period {
	case "":
		if hour < 0 || hour > 23 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
	default:
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
		}
		if period == "PM" && hour != 12 {
			hour += 12
		} else if period == "AM" && hour == 12 {
			hour = 0
		}
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as 24-hour "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// CanonicalClock normalizes any accepted time representation to "HH:MM".
func CanonicalClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}
