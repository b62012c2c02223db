package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within a day at minute granularity.
//
// The zero value is InvalidTime. An invalid value behaves like NaN: it is
// never equal to, before or after any other value, including itself.
type TimeOfDay struct {
	hours   int
	minutes int
	valid   bool
}

// InvalidTime is the sentinel for a time that could not be determined.
var InvalidTime = TimeOfDay{}

// NewTimeOfDay returns h:m, or InvalidTime if either component is out of range.
func NewTimeOfDay(h, m int) TimeOfDay {
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return InvalidTime
	}
	return TimeOfDay{hours: h, minutes: m, valid: true}
}

// TimeOfDayOf extracts the wall-clock hour and minute of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	if t.IsZero() {
		return InvalidTime
	}
	return NewTimeOfDay(t.Hour(), t.Minute())
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return InvalidTime, fmt.Errorf("time of day %q: missing ':'", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return InvalidTime, fmt.Errorf("time of day %q: %w", s, err)
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return InvalidTime, fmt.Errorf("time of day %q: %w", s, err)
	}
	t := NewTimeOfDay(h, m)
	if !t.Valid() {
		return InvalidTime, fmt.Errorf("time of day %q: out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) Valid() bool { return t.valid }

// Hours returns the hour component, or -1 for InvalidTime.
func (t TimeOfDay) Hours() int {
	if !t.valid {
		return -1
	}
	return t.hours
}

// Minutes returns the minute component, or -1 for InvalidTime.
func (t TimeOfDay) Minutes() int {
	if !t.valid {
		return -1
	}
	return t.minutes
}

func (t TimeOfDay) Equal(o TimeOfDay) bool {
	return t.valid && o.valid && t.hours == o.hours && t.minutes == o.minutes
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Compare(o) < 0
}

func (t TimeOfDay) After(o TimeOfDay) bool {
	return t.Compare(o) > 0
}

// Compare orders by (hours, minutes). Any comparison involving InvalidTime
// yields 0.
func (t TimeOfDay) Compare(o TimeOfDay) int {
	if !t.valid || !o.valid {
		return 0
	}
	if t.hours != o.hours {
		return cmpInt(t.hours, o.hours)
	}
	return cmpInt(t.minutes, o.minutes)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t TimeOfDay) String() string {
	if !t.valid {
		return "NaN"
	}
	return fmt.Sprintf("%02d:%02d", t.hours, t.minutes)
}

// MarshalJSON encodes as "HH:MM", or null for InvalidTime.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	if !t.valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = InvalidTime
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
