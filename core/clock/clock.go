// Package clock implements minute-of-day arithmetic over a 24 hour clock,
// including daily windows that wrap past midnight.
package clock

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of the clock cycle.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall clock time with minute resolution.
// It encodes as "HH:MM" in JSON and YAML.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates hour and minute.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	t := TimeOfDay{Hour: hour, Minute: minute}
	return t, t.Validate()
}

// FromMinutes converts a minute offset to a TimeOfDay, wrapping modulo one day.
func FromMinutes(m int) TimeOfDay {
	m = Normalize(m)
	return TimeOfDay{Hour: m / 60, Minute: m % 60}
}

// ParseTimeOfDay parses "HH:MM" (or "H:MM").
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	return NewTimeOfDay(hour, minute)
}

// Validate checks the hour and minute ranges.
func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", t.Minute)
	}
	return nil
}

// Minutes returns the minute of day.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// IsMidnight reports whether t is 00:00, used as the "disabled" sentinel for
// ready-by deadlines.
func (t TimeOfDay) IsMidnight() bool { return t.Hour == 0 && t.Minute == 0 }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// MarshalText encodes t as HH:MM.
func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes HH:MM.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MinuteOfDay returns the local minute of day of ts.
func MinuteOfDay(ts time.Time) int { return ts.Hour()*60 + ts.Minute() }

// Normalize maps any minute offset into [0, MinutesPerDay).
func Normalize(m int) int {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return m
}

// NormalizeFloat is Normalize for fractional minutes.
func NormalizeFloat(m float64) float64 {
	m = math.Mod(m, MinutesPerDay)
	if m < 0 {
		m += MinutesPerDay
	}
	return m
}

// FormatMinute renders a minute offset as HH:MM, wrapping past midnight.
func FormatMinute(m float64) string {
	return FromMinutes(int(math.Floor(NormalizeFloat(m)))).String()
}

// Window is a daily interval [Start, End). Start >= End means the window
// crosses midnight; Start == End covers the whole day.
type Window struct {
	Start TimeOfDay `json:"start" yaml:"start"`
	End   TimeOfDay `json:"end" yaml:"end"`
}

// ParseWindow parses the "HH:MM" start and end of a window.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

// Validate checks both bounds.
func (w Window) Validate() error {
	if err := w.Start.Validate(); err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	if err := w.End.Validate(); err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	return nil
}

// Wraps reports whether the window crosses midnight.
func (w Window) Wraps() bool { return w.Start.Minutes() >= w.End.Minutes() }

// Contains reports whether minute (any offset, taken modulo one day) falls in
// the window.
func (w Window) Contains(minute int) bool {
	now := Normalize(minute)
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// ContainsTime is Contains for the local wall clock of ts.
func (w Window) ContainsTime(ts time.Time) bool { return w.Contains(MinuteOfDay(ts)) }

// DurationMinutes returns the window length, always in (0, MinutesPerDay].
func (w Window) DurationMinutes() int {
	start, end := w.Start.Minutes(), w.End.Minutes()
	if start < end {
		return end - start
	}
	return MinutesPerDay - start + end
}

// DurationHours returns the window length in hours.
func (w Window) DurationHours() float64 { return float64(w.DurationMinutes()) / 60 }

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }
