// Package focus decides which flights fall inside the active shift window.
package focus

import (
	"fmt"
	"strings"

	"github.com/tonimelisma/shiftplan/internal/flight"
)

// Mode is the shift selection made by the admin.
type Mode string

// Shift modes as stored in the plan document.
const (
	ModeDay   Mode = "day"
	ModeNight Mode = "night"
	ModeAll   Mode = "all"
)

// ParseMode validates a shift mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDay:
		return ModeDay, nil
	case ModeNight:
		return ModeNight, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", fmt.Errorf("focus: unknown shift mode %q", s)
	}
}

// Override forces a flight in or out of focus regardless of the window.
type Override string

// Visibility overrides set per flight by the admin.
const (
	ForceFocus Override = "focus"
	ForceHide  Override = "hide"
)

// Default shift window, 08:00-20:00.
const (
	DefaultWindowStart = 480
	DefaultWindowEnd   = 1200
)

// ReportBufferMinutes widens the window on both sides for shift reports.
const ReportBufferMinutes = 60

const minutesPerDay = 1440

// ShiftConfig is the active shift window. WindowEndMinutes may exceed 1440
// for shifts that cross midnight (start=1200, end=1920 is 20:00-08:00).
type ShiftConfig struct {
	Mode               Mode `json:"mode"`
	WindowStartMinutes int  `json:"windowStartMinutes"`
	WindowEndMinutes   int  `json:"windowEndMinutes"`
}

// DefaultShiftConfig returns the day shift the plan starts with.
func DefaultShiftConfig() ShiftConfig {
	return ShiftConfig{
		Mode:               ModeDay,
		WindowStartMinutes: DefaultWindowStart,
		WindowEndMinutes:   DefaultWindowEnd,
	}
}

// NewShiftConfig builds a window from HH:MM labels. An end before the start
// means the shift runs into the next day, so a full day is added to it.
func NewShiftConfig(mode Mode, start, end string) (ShiftConfig, error) {
	s, err := flight.ParseTimeLabel(start)
	if err != nil {
		return ShiftConfig{}, fmt.Errorf("focus: shift start: %w", err)
	}

	e, err := flight.ParseTimeLabel(end)
	if err != nil {
		return ShiftConfig{}, fmt.Errorf("focus: shift end: %w", err)
	}

	if e < s {
		e += minutesPerDay
	}

	return ShiftConfig{Mode: mode, WindowStartMinutes: s, WindowEndMinutes: e}, nil
}

// Label renders the window for headers, e.g. "DAY 08:00-20:00".
func (c ShiftConfig) Label() string {
	if c.Mode == ModeAll {
		return "ALL DAY"
	}

	return fmt.Sprintf("%s %s-%s", strings.ToUpper(string(c.Mode)),
		flight.FormatTimeLabel(c.WindowStartMinutes), flight.FormatTimeLabel(c.WindowEndMinutes))
}

// contains compares against the raw, unwrapped minute value.
func (c ShiftConfig) contains(m int) bool {
	return c.WindowStartMinutes <= m && m <= c.WindowEndMinutes
}

// InFocus reports whether f is operationally relevant in the shift.
// Overrides win over the window. Both window edges are inclusive.
func InFocus(f *flight.Flight, cfg ShiftConfig, override Override) bool {
	switch override {
	case ForceFocus:
		return true
	case ForceHide:
		return false
	}

	if cfg.Mode == ModeAll {
		return true
	}

	return cfg.contains(f.MinuteOfDay())
}

// Class tags a flight's place in a shift report.
type Class int

// Report classes.
const (
	Outside Class = iota
	InWindow
	Buffer
)

func (c Class) String() string {
	switch c {
	case InWindow:
		return "in-window"
	case Buffer:
		return "buffer"
	default:
		return "outside"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classify is the report variant of InFocus. Flights up to
// ReportBufferMinutes before the start or after the end are tagged Buffer.
// Completed and force-focused flights always make the report; outside the
// strict window they are tagged Buffer too. All-day mode puts every flight
// in the window.
func Classify(f *flight.Flight, cfg ShiftConfig, override Override, completed bool) Class {
	if cfg.Mode == ModeAll {
		return InWindow
	}

	m := f.MinuteOfDay()
	if cfg.contains(m) {
		return InWindow
	}

	buffered := cfg.WindowStartMinutes-ReportBufferMinutes <= m && m <= cfg.WindowEndMinutes+ReportBufferMinutes
	if buffered || completed || override == ForceFocus {
		return Buffer
	}

	return Outside
}
