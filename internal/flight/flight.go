// Package flight defines the flight record shared by every shiftplan
// component, its merge identity, and the time-label arithmetic that places a
// scheduled time on the plan's calendar.
package flight

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Type is the leg direction of a flight record.
type Type string

// Leg directions as stored in the plan document.
const (
	Arrival   Type = "ARR"
	Departure Type = "DEP"
)

// Opposite returns the other leg direction.
func (t Type) Opposite() Type {
	if t == Arrival {
		return Departure
	}

	return Arrival
}

// ParseType accepts ARR/DEP in any case, plus the long forms.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ARR", "ARRIVAL":
		return Arrival, nil
	case "DEP", "DEPARTURE":
		return Departure, nil
	default:
		return "", fmt.Errorf("flight: unknown type %q", s)
	}
}

// Day-rollover thresholds in minutes of day. A label whose minute-of-day is
// below the threshold belongs to the calendar day after the plan's base date.
//
// The two values differ on purpose and must not be unified silently: an
// imported schedule table runs from the afternoon into the next afternoon
// (anything before 15:00 is "tomorrow"), while a time typed in by an operator
// is only pushed to the next day when it is just past midnight.
const (
	ImportRolloverMinutes = 900
	EditRolloverMinutes   = 360
)

const (
	minutesPerDay  = 1440
	minutesPerHour = 60
)

// ErrInvalidTimeLabel is returned when a label is not a valid HH:MM time.
var ErrInvalidTimeLabel = errors.New("flight: invalid time label")

// Flight is one leg of a rotation. Operator annotations (staff, gate edits,
// completion, delay) are not stored here; they live in the plan keyed by ID
// so they survive re-imports.
type Flight struct {
	ID                 string `json:"id"`
	Type               Type   `json:"type"`
	FlightNumber       string `json:"flightNumber"`
	FlightNumberDigits string `json:"flightNumberDigits"`
	AirlineRaw         string `json:"airlineRaw"`
	AirlineCode        string `json:"airlineCode"`
	Route              string `json:"route"`
	ScheduledTimestamp int64  `json:"scheduledTimestamp"` // Unix milliseconds
	TimeLabel          string `json:"timeLabel"`
	IsNextDay          bool   `json:"isNextDay"`
	OriginalGate       string `json:"originalGate"`
	PairID             string `json:"pairId,omitempty"`

	WasCreatedByImport     bool   `json:"wasCreatedByImport,omitempty"`
	GateWasUpdatedByImport bool   `json:"gateWasUpdatedByImport,omitempty"`
	IsManual               bool   `json:"isManual,omitempty"`
	OriginalTimeLabel      string `json:"originalTimeLabel,omitempty"`
}

// MatchKey identifies "the same flight" across re-imports. There is no stable
// external ID in the schedule tables, so the flight number, direction and
// day-rollover flag together stand in for one.
type MatchKey struct {
	FlightNumber string
	Type         Type
	IsNextDay    bool
}

// MatchKey returns the merge identity of f.
func (f *Flight) MatchKey() MatchKey {
	return MatchKey{
		FlightNumber: f.FlightNumber,
		Type:         f.Type,
		IsNextDay:    f.IsNextDay,
	}
}

// Scheduled returns the scheduled instant in loc.
func (f *Flight) Scheduled(loc *time.Location) time.Time {
	return time.UnixMilli(f.ScheduledTimestamp).In(loc)
}

// MinuteOfDay returns the flight's minute of day taken from its label,
// extended by a full day when the flight rolled past midnight. The result is
// never wrapped, so overnight windows can compare against it directly.
func (f *Flight) MinuteOfDay() int {
	m, err := ParseTimeLabel(f.TimeLabel)
	if err != nil {
		t := time.UnixMilli(f.ScheduledTimestamp)
		m = t.Hour()*minutesPerHour + t.Minute()
	}

	if f.IsNextDay {
		m += minutesPerDay
	}

	return m
}

// Reschedule moves f to label on baseDate using the given rollover threshold.
func (f *Flight) Reschedule(baseDate time.Time, label string, rolloverMinutes int) error {
	ts, nextDay, err := DeriveTimestamp(baseDate, label, rolloverMinutes)
	if err != nil {
		return err
	}

	m, _ := ParseTimeLabel(label)
	f.TimeLabel = FormatTimeLabel(m)
	f.IsNextDay = nextDay
	f.ScheduledTimestamp = ts.UnixMilli()

	return nil
}

// DeriveTimestamp places label on baseDate's calendar. The label belongs to
// the following day when its minute of day is below rolloverMinutes. The
// returned instant is in baseDate's location.
func DeriveTimestamp(baseDate time.Time, label string, rolloverMinutes int) (time.Time, bool, error) {
	m, err := ParseTimeLabel(label)
	if err != nil {
		return time.Time{}, false, err
	}

	nextDay := m < rolloverMinutes

	y, mo, d := baseDate.Date()
	if nextDay {
		d++
	}

	ts := time.Date(y, mo, d, m/minutesPerHour, m%minutesPerHour, 0, 0, baseDate.Location())

	return ts, nextDay, nil
}

// ParseTimeLabel parses "H:MM" / "HH:MM" into a minute of day.
func ParseTimeLabel(label string) (int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(label), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeLabel, label)
	}

	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeLabel, label)
	}

	// Spreadsheets sometimes export seconds ("23:30:00").
	ms, _, _ = strings.Cut(ms, ":")

	m, err := strconv.Atoi(strings.TrimSpace(ms))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeLabel, label)
	}

	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidTimeLabel, label)
	}

	return h*minutesPerHour + m, nil
}

// FormatTimeLabel renders a minute of day as HH:MM. Values past midnight
// are wrapped.
func FormatTimeLabel(minuteOfDay int) string {
	m := ((minuteOfDay % minutesPerDay) + minutesPerDay) % minutesPerDay

	return fmt.Sprintf("%02d:%02d", m/minutesPerHour, m%minutesPerHour)
}

// MinutesFromCell reads a schedule time cell. Cells are either "HH:MM" text
// or a spreadsheet day fraction (0.5 is noon).
func MinutesFromCell(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, false
	}

	if strings.Contains(cell, ":") {
		m, err := ParseTimeLabel(cell)
		if err != nil {
			return 0, false
		}

		return m, true
	}

	frac, err := strconv.ParseFloat(cell, 64)
	if err != nil || frac < 0 || frac >= 1 {
		return 0, false
	}

	m := int(math.Round(frac * minutesPerDay))
	if m >= minutesPerDay {
		return 0, false
	}

	return m, true
}

// Digits returns the first run of digits in a flight number, used for
// lenient lookups ("PC3001" and "3001" both yield "3001"). When there are no
// digits the trimmed input is returned.
func Digits(flightNumber string) string {
	s := strings.TrimSpace(flightNumber)

	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return s
	}

	end := strings.IndexFunc(s[start:], func(r rune) bool { return !unicode.IsDigit(r) })
	if end < 0 {
		return s[start:]
	}

	return s[start : start+end]
}

// AirlineCode returns the part of a raw airline cell before the first "/",
// e.g. "PC/PEGASUS" yields "PC".
func AirlineCode(raw string) string {
	code, _, _ := strings.Cut(raw, "/")

	return strings.TrimSpace(code)
}

// CleanCell trims and NFC-normalizes imported cell text so visually equal
// values compare equal regardless of the exporter's Unicode form.
func CleanCell(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// Upper upper-cases operator input with full Unicode case mapping, so
// rosters with names like "ayşe" become "AYŞE". A Caser is stateful, hence
// one per call.
func Upper(s string) string {
	return cases.Upper(language.Und).String(CleanCell(s))
}

// NewID returns a fresh record ID with the given prefix. IDs are never reused.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewPairID returns a fresh rotation link shared by an arrival and its
// departure.
func NewPairID() string {
	return "pair-" + uuid.NewString()
}
