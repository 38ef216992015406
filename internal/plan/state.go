// Package plan holds the shared shift-plan document: the flight records, the
// operator annotations keyed by flight ID, the bounded undo history and the
// per-flight change log. Every mutating operation takes its own history
// snapshot before it touches the plan.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
)

// baseDateLayout is the on-document form of the plan's base date.
const baseDateLayout = "2006-01-02"

// ErrFlightNotFound is returned when an operation names an unknown flight ID.
var ErrFlightNotFound = errors.New("plan: flight not found")

// TimeChange records the label a flight was imported with and its current
// operator-edited label.
type TimeChange struct {
	Original string `json:"original"`
	Current  string `json:"current"`
}

// State is the single shared plan document. It is serialized verbatim as a
// flat JSON object; there is no schema version field.
type State struct {
	Flights             []flight.Flight           `json:"flights"`
	Staff               []string                  `json:"staff"`
	Assignments         map[string]string         `json:"assignments"`
	GateOverrides       map[string]string         `json:"gateOverrides"`
	VisibilityOverrides map[string]focus.Override `json:"visibilityOverrides"`
	CompletedIDs        []string                  `json:"completedIds"`
	DelayedFlags        map[string]bool           `json:"delayedFlags"`
	TimeChanges         map[string]TimeChange     `json:"timeChanges"`
	ShiftConfig         focus.ShiftConfig         `json:"shiftConfig"`
	BaseDate            string                    `json:"baseDate,omitempty"`
	HistorySnapshots    []Snapshot                `json:"historySnapshots"`
	PerFlightChangeLog  map[string][]ChangeEntry  `json:"perFlightChangeLog"`

	// LastMutationTimestamp is Unix milliseconds of the last accepted write.
	LastMutationTimestamp int64 `json:"lastMutationTimestamp"`
}

// New returns an empty plan with the default day shift.
func New() *State {
	s := &State{ShiftConfig: focus.DefaultShiftConfig()}
	s.normalize()

	return s
}

// Decode parses a plan document. Missing collections come back empty, and a
// missing shift config falls back to the default day shift.
func Decode(doc []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("plan: decoding document: %w", err)
	}

	s.normalize()

	return &s, nil
}

// Encode serializes the plan document.
func (s *State) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("plan: encoding document: %w", err)
	}

	return data, nil
}

func (s *State) normalize() {
	if s.Flights == nil {
		s.Flights = []flight.Flight{}
	}

	if s.Staff == nil {
		s.Staff = []string{}
	}

	if s.CompletedIDs == nil {
		s.CompletedIDs = []string{}
	}

	if s.HistorySnapshots == nil {
		s.HistorySnapshots = []Snapshot{}
	}

	if s.Assignments == nil {
		s.Assignments = make(map[string]string)
	}

	if s.GateOverrides == nil {
		s.GateOverrides = make(map[string]string)
	}

	if s.VisibilityOverrides == nil {
		s.VisibilityOverrides = make(map[string]focus.Override)
	}

	if s.DelayedFlags == nil {
		s.DelayedFlags = make(map[string]bool)
	}

	if s.TimeChanges == nil {
		s.TimeChanges = make(map[string]TimeChange)
	}

	if s.PerFlightChangeLog == nil {
		s.PerFlightChangeLog = make(map[string][]ChangeEntry)
	}

	if s.ShiftConfig.Mode == "" {
		s.ShiftConfig = focus.DefaultShiftConfig()
	}
}

// Clone returns a deep copy, safe to hand to readers while the owner keeps
// mutating the original.
func (s *State) Clone() *State {
	c := *s
	c.Flights = slices.Clone(s.Flights)
	c.Staff = slices.Clone(s.Staff)
	c.Assignments = maps.Clone(s.Assignments)
	c.GateOverrides = maps.Clone(s.GateOverrides)
	c.VisibilityOverrides = maps.Clone(s.VisibilityOverrides)
	c.CompletedIDs = slices.Clone(s.CompletedIDs)
	c.DelayedFlags = maps.Clone(s.DelayedFlags)
	c.TimeChanges = maps.Clone(s.TimeChanges)

	c.HistorySnapshots = make([]Snapshot, len(s.HistorySnapshots))
	for i := range s.HistorySnapshots {
		c.HistorySnapshots[i] = s.HistorySnapshots[i].clone()
	}

	c.PerFlightChangeLog = make(map[string][]ChangeEntry, len(s.PerFlightChangeLog))
	for id, entries := range s.PerFlightChangeLog {
		c.PerFlightChangeLog[id] = slices.Clone(entries)
	}

	c.normalize()

	return &c
}

// IsEmpty reports whether the plan has no flight records.
func (s *State) IsEmpty() bool {
	return len(s.Flights) == 0
}

// Base returns the plan's base date at midnight in now's location. Without a
// recorded base date the calendar date of now is used.
func (s *State) Base(now time.Time) time.Time {
	if s.BaseDate != "" {
		if d, err := time.ParseInLocation(baseDateLayout, s.BaseDate, now.Location()); err == nil {
			return d
		}
	}

	y, m, d := now.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// SetBase records d as the plan's base date.
func (s *State) SetBase(d time.Time) {
	s.BaseDate = d.Format(baseDateLayout)
}

// Find returns a pointer into the flight slice, or nil.
func (s *State) Find(id string) *flight.Flight {
	for i := range s.Flights {
		if s.Flights[i].ID == id {
			return &s.Flights[i]
		}
	}

	return nil
}

// Paired returns the opposite-type record sharing f's pair ID, or nil.
func (s *State) Paired(f *flight.Flight) *flight.Flight {
	if f.PairID == "" {
		return nil
	}

	for i := range s.Flights {
		p := &s.Flights[i]
		if p.ID != f.ID && p.PairID == f.PairID && p.Type == f.Type.Opposite() {
			return p
		}
	}

	return nil
}

// Gate returns the operator-visible gate: the override when set, else the
// imported one.
func (s *State) Gate(id string) string {
	if g, ok := s.GateOverrides[id]; ok {
		return g
	}

	if f := s.Find(id); f != nil {
		return f.OriginalGate
	}

	return ""
}

// IsCompleted reports whether id is in the completed set.
func (s *State) IsCompleted(id string) bool {
	return slices.Contains(s.CompletedIDs, id)
}

// SortFlights orders records by scheduled time. Order is derived, never
// identity.
func (s *State) SortFlights() {
	slices.SortStableFunc(s.Flights, func(a, b flight.Flight) int {
		switch {
		case a.ScheduledTimestamp < b.ScheduledTimestamp:
			return -1
		case a.ScheduledTimestamp > b.ScheduledTimestamp:
			return 1
		default:
			return 0
		}
	})
}
