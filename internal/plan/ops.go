package plan

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
)

// ErrInvalidInput is returned for malformed operator input.
var ErrInvalidInput = errors.New("plan: invalid input")

func (s *State) mustFind(id string) (*flight.Flight, error) {
	f := s.Find(id)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFlightNotFound, id)
	}

	return f, nil
}

// AssignStaff assigns staff to a flight. An empty name clears the assignment.
func (s *State) AssignStaff(id, staff string) error {
	if _, err := s.mustFind(id); err != nil {
		return err
	}

	s.PushSnapshot()

	if staff == "" {
		delete(s.Assignments, id)
		return nil
	}

	s.Assignments[id] = flight.Upper(staff)

	return nil
}

// UpdateGate sets the operator-visible gate of a flight and of its paired
// leg, logging the change on both. It returns the paired flight's ID when
// the change was propagated.
func (s *State) UpdateGate(id, gate string, at time.Time) (string, error) {
	f, err := s.mustFind(id)
	if err != nil {
		return "", err
	}

	s.PushSnapshot()

	gate = flight.CleanCell(gate)
	old := s.Gate(id)
	s.GateOverrides[id] = gate
	s.LogChange(id, FieldGate, old, gate, at)

	p := s.Paired(f)
	if p == nil {
		return "", nil
	}

	oldPaired := s.Gate(p.ID)
	s.GateOverrides[p.ID] = gate
	s.LogChange(p.ID, FieldGate, oldPaired, gate, at)

	return p.ID, nil
}

// UpdateTime moves a flight to a new HH:MM label. Operator edits use the
// tighter EditRolloverMinutes threshold. The first label the flight carried
// is remembered so the change badge compares against it. It reports false
// when the label is unchanged and nothing was done.
func (s *State) UpdateTime(id, label string, now time.Time) (bool, error) {
	f, err := s.mustFind(id)
	if err != nil {
		return false, err
	}

	m, err := flight.ParseTimeLabel(label)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	label = flight.FormatTimeLabel(m)
	if f.TimeLabel == label {
		return false, nil
	}

	s.PushSnapshot()

	original := f.OriginalTimeLabel
	if original == "" {
		original = f.TimeLabel
	}

	f.OriginalTimeLabel = original

	if err := f.Reschedule(s.Base(now), label, flight.EditRolloverMinutes); err != nil {
		return false, err
	}

	if label != original {
		s.TimeChanges[id] = TimeChange{Original: original, Current: label}
		s.LogChange(id, FieldTime, original, label, now)
	} else {
		delete(s.TimeChanges, id)
	}

	s.SortFlights()

	return true, nil
}

// ToggleComplete flips a flight's membership in the completed set.
func (s *State) ToggleComplete(id string) (bool, error) {
	if _, err := s.mustFind(id); err != nil {
		return false, err
	}

	s.PushSnapshot()

	if i := slices.Index(s.CompletedIDs, id); i >= 0 {
		s.CompletedIDs = slices.Delete(s.CompletedIDs, i, i+1)
		return false, nil
	}

	s.CompletedIDs = append(s.CompletedIDs, id)

	return true, nil
}

// ToggleDelay flips a flight's delayed flag.
func (s *State) ToggleDelay(id string) (bool, error) {
	if _, err := s.mustFind(id); err != nil {
		return false, err
	}

	s.PushSnapshot()

	if s.DelayedFlags[id] {
		delete(s.DelayedFlags, id)
		return false, nil
	}

	s.DelayedFlags[id] = true

	return true, nil
}

// ToggleOverride sets a visibility override, or clears it when the same
// override is already set.
func (s *State) ToggleOverride(id string, o focus.Override) (bool, error) {
	if o != focus.ForceFocus && o != focus.ForceHide {
		return false, fmt.Errorf("%w: override %q", ErrInvalidInput, o)
	}

	if _, err := s.mustFind(id); err != nil {
		return false, err
	}

	s.PushSnapshot()

	if s.VisibilityOverrides[id] == o {
		delete(s.VisibilityOverrides, id)
		return false, nil
	}

	s.VisibilityOverrides[id] = o

	return true, nil
}

// ManualFlight is the operator input for a hand-added flight.
type ManualFlight struct {
	Type         flight.Type
	TimeLabel    string
	FlightNumber string
	Airline      string
	Route        string
	Gate         string
}

// AddManualFlight inserts a hand-entered flight. Manual entries use the
// edit-time rollover threshold and carry no pair link.
func (s *State) AddManualFlight(in ManualFlight, now time.Time) (*flight.Flight, error) {
	if in.Type != flight.Arrival && in.Type != flight.Departure {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidInput, in.Type)
	}

	number := flight.Upper(in.FlightNumber)
	airline := flight.Upper(in.Airline)
	route := flight.Upper(in.Route)

	switch {
	case in.TimeLabel == "":
		return nil, fmt.Errorf("%w: time is required", ErrInvalidInput)
	case number == "":
		return nil, fmt.Errorf("%w: flight number is required", ErrInvalidInput)
	case airline == "":
		return nil, fmt.Errorf("%w: airline is required", ErrInvalidInput)
	case route == "":
		return nil, fmt.Errorf("%w: route is required", ErrInvalidInput)
	}

	f := flight.Flight{
		ID:                 flight.NewID("MANUAL-" + string(in.Type)),
		Type:               in.Type,
		FlightNumber:       number,
		FlightNumberDigits: flight.Digits(number),
		AirlineRaw:         airline,
		AirlineCode:        airline,
		Route:              route,
		OriginalGate:       flight.CleanCell(in.Gate),
		IsManual:           true,
	}

	if err := f.Reschedule(s.Base(now), in.TimeLabel, flight.EditRolloverMinutes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.PushSnapshot()
	s.Flights = append(s.Flights, f)
	s.SortFlights()

	return s.Find(f.ID), nil
}

// DeleteFlight removes a flight and every annotation keyed by its ID.
func (s *State) DeleteFlight(id string) (flight.Flight, error) {
	f, err := s.mustFind(id)
	if err != nil {
		return flight.Flight{}, err
	}

	removed := *f

	s.PushSnapshot()

	s.Flights = slices.DeleteFunc(s.Flights, func(x flight.Flight) bool { return x.ID == id })
	s.dropAnnotations(id)

	return removed, nil
}

func (s *State) dropAnnotations(id string) {
	delete(s.Assignments, id)
	delete(s.GateOverrides, id)
	delete(s.VisibilityOverrides, id)
	delete(s.DelayedFlags, id)
	delete(s.TimeChanges, id)
	delete(s.PerFlightChangeLog, id)
	s.CompletedIDs = slices.DeleteFunc(s.CompletedIDs, func(x string) bool { return x == id })
}

// ClearRecords drops every flight and every annotation keyed by a flight
// ID. It takes no snapshot; callers that need one push it first.
func (s *State) ClearRecords() {
	s.Flights = []flight.Flight{}
	s.Assignments = make(map[string]string)
	s.GateOverrides = make(map[string]string)
	s.VisibilityOverrides = make(map[string]focus.Override)
	s.CompletedIDs = []string{}
	s.DelayedFlags = make(map[string]bool)
	s.TimeChanges = make(map[string]TimeChange)
	s.PerFlightChangeLog = make(map[string][]ChangeEntry)
}

// ClearUpdateBadges drops the import and time-change markers.
func (s *State) ClearUpdateBadges() {
	s.PushSnapshot()

	for i := range s.Flights {
		s.Flights[i].WasCreatedByImport = false
		s.Flights[i].GateWasUpdatedByImport = false
	}

	s.TimeChanges = make(map[string]TimeChange)
}

// SetShift replaces the shift window. The window is not part of the undo
// snapshot, so this is not undoable.
func (s *State) SetShift(cfg focus.ShiftConfig) error {
	if _, err := focus.ParseMode(string(cfg.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if cfg.Mode != focus.ModeAll && cfg.WindowEndMinutes < cfg.WindowStartMinutes {
		return fmt.Errorf("%w: shift ends before it starts", ErrInvalidInput)
	}

	s.ShiftConfig = cfg

	return nil
}

// AddStaff adds a name to the roster. It reports false for duplicates.
func (s *State) AddStaff(name string) bool {
	name = flight.Upper(name)
	if name == "" || slices.Contains(s.Staff, name) {
		return false
	}

	s.Staff = append(s.Staff, name)

	return true
}

// RemoveStaff drops a name from the roster. Existing assignments stay.
func (s *State) RemoveStaff(name string) bool {
	name = flight.Upper(name)

	i := slices.Index(s.Staff, name)
	if i < 0 {
		return false
	}

	s.Staff = slices.Delete(s.Staff, i, i+1)

	return true
}

// Reset clears the plan for a new shift. The staff roster survives; records,
// annotations, history and change logs do not.
func (s *State) Reset() {
	staff := s.Staff
	ts := s.LastMutationTimestamp

	*s = State{
		Staff:                 staff,
		ShiftConfig:           focus.DefaultShiftConfig(),
		LastMutationTimestamp: ts,
	}
	s.normalize()
}

// ErrNoPendingFlight is returned when every flight in focus is completed.
var ErrNoPendingFlight = errors.New("plan: no pending flight in focus")

// NextPending returns the earliest in-focus flight that is not completed,
// or nil.
func (s *State) NextPending() *flight.Flight {
	var next *flight.Flight

	for i := range s.Flights {
		f := &s.Flights[i]
		if s.IsCompleted(f.ID) || !focus.InFocus(f, s.ShiftConfig, s.VisibilityOverrides[f.ID]) {
			continue
		}

		if next == nil || f.ScheduledTimestamp < next.ScheduledTimestamp {
			next = f
		}
	}

	return next
}

// CompleteNext marks the next pending flight completed and returns its ID.
func (s *State) CompleteNext() (string, error) {
	f := s.NextPending()
	if f == nil {
		return "", ErrNoPendingFlight
	}

	id := f.ID
	if _, err := s.ToggleComplete(id); err != nil {
		return "", err
	}

	return id, nil
}

// Restore replaces the whole document with backup, its undo history
// included. The local write timestamp is kept, so the restored plan is
// written as a new change rather than as the backup's old one.
func (s *State) Restore(backup *State) {
	ts := s.LastMutationTimestamp

	*s = *backup.Clone()
	s.LastMutationTimestamp = ts
	s.normalize()
	s.SortFlights()
}
