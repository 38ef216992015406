package plan

import (
	"errors"
	"maps"
	"slices"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
)

// MaxHistory bounds the undo ring. Older snapshots are evicted first.
const MaxHistory = 10

// ErrEmptyHistory is returned by Undo when there is nothing to undo.
var ErrEmptyHistory = errors.New("plan: nothing to undo")

// Snapshot is a deep copy of the mutable plan collections taken before a
// mutation. Callers treat it as opaque; the fields are exported only so the
// ring travels inside the shared document.
type Snapshot struct {
	Flights             []flight.Flight           `json:"flights"`
	Assignments         map[string]string         `json:"assignments"`
	GateOverrides       map[string]string         `json:"gateOverrides"`
	VisibilityOverrides map[string]focus.Override `json:"visibilityOverrides"`
	CompletedIDs        []string                  `json:"completedIds"`
	DelayedFlags        map[string]bool           `json:"delayedFlags"`
	TimeChanges         map[string]TimeChange     `json:"timeChanges"`
}

func (sn *Snapshot) clone() Snapshot {
	return Snapshot{
		Flights:             slices.Clone(sn.Flights),
		Assignments:         maps.Clone(sn.Assignments),
		GateOverrides:       maps.Clone(sn.GateOverrides),
		VisibilityOverrides: maps.Clone(sn.VisibilityOverrides),
		CompletedIDs:        slices.Clone(sn.CompletedIDs),
		DelayedFlags:        maps.Clone(sn.DelayedFlags),
		TimeChanges:         maps.Clone(sn.TimeChanges),
	}
}

// PushSnapshot captures the mutable collections and appends them to the
// undo ring. It must run exactly once per logical mutation, before the
// mutation is applied; pushing afterwards makes the following undo a no-op.
func (s *State) PushSnapshot() {
	sn := Snapshot{
		Flights:             s.Flights,
		Assignments:         s.Assignments,
		GateOverrides:       s.GateOverrides,
		VisibilityOverrides: s.VisibilityOverrides,
		CompletedIDs:        s.CompletedIDs,
		DelayedFlags:        s.DelayedFlags,
		TimeChanges:         s.TimeChanges,
	}

	s.HistorySnapshots = append(s.HistorySnapshots, sn.clone())
	if over := len(s.HistorySnapshots) - MaxHistory; over > 0 {
		s.HistorySnapshots = slices.Delete(s.HistorySnapshots, 0, over)
	}
}

// Undo restores the most recent snapshot and drops it from the ring. There
// is no redo: the popped snapshot is gone.
func (s *State) Undo() error {
	n := len(s.HistorySnapshots)
	if n == 0 {
		return ErrEmptyHistory
	}

	sn := s.HistorySnapshots[n-1]
	s.HistorySnapshots = s.HistorySnapshots[:n-1]

	s.Flights = sn.Flights
	s.Assignments = sn.Assignments
	s.GateOverrides = sn.GateOverrides
	s.VisibilityOverrides = sn.VisibilityOverrides
	s.CompletedIDs = sn.CompletedIDs
	s.DelayedFlags = sn.DelayedFlags
	s.TimeChanges = sn.TimeChanges
	s.normalize()

	return nil
}

// HistoryLen returns the number of undoable snapshots.
func (s *State) HistoryLen() int {
	return len(s.HistorySnapshots)
}
