package plan

import (
	"slices"
	"time"
)

// MaxChangeLog bounds each flight's change log. Truncation is lossy.
const MaxChangeLog = 10

// Change-log field names.
const (
	FieldGate = "Gate"
	FieldTime = "Time"
)

// ChangeEntry is one field change on a flight.
type ChangeEntry struct {
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Field     string `json:"field"`
	OldValue  string `json:"oldValue"`
	NewValue  string `json:"newValue"`
}

// LogChange appends a change for id, evicting the oldest entry past
// MaxChangeLog.
func (s *State) LogChange(id, field, oldValue, newValue string, at time.Time) {
	entries := append(s.PerFlightChangeLog[id], ChangeEntry{
		Timestamp: at.UnixMilli(),
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
	})

	if over := len(entries) - MaxChangeLog; over > 0 {
		entries = slices.Delete(entries, 0, over)
	}

	s.PerFlightChangeLog[id] = entries
}

// ChangeLog returns id's changes, oldest first.
func (s *State) ChangeLog(id string) []ChangeEntry {
	return slices.Clone(s.PerFlightChangeLog[id])
}
