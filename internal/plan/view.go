package plan

import (
	"strings"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
)

// Filters are one client's personal view settings. They are local-only and
// never written to the shared document.
type Filters struct {
	Direction     flight.Type // empty shows both directions
	Staff         string
	HideCompleted bool
	UpdatedOnly   bool
	Search        string
}

// FlightView is a flight with its derived per-client flags.
type FlightView struct {
	flight.Flight

	Gate        string      `json:"gate"`
	Staff       string      `json:"staff"`
	InFocus     bool        `json:"inFocus"`
	Completed   bool        `json:"completed"`
	Delayed     bool        `json:"delayed"`
	TimeChange  *TimeChange `json:"timeChange,omitempty"`
	PairedID    string      `json:"pairedId,omitempty"`
	GateChanged bool        `json:"gateChanged"`
}

// Updated reports whether the flight carries any update badge.
func (v *FlightView) Updated() bool {
	return v.WasCreatedByImport || v.GateWasUpdatedByImport || v.TimeChange != nil
}

// View derives the flags for one flight.
func (s *State) View(f *flight.Flight) FlightView {
	v := FlightView{
		Flight:    *f,
		Gate:      s.Gate(f.ID),
		Staff:     s.Assignments[f.ID],
		InFocus:   focus.InFocus(f, s.ShiftConfig, s.VisibilityOverrides[f.ID]),
		Completed: s.IsCompleted(f.ID),
		Delayed:   s.DelayedFlags[f.ID],
	}

	v.GateChanged = f.GateWasUpdatedByImport || v.Gate != f.OriginalGate

	if tc, ok := s.TimeChanges[f.ID]; ok {
		v.TimeChange = &tc
	}

	if p := s.Paired(f); p != nil {
		v.PairedID = p.ID
	}

	return v
}

// Select returns the views that pass the filters, in plan order.
func (s *State) Select(fl Filters) []FlightView {
	term := normalizeSearch(fl.Search)
	staff := flight.Upper(fl.Staff)

	var out []FlightView

	for i := range s.Flights {
		v := s.View(&s.Flights[i])

		if fl.Direction != "" && v.Type != fl.Direction {
			continue
		}

		if staff != "" && v.Staff != staff {
			continue
		}

		if fl.HideCompleted && v.Completed {
			continue
		}

		if fl.UpdatedOnly && !v.Updated() {
			continue
		}

		if term != "" && !matchesSearch(&v, term) {
			continue
		}

		out = append(out, v)
	}

	return out
}

func normalizeSearch(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func matchesSearch(v *FlightView, term string) bool {
	for _, field := range []string{v.FlightNumber, v.FlightNumberDigits, v.AirlineCode, v.Route, v.Gate, v.Staff} {
		if strings.Contains(normalizeSearch(field), term) {
			return true
		}
	}

	return false
}
