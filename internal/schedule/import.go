package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/plan"
)

// Strategy selects how an import treats the existing plan.
type Strategy string

const (
	// StrategyUnset lets Import pick replace for an empty plan. A non-empty
	// plan requires an explicit choice.
	StrategyUnset Strategy = ""

	// StrategyMerge keeps existing records and their annotations, updating
	// gates and adding unseen flights.
	StrategyMerge Strategy = "merge"

	// StrategyReplace drops every record and annotation and rebuilds the
	// plan from the table.
	StrategyReplace Strategy = "replace"
)

// ParseStrategy accepts "merge", "replace" or the empty string.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyUnset, StrategyMerge, StrategyReplace:
		return st, nil
	default:
		return "", fmt.Errorf("schedule: unknown strategy %q", s)
	}
}

// ErrStrategyRequired is returned when a non-empty plan is imported into
// without choosing merge or replace.
var ErrStrategyRequired = errors.New("schedule: plan is not empty, choose merge or replace")

// Result reports what an import did.
type Result struct {
	Strategy  Strategy `json:"strategy"`
	Updated   int      `json:"updated"`
	Added     int      `json:"added"`
	Unchanged int      `json:"unchanged"`
	BaseDate  string   `json:"baseDate"`
}

// Import applies the table in g to s. The header is located first; when it
// is missing, or the strategy is ambiguous, s is left untouched. Otherwise
// exactly one history snapshot is taken, so the whole import undoes as one
// step. now supplies the time zone and the fallback base date.
func Import(s *plan.State, g Grid, strategy Strategy, now time.Time) (Result, error) {
	h, err := LocateHeader(g)
	if err != nil {
		return Result{}, err
	}

	if strategy == StrategyUnset {
		if !s.IsEmpty() {
			return Result{}, ErrStrategyRequired
		}

		strategy = StrategyReplace
	}

	rows := ParseRows(g, h)

	switch strategy {
	case StrategyMerge:
		s.PushSnapshot()
		return Merge(s, h, rows, now), nil
	case StrategyReplace:
		s.PushSnapshot()
		return Replace(s, h, rows, now), nil
	default:
		return Result{}, fmt.Errorf("schedule: unknown strategy %q", strategy)
	}
}

// Merge reconciles rows with the plan in place. Legs are matched to existing
// records by MatchKey; matched records keep their ID and annotations and only
// take the imported gate, which is propagated to the paired leg. Unmatched
// legs are inserted. The caller takes the history snapshot.
func Merge(s *plan.State, h Header, rows []Row, now time.Time) Result {
	res := Result{Strategy: StrategyMerge}

	if s.BaseDate == "" {
		s.SetBase(baseDate(h, now))
	}

	base := s.Base(now)

	// Records whose gate was already rewritten in this import through their
	// paired leg. Reaching them again with the same gate is not "unchanged".
	propagated := make(map[string]bool)

	for i := range rows {
		row := &rows[i]
		pairID := ""

		for _, leg := range row.Legs() {
			key := flight.MatchKey{
				FlightNumber: leg.FlightNumber,
				Type:         leg.Type,
				IsNextDay:    leg.Minutes < flight.ImportRolloverMinutes,
			}

			existing := findByKey(s, key)
			if existing == nil {
				if pairID == "" {
					pairID = flight.NewPairID()
				}

				f := newFlight(row, leg, base, pairID)
				f.WasCreatedByImport = true
				s.Flights = append(s.Flights, f)
				res.Added++

				continue
			}

			if existing.OriginalGate == row.Gate {
				if !propagated[existing.ID] {
					res.Unchanged++
				}

				continue
			}

			applyGate(s, existing, row.Gate, now)
			res.Updated++

			if p := s.Paired(existing); p != nil && p.OriginalGate != row.Gate {
				applyGate(s, p, row.Gate, now)
				propagated[p.ID] = true
				res.Updated++
			}
		}
	}

	s.SortFlights()
	res.BaseDate = s.BaseDate

	return res
}

// Replace discards every record together with the annotations keyed by
// their IDs, then rebuilds the plan from rows. The base date comes from the
// header's date token, else from now. The staff roster, shift window and
// history survive. The caller takes the history snapshot.
func Replace(s *plan.State, h Header, rows []Row, now time.Time) Result {
	res := Result{Strategy: StrategyReplace}

	base := baseDate(h, now)
	s.SetBase(base)

	s.ClearRecords()

	for i := range rows {
		row := &rows[i]
		pairID := flight.NewPairID()

		for _, leg := range row.Legs() {
			s.Flights = append(s.Flights, newFlight(row, leg, base, pairID))
			res.Added++
		}
	}

	s.SortFlights()
	res.BaseDate = s.BaseDate

	return res
}

func baseDate(h Header, now time.Time) time.Time {
	if d, ok := h.BaseDate(now.Location()); ok {
		return d
	}

	y, m, d := now.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func findByKey(s *plan.State, key flight.MatchKey) *flight.Flight {
	for i := range s.Flights {
		if s.Flights[i].MatchKey() == key {
			return &s.Flights[i]
		}
	}

	return nil
}

// applyGate overwrites the imported gate and the live override, so the
// operator sees the new gate at once, and logs the change.
func applyGate(s *plan.State, f *flight.Flight, gate string, now time.Time) {
	old := f.OriginalGate

	f.OriginalGate = gate
	f.GateWasUpdatedByImport = true
	s.GateOverrides[f.ID] = gate
	s.LogChange(f.ID, plan.FieldGate, old, gate, now)
}

func newFlight(row *Row, leg *Leg, base time.Time, pairID string) flight.Flight {
	f := flight.Flight{
		ID:                 flight.NewID(string(leg.Type)),
		Type:               leg.Type,
		FlightNumber:       leg.FlightNumber,
		FlightNumberDigits: flight.Digits(leg.FlightNumber),
		AirlineRaw:         row.AirlineRaw,
		AirlineCode:        flight.AirlineCode(row.AirlineRaw),
		Route:              leg.Route,
		OriginalGate:       row.Gate,
		PairID:             pairID,
	}

	// Minutes come from a validated cell, so the label always parses.
	_ = f.Reschedule(base, flight.FormatTimeLabel(leg.Minutes), flight.ImportRolloverMinutes)

	return f
}
