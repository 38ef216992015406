// Package report derives read-only summaries from a plan: the live shift
// analysis, the end-of-shift report rows and the per-staff counts written to
// the stats archive. Performance totals combine that archive with the live
// plan. Nothing here mutates the plan.
package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
	"github.com/tonimelisma/shiftplan/internal/plan"
)

// GapMinutes is the shortest idle stretch between consecutive focus flights
// reported as a gap.
const GapMinutes = 30

const upcomingWindow = time.Hour

// StaffCount pairs a roster name with a count.
type StaffCount struct {
	Name  string `json:"name"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// HourCount is the number of focus flights scheduled in one clock hour.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Gap is an idle stretch between two consecutive focus flights.
type Gap struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

// Analysis summarizes the flights in the current shift window.
type Analysis struct {
	Total             int `json:"total"`
	InFocus           int `json:"inFocus"`
	Completed         int `json:"completed"`
	CompletionPercent int `json:"completionPercent"`

	TimeChanges int `json:"timeChanges"`
	GateChanges int `json:"gateChanges"`
	NewlyAdded  int `json:"newlyAdded"`

	Delayed  []plan.FlightView `json:"delayed"`
	Upcoming []plan.FlightView `json:"upcoming"`
	Hourly   []HourCount       `json:"hourly"`
	Gaps     []Gap             `json:"gaps"`

	// StaffLoad lists roster members with at least one focus flight.
	StaffLoad []StaffCount `json:"staffLoad"`
}

// focusViews returns the in-focus flights ordered by scheduled time.
func focusViews(s *plan.State) []plan.FlightView {
	var out []plan.FlightView

	for i := range s.Flights {
		if v := s.View(&s.Flights[i]); v.InFocus {
			out = append(out, v)
		}
	}

	slices.SortStableFunc(out, func(a, b plan.FlightView) int {
		return cmp.Compare(a.ScheduledTimestamp, b.ScheduledTimestamp)
	})

	return out
}

// Analyze builds the shift analysis as of now. Hours are taken in now's
// location.
func Analyze(s *plan.State, now time.Time) Analysis {
	views := focusViews(s)

	a := Analysis{
		Total:       len(s.Flights),
		InFocus:     len(views),
		TimeChanges: len(s.TimeChanges),
		Delayed:     []plan.FlightView{},
		Upcoming:    []plan.FlightView{},
		Hourly:      []HourCount{},
		Gaps:        []Gap{},
		StaffLoad:   []StaffCount{},
	}

	load := make(map[string]*StaffCount, len(s.Staff))
	for _, name := range s.Staff {
		load[name] = &StaffCount{Name: name}
	}

	nowMs := now.UnixMilli()
	horizon := now.Add(upcomingWindow).UnixMilli()

	for i := range views {
		v := &views[i]

		if v.Completed {
			a.Completed++
		}

		if v.Delayed {
			a.Delayed = append(a.Delayed, *v)
		}

		if v.GateChanged {
			a.GateChanges++
		}

		if v.WasCreatedByImport && !v.GateWasUpdatedByImport {
			a.NewlyAdded++
		}

		if !v.Completed && v.ScheduledTimestamp > nowMs && v.ScheduledTimestamp <= horizon {
			a.Upcoming = append(a.Upcoming, *v)
		}

		hour := v.Scheduled(now.Location()).Hour()
		if n := len(a.Hourly); n > 0 && a.Hourly[n-1].Hour == hour {
			a.Hourly[n-1].Count++
		} else {
			a.Hourly = append(a.Hourly, HourCount{Hour: hour, Count: 1})
		}

		if sc, ok := load[v.Staff]; ok {
			sc.Total++
			if v.Completed {
				sc.Done++
			}
		}

		if i+1 < len(views) {
			next := &views[i+1]
			diff := int((next.ScheduledTimestamp - v.ScheduledTimestamp) / time.Minute.Milliseconds())

			if diff >= GapMinutes {
				a.Gaps = append(a.Gaps, Gap{Start: v.TimeLabel, End: next.TimeLabel, Minutes: diff})
			}
		}
	}

	if a.InFocus > 0 {
		a.CompletionPercent = a.Completed * 100 / a.InFocus
	}

	for _, name := range s.Staff {
		if sc := load[name]; sc.Total > 0 {
			a.StaffLoad = append(a.StaffLoad, *sc)
		}
	}

	return a
}

// Row is one flight in the shift report.
type Row struct {
	plan.FlightView

	Class focus.Class `json:"class"`
}

// Shift is the end-of-shift report. Planned totals count flights strictly
// inside the window; served totals count every completed flight.
type Shift struct {
	Label string `json:"label"`
	Rows  []Row  `json:"rows"`

	PlannedArrivals   int `json:"plannedArrivals"`
	PlannedDepartures int `json:"plannedDepartures"`
	ServedArrivals    int `json:"servedArrivals"`
	ServedDepartures  int `json:"servedDepartures"`
}

// ShiftReport classifies every flight against the shift window, keeping the
// ones that belong in the report.
func ShiftReport(s *plan.State) Shift {
	out := Shift{Label: s.ShiftConfig.Label(), Rows: []Row{}}

	for i := range s.Flights {
		f := &s.Flights[i]
		v := s.View(f)
		class := focus.Classify(f, s.ShiftConfig, s.VisibilityOverrides[f.ID], v.Completed)

		if class == focus.InWindow {
			if f.Type == flight.Arrival {
				out.PlannedArrivals++
			} else {
				out.PlannedDepartures++
			}
		}

		if v.Completed {
			if f.Type == flight.Arrival {
				out.ServedArrivals++
			} else {
				out.ServedDepartures++
			}
		}

		if class != focus.Outside {
			out.Rows = append(out.Rows, Row{FlightView: v, Class: class})
		}
	}

	slices.SortStableFunc(out.Rows, func(a, b Row) int {
		return cmp.Compare(a.ScheduledTimestamp, b.ScheduledTimestamp)
	})

	return out
}

// ArchiveCounts returns completed flights per roster member. Every roster
// name is present, zero when it completed nothing; assignments to names no
// longer on the roster are not counted.
func ArchiveCounts(s *plan.State) map[string]int {
	counts := make(map[string]int, len(s.Staff))
	for _, name := range s.Staff {
		counts[name] = 0
	}

	for _, id := range s.CompletedIDs {
		if name, ok := s.Assignments[id]; ok {
			if _, onRoster := counts[name]; onRoster {
				counts[name]++
			}
		}
	}

	return counts
}
