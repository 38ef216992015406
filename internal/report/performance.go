package report

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tonimelisma/shiftplan/internal/plan"
)

// DateLayout is the date format of stats archive days.
const DateLayout = "2006-01-02"

// ErrUnknownPeriod is returned by ParsePeriod for unrecognized names.
var ErrUnknownPeriod = errors.New("report: unknown period")

// Period is the span a performance report covers.
type Period string

// Report periods.
const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
}

// Since returns the first archive date the period includes. Week is the
// last seven days, month starts on the first of the current month, and all
// is unbounded.
func (p Period) Since(now time.Time) string {
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7).Format(DateLayout)
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(DateLayout)
	case PeriodAll:
		return ""
	default:
		return now.Format(DateLayout)
	}
}

// ArchiveDay is one archived day of completed-flight counts.
type ArchiveDay struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Tally is one staff member's completed flights over a period.
type Tally struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Performance totals completed flights per staff member. Today reads only
// the live plan. Longer periods start from the roster at zero and add every
// archived day on or after the period start, names that left the roster
// included. Today's live completions are added unless today is already
// archived. Rows are ordered by count, highest first, then by name.
func Performance(s *plan.State, days []ArchiveDay, p Period, now time.Time) []Tally {
	live := ArchiveCounts(s)

	totals := live
	if p != PeriodToday {
		totals = make(map[string]int, len(s.Staff))
		for _, name := range s.Staff {
			totals[name] = 0
		}

		since := p.Since(now)
		today := now.Format(DateLayout)
		archivedToday := false

		for _, d := range days {
			if d.Date == today {
				archivedToday = true
			}

			if d.Date < since {
				continue
			}

			for name, n := range d.Counts {
				totals[name] += n
			}
		}

		if !archivedToday {
			for name, n := range live {
				totals[name] += n
			}
		}
	}

	out := make([]Tally, 0, len(totals))
	for name, n := range totals {
		out = append(out, Tally{Name: name, Count: n})
	}

	slices.SortFunc(out, func(a, b Tally) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	return out
}
