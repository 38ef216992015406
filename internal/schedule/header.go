// Package schedule reads the airport's daily schedule table and reconciles it
// with the current plan. The table arrives as a grid of cell text with the
// arrival columns in its left half and the departure columns in its right
// half; the engine locates the header row, parses one Row per rotation and
// then either merges the rows into the plan or replaces the plan with them.
package schedule

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/tonimelisma/shiftplan/internal/flight"
)

// HeaderScanRows is how many leading rows are searched for the header.
const HeaderScanRows = 25

// ErrHeaderNotFound is returned when no scanned row carries the flight
// number and airline markers.
var ErrHeaderNotFound = errors.New("schedule: header row not found")

// Grid is a sheet of raw cell text, row-major. Rows may be ragged.
type Grid [][]string

var dateToken = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)

const dateTokenLayout = "02.01.2006"

// Header is the located header row and the column of each field. Columns
// that were not found are -1.
type Header struct {
	Row int

	// Date is the last dd.mm.yyyy token seen at or above the header row, or
	// empty when none was present.
	Date string

	Airline int
	Gate    int
	Route   int

	ArrivalNumber   int
	ArrivalTime     int
	DepartureNumber int
	DepartureTime   int
}

// BaseDate parses the header date token in loc.
func (h *Header) BaseDate(loc *time.Location) (time.Time, bool) {
	if h.Date == "" {
		return time.Time{}, false
	}

	d, err := time.ParseInLocation(dateTokenLayout, h.Date, loc)
	if err != nil {
		return time.Time{}, false
	}

	return d, true
}

// LocateHeader scans the first HeaderScanRows rows for the header. The
// header row is the first one whose joined, upper-cased text contains both
// "FLIGHT NO" and "AIRLINE".
func LocateHeader(g Grid) (Header, error) {
	h := Header{
		Row: -1, Airline: -1, Gate: -1, Route: -1,
		ArrivalNumber: -1, ArrivalTime: -1, DepartureNumber: -1, DepartureTime: -1,
	}

	for i := 0; i < len(g) && i < HeaderScanRows; i++ {
		if len(g[i]) == 0 {
			continue
		}

		line := strings.ToUpper(strings.Join(g[i], " "))
		if m := dateToken.FindString(line); m != "" {
			h.Date = m
		}

		if strings.Contains(line, "FLIGHT NO") && strings.Contains(line, "AIRLINE") {
			h.Row = i
			break
		}
	}

	if h.Row < 0 {
		return h, ErrHeaderNotFound
	}

	cols := make([]string, len(g[h.Row]))
	for i, c := range g[h.Row] {
		cols[i] = strings.ToUpper(flight.CleanCell(c))
	}

	for i, c := range cols {
		if strings.Contains(c, "AIRLINE") {
			h.Airline = i
		}

		if strings.Contains(c, "BRIDGE") || strings.Contains(c, "GATE") {
			h.Gate = i
		}

		if strings.Contains(c, "STATIONS") || strings.Contains(c, "ROUTE") {
			h.Route = i
		}
	}

	// Arrivals occupy the left half of the sheet and departures the right.
	// On the left the last matching column wins; on the right the first.
	// Columns already taken by airline, gate or route are skipped, since
	// "STATIONS" would otherwise read as an STA time column.
	split := len(cols) / 2

	for i, c := range cols {
		if i == h.Airline || i == h.Gate || i == h.Route {
			continue
		}

		number := strings.Contains(c, "FLIGHT") || strings.Contains(c, "NO")

		if i < split {
			if number {
				h.ArrivalNumber = i
			}

			if strings.Contains(c, "STA") || strings.Contains(c, "TIME") {
				h.ArrivalTime = i
			}

			continue
		}

		if number && h.DepartureNumber < 0 {
			h.DepartureNumber = i
		}

		if (strings.Contains(c, "STD") || strings.Contains(c, "TIME")) && h.DepartureTime < 0 {
			h.DepartureTime = i
		}
	}

	return h, nil
}
