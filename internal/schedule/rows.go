package schedule

import (
	"strings"

	"github.com/tonimelisma/shiftplan/internal/flight"
)

// Leg is one parsed direction of a schedule row.
type Leg struct {
	Type         flight.Type
	FlightNumber string
	Minutes      int // minute of day
	Route        string
}

// Row is one line of the schedule: up to one arrival and one departure that
// the table places on the same aircraft, plus the shared cells.
type Row struct {
	Index      int // data row index below the header
	AirlineRaw string
	Gate       string
	Arrival    *Leg
	Departure  *Leg
}

// Legs returns the row's present legs, arrival first.
func (r *Row) Legs() []*Leg {
	var legs []*Leg
	if r.Arrival != nil {
		legs = append(legs, r.Arrival)
	}

	if r.Departure != nil {
		legs = append(legs, r.Departure)
	}

	return legs
}

// ParseRows reads the data rows below h. A leg is present only when both
// its flight number and a readable time cell are. Rows with no legs are
// dropped.
func ParseRows(g Grid, h Header) []Row {
	var rows []Row

	for i := h.Row + 1; i < len(g); i++ {
		cells := g[i]

		from, to := splitRoute(cell(cells, h.Route))

		r := Row{
			Index:      i - h.Row - 1,
			AirlineRaw: cell(cells, h.Airline),
			Gate:       cell(cells, h.Gate),
			Arrival:    parseLeg(cells, flight.Arrival, h.ArrivalNumber, h.ArrivalTime, from),
			Departure:  parseLeg(cells, flight.Departure, h.DepartureNumber, h.DepartureTime, to),
		}

		if r.Arrival == nil && r.Departure == nil {
			continue
		}

		rows = append(rows, r)
	}

	return rows
}

func parseLeg(cells []string, t flight.Type, numberCol, timeCol int, route string) *Leg {
	number := cell(cells, numberCol)
	if number == "" {
		return nil
	}

	m, ok := flight.MinutesFromCell(cell(cells, timeCol))
	if !ok {
		return nil
	}

	return &Leg{Type: t, FlightNumber: number, Minutes: m, Route: route}
}

// splitRoute splits "SAW-AYT" into its origin and destination. A route
// without a dash is used for both.
func splitRoute(raw string) (from, to string) {
	if !strings.Contains(raw, "-") {
		return raw, raw
	}

	parts := strings.Split(raw, "-")
	from = strings.TrimSpace(parts[0])
	to = strings.TrimSpace(parts[1])

	if to == "" {
		to = raw
	}

	return from, to
}

func cell(cells []string, col int) string {
	if col < 0 || col >= len(cells) {
		return ""
	}

	return flight.CleanCell(cells[col])
}
