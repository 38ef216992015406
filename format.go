package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tonimelisma/shiftplan/internal/plan"
)

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	if !cc.Flags.Quiet {
		fmt.Fprintf(cc.Err, format, args...)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// formatMillis renders a Unix-millisecond timestamp in local time; zero
// means never written.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "never"
	}

	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// flightFlags renders the one-letter status column: C completed, D delayed,
// G gate changed, T time changed, N new from import, M manual.
func flightFlags(v *plan.FlightView) string {
	var b strings.Builder

	mark := func(on bool, c byte) {
		if on {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}

	mark(v.Completed, 'C')
	mark(v.Delayed, 'D')
	mark(v.GateChanged, 'G')
	mark(v.TimeChange != nil, 'T')
	mark(v.WasCreatedByImport, 'N')
	mark(v.IsManual, 'M')

	return b.String()
}

// printFlights writes the flight table.
func printFlights(w io.Writer, views []plan.FlightView) {
	headers := []string{"ID", "TIME", "TYPE", "FLIGHT", "AIRLINE", "ROUTE", "GATE", "STAFF", "FLAGS"}
	rows := make([][]string, 0, len(views))

	for i := range views {
		v := &views[i]

		label := v.TimeLabel
		if v.IsNextDay {
			label += "+1"
		}

		rows = append(rows, []string{
			v.ID, label, string(v.Type), v.FlightNumber, v.AirlineCode, v.Route, v.Gate, v.Staff, flightFlags(v),
		})
	}

	printTable(w, headers, rows)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// confirm asks a yes/no question on the CLI's input. Anything but y or yes
// declines.
func confirm(cc *CLIContext, prompt string) bool {
	fmt.Fprintf(cc.Err, "%s [y/N] ", prompt)

	line, err := bufio.NewReader(cc.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
