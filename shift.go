package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/focus"
	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/report"
	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

// shiftPresets are the windows used when "shift" gets only a mode.
var shiftPresets = map[focus.Mode][2]string{
	focus.ModeDay:   {"08:00", "20:00"},
	focus.ModeNight: {"20:00", "08:00"},
	focus.ModeAll:   {"08:00", "20:00"},
}

func newShiftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shift [day|night|all] [start end]",
		Short: "Show or set the shift window",
		Long: `Without arguments, print the current shift window. With a mode, set it;
day runs 08:00-20:00 and night 20:00-08:00 unless start and end are given.
An end before the start runs into the next day.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("accepts no arguments, a mode, or a mode with start and end; got %d", len(args))
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				if len(args) == 0 {
					fmt.Fprintln(cc.Out, ctl.Plan().ShiftConfig.Label())
					return nil
				}

				cfg, err := parseShift(args)
				if err != nil {
					return err
				}

				if err := ctl.SetShift(ctx, cfg); err != nil {
					return err
				}

				cc.Statusf("Shift set to %s\n", cfg.Label())

				return nil
			})
		},
	}
}

func parseShift(args []string) (focus.ShiftConfig, error) {
	mode, err := focus.ParseMode(args[0])
	if err != nil {
		return focus.ShiftConfig{}, err
	}

	window := shiftPresets[mode]
	if len(args) == 3 {
		window = [2]string{args[1], args[2]}
	}

	return focus.NewShiftConfig(mode, window[0], window[1])
}

func newStaffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage the staff roster",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, func(_ context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				staff := ctl.Plan().Staff
				if cc.Flags.JSON {
					return printJSON(cc.Out, staff)
				}

				for _, name := range staff {
					fmt.Fprintln(cc.Out, name)
				}

				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>...",
		Short: "Add names to the roster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				for _, name := range args {
					added, err := ctl.AddStaff(ctx, name)
					if err != nil {
						return err
					}

					if !added {
						cc.Statusf("%s is already on the roster\n", name)
					}
				}

				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove names from the roster; assignments stay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				for _, name := range args {
					removed, err := ctl.RemoveStaff(ctx, name)
					if err != nil {
						return err
					}

					if !removed {
						cc.Statusf("%s is not on the roster\n", name)
					}
				}

				return nil
			})
		},
	})

	return cmd
}

func newReportCmd() *cobra.Command {
	var shift bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the shift: progress, gaps, staff load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, func(_ context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				p := ctl.Plan()

				if shift {
					return printShiftReport(cc, report.ShiftReport(p))
				}

				return printAnalysis(cc, report.Analyze(p, time.Now()))
			})
		},
	}

	cmd.Flags().BoolVar(&shift, "shift", false, "print the end-of-shift report instead")

	return cmd
}

func printAnalysis(cc *CLIContext, a report.Analysis) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, a)
	}

	w := cc.Out
	fmt.Fprintf(w, "In focus:   %d of %d flights\n", a.InFocus, a.Total)
	fmt.Fprintf(w, "Completed:  %d (%d%%)\n", a.Completed, a.CompletionPercent)
	fmt.Fprintf(w, "Changes:    %d time, %d gate, %d new\n", a.TimeChanges, a.GateChanges, a.NewlyAdded)
	fmt.Fprintf(w, "Delayed:    %d\n", len(a.Delayed))

	if len(a.Upcoming) > 0 {
		fmt.Fprintln(w, "\nNext hour:")
		printFlights(w, a.Upcoming)
	}

	if len(a.Gaps) > 0 {
		fmt.Fprintln(w, "\nGaps:")

		for _, g := range a.Gaps {
			fmt.Fprintf(w, "  %s-%s  %d min\n", g.Start, g.End, g.Minutes)
		}
	}

	if len(a.StaffLoad) > 0 {
		fmt.Fprintln(w, "\nStaff:")

		rows := make([][]string, 0, len(a.StaffLoad))
		for _, s := range a.StaffLoad {
			rows = append(rows, []string{s.Name, fmt.Sprint(s.Done), fmt.Sprint(s.Total)})
		}

		printTable(w, []string{"NAME", "DONE", "TOTAL"}, rows)
	}

	return nil
}

func printShiftReport(cc *CLIContext, r report.Shift) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, r)
	}

	w := cc.Out
	fmt.Fprintf(w, "%s\n", r.Label)
	fmt.Fprintf(w, "Planned: %d arrivals, %d departures\n", r.PlannedArrivals, r.PlannedDepartures)
	fmt.Fprintf(w, "Served:  %d arrivals, %d departures\n\n", r.ServedArrivals, r.ServedDepartures)

	rows := make([][]string, 0, len(r.Rows))
	for i := range r.Rows {
		row := &r.Rows[i]
		rows = append(rows, []string{
			row.TimeLabel, string(row.Type), row.FlightNumber, row.Route, row.Gate, row.Staff,
			flightFlags(&row.FlightView), row.Class.String(),
		})
	}

	printTable(w, []string{"TIME", "TYPE", "FLIGHT", "ROUTE", "GATE", "STAFF", "FLAGS", "CLASS"}, rows)

	return nil
}

func newResetCmd() *cobra.Command {
	var archive, yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the plan for a new shift, keeping the roster",
		Long: `Clear every flight, annotation and history entry. The staff roster stays.

With --archive, the completed-flight count per staff member is first written
to statsArchive/<date>; the plan is only cleared once that write succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				if !yes && !confirm(cc, "Clear the shared plan for every session?") {
					return errors.New("reset canceled")
				}

				if !archive {
					if err := ctl.Reset(ctx); err != nil {
						return err
					}

					cc.Statusf("Plan cleared\n")

					return nil
				}

				counts, err := ctl.ArchiveStats(ctx)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, counts)
				}

				printArchive(cc, ctl.Plan(), counts)

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&archive, "archive", false, "archive per-staff completed counts first")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// printArchive lists counts in roster order.
func printArchive(cc *CLIContext, p *plan.State, counts map[string]int) {
	rows := make([][]string, 0, len(counts))
	for _, name := range p.Staff {
		rows = append(rows, []string{name, fmt.Sprint(counts[name])})
	}

	printTable(cc.Out, []string{"NAME", "COMPLETED"}, rows)
	cc.Statusf("Stats archived and plan cleared\n")
}
