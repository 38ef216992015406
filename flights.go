package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

// Visibility overrides offered as top-level commands.
const (
	focusOverride = focus.ForceFocus
	hideOverride  = focus.ForceHide
)

// errAmbiguousFlight is returned when a flight reference matches more than
// one record.
var errAmbiguousFlight = errors.New("flight reference is ambiguous")

// resolveFlight turns a CLI flight reference into a record ID. A reference
// is a full ID, a flight number, or a unique ID prefix, tried in that order.
func resolveFlight(s *plan.State, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty flight reference", plan.ErrInvalidInput)
	}

	if f := s.Find(ref); f != nil {
		return f.ID, nil
	}

	number := flight.Upper(ref)

	var byNumber, byPrefix []string

	for i := range s.Flights {
		f := &s.Flights[i]

		if f.FlightNumber == number {
			byNumber = append(byNumber, f.ID)
		}

		if strings.HasPrefix(f.ID, ref) {
			byPrefix = append(byPrefix, f.ID)
		}
	}

	for _, ids := range [][]string{byNumber, byPrefix} {
		switch len(ids) {
		case 0:
			continue
		case 1:
			return ids[0], nil
		default:
			return "", fmt.Errorf("%w: %q matches %s", errAmbiguousFlight, ref, strings.Join(ids, ", "))
		}
	}

	return "", fmt.Errorf("%w: %q", plan.ErrFlightNotFound, ref)
}

// flightCmd builds a command acting on one flight reference.
func flightCmd(use, short string, nargs int,
	run func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, args []string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(1, nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				id, err := resolveFlight(ctl.Plan(), args[0])
				if err != nil {
					return err
				}

				return run(ctx, cc, ctl, id, args[1:])
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	var (
		dir     string
		all     bool
		filters plan.Filters
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the flights of the current shift",
		Long: `List the flights in the shift window, with their gate, staff and status.

FLAGS column: C completed, D delayed, G gate changed, T time changed,
N new from the last import, M added by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir != "" {
				t, err := flight.ParseType(dir)
				if err != nil {
					return err
				}

				filters.Direction = t
			}

			return runSession(cmd, func(_ context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				ctl.SetFilters(filters)

				return runShow(cc, ctl.Plan(), ctl.Flights(), all)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&dir, "dir", "", "only arrivals (arr) or departures (dep)")
	f.StringVar(&filters.Staff, "staff", "", "only flights assigned to this name")
	f.BoolVar(&filters.HideCompleted, "hide-completed", false, "hide completed flights")
	f.BoolVar(&filters.UpdatedOnly, "updated", false, "only flights changed by the last import or edit")
	f.StringVar(&filters.Search, "search", "", "match flight number, airline, route or gate")
	f.BoolVar(&all, "all", false, "include flights outside the shift window")

	return cmd
}

func runShow(cc *CLIContext, p *plan.State, views []plan.FlightView, all bool) error {
	if !all {
		inFocus := views[:0]

		for i := range views {
			if views[i].InFocus {
				inFocus = append(inFocus, views[i])
			}
		}

		views = inFocus
	}

	if views == nil {
		views = []plan.FlightView{}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, views)
	}

	fmt.Fprintf(cc.Out, "%s  base %s  %d of %d flights  last write %s\n\n",
		p.ShiftConfig.Label(), p.BaseDate, len(views), len(p.Flights), formatMillis(p.LastMutationTimestamp))
	printFlights(cc.Out, views)

	return nil
}

func newAssignCmd() *cobra.Command {
	return flightCmd("assign <flight> [staff]", "Assign staff to a flight, or clear it", 2,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, args []string) error {
			staff := ""
			if len(args) > 0 {
				staff = args[0]
			}

			if err := ctl.AssignStaff(ctx, id, staff); err != nil {
				return err
			}

			if staff == "" {
				cc.Statusf("Cleared staff on %s\n", id)
			} else {
				cc.Statusf("Assigned %s to %s\n", flight.Upper(staff), id)
			}

			return nil
		})
}

func newGateCmd() *cobra.Command {
	cmd := flightCmd("gate <flight> <gate>", "Change a flight's gate and its paired leg's", 2,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, args []string) error {
			paired, err := ctl.UpdateGate(ctx, id, args[0])
			if err != nil {
				return err
			}

			cc.Statusf("Gate of %s set to %s\n", id, flight.Upper(args[0]))

			if paired != "" {
				cc.Statusf("Paired leg %s updated too\n", paired)
			}

			return nil
		})
	cmd.Args = cobra.ExactArgs(2)

	return cmd
}

func newTimeCmd() *cobra.Command {
	cmd := flightCmd("time <flight> <HH:MM>", "Change a flight's scheduled time", 2,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, args []string) error {
			changed, err := ctl.UpdateTime(ctx, id, args[0])
			if err != nil {
				return err
			}

			if !changed {
				cc.Statusf("%s already at %s\n", id, args[0])
				return nil
			}

			cc.Statusf("Time of %s set to %s\n", id, args[0])

			return nil
		})
	cmd.Args = cobra.ExactArgs(2)

	return cmd
}

func newCompleteCmd() *cobra.Command {
	var next bool

	cmd := flightCmd("complete <flight>", "Toggle a flight's completed mark", 1,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, _ []string) error {
			done, err := ctl.ToggleComplete(ctx, id)
			if err != nil {
				return err
			}

			cc.Statusf("%s completed: %t\n", id, done)

			return nil
		})

	byRef := cmd.RunE
	cmd.Use = "complete <flight> | --next"
	cmd.Args = func(cmd *cobra.Command, args []string) error {
		if next {
			return cobra.NoArgs(cmd, args)
		}

		return cobra.ExactArgs(1)(cmd, args)
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !next {
			return byRef(cmd, args)
		}

		return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
			id, err := ctl.CompleteNext(ctx)
			if errors.Is(err, plan.ErrNoPendingFlight) {
				cc.Statusf("No pending flight in focus\n")
				return nil
			}

			if err != nil {
				return err
			}

			if cc.Flags.JSON {
				p := ctl.Plan()
				return printJSON(cc.Out, p.View(p.Find(id)))
			}

			cc.Statusf("%s completed: true\n", id)

			return nil
		})
	}

	cmd.Flags().BoolVar(&next, "next", false, "complete the earliest pending flight in focus")

	return cmd
}

func newDelayCmd() *cobra.Command {
	return flightCmd("delay <flight>", "Toggle a flight's delayed flag", 1,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, _ []string) error {
			delayed, err := ctl.ToggleDelay(ctx, id)
			if err != nil {
				return err
			}

			cc.Statusf("%s delayed: %t\n", id, delayed)

			return nil
		})
}

func newOverrideCmd(name, short string, o focus.Override) *cobra.Command {
	return flightCmd(name+" <flight>", short+" (toggle)", 1,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, _ []string) error {
			set, err := ctl.ToggleOverride(ctx, id, o)
			if err != nil {
				return err
			}

			if set {
				cc.Statusf("%s: %s override set\n", id, o)
			} else {
				cc.Statusf("%s: override cleared\n", id)
			}

			return nil
		})
}

func newAddCmd() *cobra.Command {
	var (
		dir string
		in  plan.ManualFlight
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a flight by hand",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := flight.ParseType(dir)
			if err != nil {
				return err
			}

			in.Type = t

			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				f, err := ctl.AddManualFlight(ctx, in)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, f)
				}

				fmt.Fprintln(cc.Out, f.ID)

				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&dir, "type", "", "ARR or DEP")
	f.StringVar(&in.TimeLabel, "time", "", "scheduled time, HH:MM")
	f.StringVar(&in.FlightNumber, "flight", "", "flight number")
	f.StringVar(&in.Airline, "airline", "", "airline")
	f.StringVar(&in.Route, "route", "", "route")
	f.StringVar(&in.Gate, "gate", "", "gate")

	for _, name := range []string{"type", "time", "flight", "airline", "route"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newDeleteCmd() *cobra.Command {
	var yes bool

	cmd := flightCmd("delete <flight>", "Delete a flight and its annotations", 1,
		func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, _ []string) error {
			if !yes && !confirm(cc, fmt.Sprintf("Delete %s from the shared plan?", id)) {
				return errors.New("delete canceled")
			}

			f, err := ctl.DeleteFlight(ctx, id)
			if err != nil {
				return err
			}

			cc.Statusf("Deleted %s %s %s\n", f.Type, f.FlightNumber, f.TimeLabel)

			return nil
		})

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Undo the last change to the plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				err := ctl.Undo(ctx)
				if errors.Is(err, plan.ErrEmptyHistory) {
					cc.Statusf("Nothing to undo\n")
					return nil
				}

				if err != nil {
					return err
				}

				cc.Statusf("Undone, %d more steps available\n", ctl.Plan().HistoryLen())

				return nil
			})
		},
	}
}

func newBadgesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Manage update badges",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear every import and time-change badge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				if err := ctl.ClearUpdateBadges(ctx); err != nil {
					return err
				}

				cc.Statusf("Badges cleared\n")

				return nil
			})
		},
	})

	return cmd
}

func newHistoryCmd() *cobra.Command {
	return flightCmd("history <flight>", "Show a flight's recent gate and time changes", 1,
		func(_ context.Context, cc *CLIContext, ctl *syncctl.Controller, id string, _ []string) error {
			entries := ctl.Plan().ChangeLog(id)
			if entries == nil {
				entries = []plan.ChangeEntry{}
			}

			if cc.Flags.JSON {
				return printJSON(cc.Out, entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{formatMillis(e.Timestamp), e.Field, e.OldValue, e.NewValue})
			}

			printTable(cc.Out, []string{"WHEN", "FIELD", "OLD", "NEW"}, rows)

			return nil
		})
}
