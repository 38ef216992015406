package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/report"
	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Staff performance and the stats archive",
		Long: `Report completed flights per staff member and manage the per-day stats
archive written by "reset --archive". Counts are given as NAME=N.`,
	}

	cmd.AddCommand(newStatsShowCmd())
	cmd.AddCommand(newStatsListCmd())
	cmd.AddCommand(newStatsEditCmd())
	cmd.AddCommand(newStatsAddCmd())
	cmd.AddCommand(newStatsDeleteCmd())

	return cmd
}

// parseCounts reads NAME=N arguments. Names are upper-cased like the roster.
func parseCounts(args []string) (map[string]int, error) {
	counts := make(map[string]int, len(args))

	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = flight.Upper(name)

		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q is not NAME=N", plan.ErrInvalidInput, arg)
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: count for %s must be a whole number >= 0", plan.ErrInvalidInput, name)
		}

		counts[name] = n
	}

	return counts, nil
}

func newStatsShowCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Completed flights per staff member over a period",
		Long: `Total completed flights per staff member. today reads the live plan; week,
month and all add the archived days in range, and today's live counts unless
today is already archived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := report.ParsePeriod(period)
			if err != nil {
				return err
			}

			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				tallies, err := ctl.Performance(ctx, p)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, tallies)
				}

				rows := make([][]string, 0, len(tallies))
				for _, t := range tallies {
					rows = append(rows, []string{t.Name, strconv.Itoa(t.Count)})
				}

				printTable(cc.Out, []string{"NAME", "COMPLETED"}, rows)

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&period, "period", string(report.PeriodToday), "today, week, month or all")

	return cmd
}

func newStatsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the archived days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				days, err := ctl.ArchiveDays(ctx)
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(cc.Out, days)
				}

				rows := make([][]string, 0, len(days))
				for _, d := range days {
					total := 0
					for _, n := range d.Counts {
						total += n
					}

					rows = append(rows, []string{d.Date, strconv.Itoa(len(d.Counts)), strconv.Itoa(total)})
				}

				printTable(cc.Out, []string{"DATE", "STAFF", "COMPLETED"}, rows)

				return nil
			})
		},
	}
}

// printArchiveDay lists a day's counts by name.
func printArchiveDay(cc *CLIContext, date string, counts map[string]int) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, report.ArchiveDay{Date: date, Counts: counts})
	}

	rows := make([][]string, 0, len(counts))
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}

	printTable(cc.Out, []string{"NAME", "COMPLETED"}, rows)

	return nil
}

func newStatsEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <date> [NAME=N]...",
		Short: "Show an archived day, or change its counts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseCounts(args[1:])
			if err != nil {
				return err
			}

			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				day, err := ctl.ArchiveDay(ctx, args[0])
				if err != nil {
					return err
				}

				if len(changes) > 0 {
					maps.Copy(day.Counts, changes)

					if err := ctl.SaveArchiveDay(ctx, day.Date, day.Counts); err != nil {
						return err
					}

					cc.Statusf("Archive day %s saved\n", day.Date)
				}

				return printArchiveDay(cc, day.Date, day.Counts)
			})
		},
	}
}

func newStatsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <date> [NAME=N]...",
		Short: "Archive a missing day; roster names start at zero",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := parseCounts(args[1:])
			if err != nil {
				return err
			}

			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				day, err := ctl.AddArchiveDay(ctx, args[0], counts)
				if err != nil {
					return err
				}

				cc.Statusf("Archive day %s added\n", args[0])

				return printArchiveDay(cc, args[0], day)
			})
		},
	}
}

func newStatsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <date>",
		Short: "Delete an archived day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				if !yes && !confirm(cc, fmt.Sprintf("Delete the archived stats of %s?", args[0])) {
					return errors.New("delete canceled")
				}

				if err := ctl.DeleteArchiveDay(ctx, args[0]); err != nil {
					return err
				}

				cc.Statusf("Archive day %s deleted\n", args[0])

				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}
