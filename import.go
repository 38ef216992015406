package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/schedule"
	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

// utf8BOM is stripped from the first cell of exported spreadsheets.
const utf8BOM = "\ufeff"

func newImportCmd() *cobra.Command {
	var merge, replace, yes bool

	cmd := &cobra.Command{
		Use:   "import <schedule.csv>",
		Short: "Import a flight schedule table",
		Long: `Import a schedule exported from the planning spreadsheet as CSV.

The header row is located automatically ("FLIGHT NO" and "AIRLINE" within the
first rows). An empty plan is replaced; a plan that already has flights needs
--merge, which keeps annotations and updates gates, or --replace, which starts
over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := readGrid(args[0])
			if err != nil {
				return err
			}

			strategy := schedule.StrategyUnset

			switch {
			case merge:
				strategy = schedule.StrategyMerge
			case replace:
				strategy = schedule.StrategyReplace
			}

			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				return runImport(ctx, cc, ctl, grid, strategy, yes)
			})
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "merge into the existing plan")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the existing plan")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before replacing a non-empty plan")
	cmd.MarkFlagsMutuallyExclusive("merge", "replace")

	return cmd
}

func runImport(
	ctx context.Context, cc *CLIContext, ctl *syncctl.Controller,
	grid schedule.Grid, strategy schedule.Strategy, yes bool,
) error {
	if strategy == schedule.StrategyReplace && !yes && !ctl.Plan().IsEmpty() &&
		!confirm(cc, "Replace every flight and annotation in the shared plan?") {
		return errors.New("import canceled")
	}

	res, err := ctl.Import(ctx, grid, strategy)
	if errors.Is(err, schedule.ErrStrategyRequired) {
		return fmt.Errorf("the plan already has flights, re-run with --merge or --replace: %w", err)
	}

	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, res)
	}

	fmt.Fprintf(cc.Out, "Imported (%s, base date %s): %d added, %d updated, %d unchanged\n",
		res.Strategy, res.BaseDate, res.Added, res.Updated, res.Unchanged)

	return nil
}

// readGrid loads a CSV export into a cell grid. Rows may have different
// lengths, as spreadsheets drop trailing empty cells.
func readGrid(path string) (schedule.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schedule: %w", err)
	}
	defer f.Close()

	return parseGrid(f)
}

func parseGrid(r io.Reader) (schedule.Grid, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}

	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], utf8BOM)
	}

	return schedule.Grid(records), nil
}
