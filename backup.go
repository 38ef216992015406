package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore the whole plan as JSON",
	}

	cmd.AddCommand(newBackupExportCmd())
	cmd.AddCommand(newBackupRestoreCmd())

	return cmd
}

func newBackupExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the plan document to a file, or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, func(_ context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				doc, err := ctl.Plan().Encode()
				if err != nil {
					return err
				}

				if len(args) == 0 || args[0] == "-" {
					_, err = fmt.Fprintln(cc.Out, string(doc))
					return err
				}

				if err := os.WriteFile(args[0], doc, 0o600); err != nil {
					return fmt.Errorf("writing backup: %w", err)
				}

				cc.Statusf("Plan written to %s\n", args[0])

				return nil
			})
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the shared plan with a backup",
		Long: `Replace the whole shared plan, undo history included, with a document
written by "backup export". Use - to read it from stdin. The restore itself
cannot be undone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			if args[0] == "-" && !yes {
				return errors.New("restoring from stdin needs --yes")
			}

			doc, err := readBackup(cc, args[0])
			if err != nil {
				return err
			}

			return runSession(cmd, func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error {
				if !yes && !confirm(cc, "Replace the shared plan for every session?") {
					return errors.New("restore canceled")
				}

				if err := ctl.Restore(ctx, doc); err != nil {
					return err
				}

				p := ctl.Plan()
				cc.Statusf("Plan restored: %d flights, %d staff\n", len(p.Flights), len(p.Staff))

				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func readBackup(cc *CLIContext, path string) ([]byte, error) {
	if path == "-" {
		doc, err := io.ReadAll(cc.In)
		if err != nil {
			return nil, fmt.Errorf("reading backup: %w", err)
		}

		return doc, nil
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backup: %w", err)
	}

	return doc, nil
}
