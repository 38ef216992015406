package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if cc.Flags.JSON {
				redacted := *cc.Cfg()
				if redacted.Store.Token != "" {
					redacted.Store.Token = "(set)"
				}

				if redacted.Store.RedisPassword != "" {
					redacted.Store.RedisPassword = "(set)"
				}

				return printJSON(cc.Out, redacted)
			}

			return config.RenderEffective(cc.Cfg(), cc.Holder.Path(), cc.Out)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Long: `Write a config file with every option present as a commented-out default.
It goes to --config, $SHIFTPLAN_CONFIG or the platform default, and an
existing file is never overwritten.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			env, err := config.ReadEnvOverrides(config.DotEnvFile, cc.Logger)
			if err != nil {
				return err
			}

			path := config.ConfigPath(env, config.CLIOverrides{ConfigPath: flagConfigPath})
			if err := config.WriteDefault(path); err != nil {
				return err
			}

			cc.Statusf("Wrote %s\n", path)

			return nil
		},
	}
}
