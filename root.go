package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagRole       string
	flagStore      string
	flagStorePath  string
	flagStoreURL   string
	flagOnConflict string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that must run without a valid config,
// such as "config init" writing the first one.
const skipConfigAnnotation = "skipConfig"

// CLIFlags are the persistent flag values a command sees.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext carries the resolved configuration and logger into every
// subcommand through the command's context.
type CLIContext struct {
	Holder *config.Holder
	Logger *slog.Logger
	Level  *slog.LevelVar
	Flags  CLIFlags
	Out    io.Writer
	Err    io.Writer
	In     io.Reader

	env config.EnvOverrides
	cli config.CLIOverrides
}

// Cfg returns the current configuration.
func (cc *CLIContext) Cfg() *config.Config {
	return cc.Holder.Config()
}

// ReloadConfig re-resolves the configuration with the overrides the process
// started with, applies a new log level and reports what else changed. The
// old config stays in place when the new one is invalid.
func (cc *CLIContext) ReloadConfig() (config.Reload, error) {
	holder, err := config.Resolve(cc.env, cc.cli, cc.Logger)
	if err != nil {
		return config.Reload{}, fmt.Errorf("reloading config: %w", err)
	}

	cfg := holder.Config()

	r := cc.Holder.Update(cfg)
	if r.LogLevel {
		cc.Level.Set(logLevel(cfg, cc.Flags))
	}

	return r, nil
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("shiftplan: command ran without CLI context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shiftplan",
		Short:   "Shared shift plan for ramp operations",
		Long:    "Coordinate one shared flight shift plan between an admin and any number of observers.",
		Version: version,
		// Errors are printed by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVar(&flagRole, "role", "", "session role (admin or observer)")
	pf.StringVar(&flagStore, "store", "", "store backend (sqlite, file, redis, websocket, memory)")
	pf.StringVar(&flagStorePath, "store-path", "", "sqlite database file or document directory")
	pf.StringVar(&flagStoreURL, "store-url", "", "hub address for the websocket backend")
	pf.StringVar(&flagOnConflict, "on-conflict", "", "answer to a stale-write conflict (refresh, overwrite or wait)")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newAssignCmd())
	cmd.AddCommand(newGateCmd())
	cmd.AddCommand(newTimeCmd())
	cmd.AddCommand(newCompleteCmd())
	cmd.AddCommand(newDelayCmd())
	cmd.AddCommand(newOverrideCmd("focus", "Force a flight into focus", focusOverride))
	cmd.AddCommand(newOverrideCmd("hide", "Force a flight out of focus", hideOverride))
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newUndoCmd())
	cmd.AddCommand(newShiftCmd())
	cmd.AddCommand(newStaffCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newBadgesCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and installs the CLIContext for subcommands.
func loadConfig(cmd *cobra.Command) error {
	level := new(slog.LevelVar)
	flags := CLIFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet}

	cc := &CLIContext{
		Level: level,
		Flags: flags,
		Out:   cmd.OutOrStdout(),
		Err:   cmd.ErrOrStderr(),
		In:    cmd.InOrStdin(),
	}

	// Config loading logs through a flag-only logger until the file's
	// logging settings are known.
	cc.Logger = buildLogger(nil, flags, level, cmd.ErrOrStderr())

	if cmd.Annotations[skipConfigAnnotation] == "" {
		env, err := config.ReadEnvOverrides(config.DotEnvFile, cc.Logger)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.env = env
		cc.cli = cliOverrides(cmd)

		holder, err := config.Resolve(cc.env, cc.cli, cc.Logger)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.Holder = holder
		cc.Logger = buildLogger(holder.Config(), flags, level, cmd.ErrOrStderr())
	}

	cmd.SetContext(withCLIContext(cmd.Context(), cc))

	return nil
}

// cliOverrides passes only the flags the user explicitly set.
func cliOverrides(cmd *cobra.Command) config.CLIOverrides {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	set := func(name string, v string) *string {
		if cmd.Flags().Changed(name) {
			return &v
		}

		return nil
	}

	cli.Role = set("role", flagRole)
	cli.Backend = set("store", flagStore)
	cli.StorePath = set("store-path", flagStorePath)
	cli.StoreURL = set("store-url", flagStoreURL)

	return cli
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. The level lives in
// level so a config reload can change it on a running logger.
func buildLogger(cfg *config.Config, flags CLIFlags, level *slog.LevelVar, w io.Writer) *slog.Logger {
	format := "auto"
	level.Set(logLevel(cfg, flags))

	if cfg != nil {
		format = cfg.Logging.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSON(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// logLevel picks the level: config baseline, then flags.
func logLevel(cfg *config.Config, flags CLIFlags) slog.Level {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// useJSON resolves the "auto" format: text on a terminal, JSON otherwise.
func useJSON(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
