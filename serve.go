package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/config"
	"github.com/tonimelisma/shiftplan/internal/docstore"
	"github.com/tonimelisma/shiftplan/internal/docstore/hub"
)

// pidFileName is the running hub's PID file under the data directory.
const pidFileName = "serve.pid"

func defaultPIDPath() string {
	return filepath.Join(config.DefaultDataDir(), pidFileName)
}

func newServeCmd() *cobra.Command {
	var pidPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Share the configured store with remote sessions",
		Long: `Serve the configured backend over websockets on server.listen. Sessions on
other machines connect with store.backend = "websocket" and store.url set to
ws://<listen>/ws. Prometheus metrics are served on /metrics.

The hub re-reads its configuration on SIGHUP (see "serve reload"); the log
level and write limits for new connections take effect immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), mustCLIContext(cmd.Context()), pidPath)
		},
	}

	cmd.PersistentFlags().StringVar(&pidPath, "pid-file", defaultPIDPath(), "PID file used by serve reload")

	reload := &cobra.Command{
		Use:   "reload",
		Short: "Ask the running hub to re-read its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			rec, err := signalHub(pidPath, syscall.SIGHUP)
			if err != nil {
				return err
			}

			if rec.Listen != "" {
				cc.Statusf("Reload signal sent to the hub on %s (PID %d)\n", rec.Listen, rec.PID)
			} else {
				cc.Statusf("Reload signal sent to PID %d\n", rec.PID)
			}

			return nil
		},
	}

	cmd.AddCommand(reload)

	return cmd
}

func runServe(ctx context.Context, cc *CLIContext, pidPath string) error {
	cfg := cc.Cfg()

	if cfg.Store.Backend == docstore.BackendWebsocket {
		return errors.New("serve needs a local backend, not websocket")
	}

	release, err := acquirePIDFile(pidPath, hubRecord{PID: os.Getpid(), Listen: cfg.Server.Listen})
	if err != nil {
		return err
	}
	defer release()

	base, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx = shutdownContext(base, cc.Logger)

	store, err := docstore.Open(ctx, storeOptions(cfg), cc.Logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	srv := hub.New(store, hub.Config{
		Token:           cfg.Store.Token,
		WritesPerSecond: cfg.Server.WritesPerSecond,
		WriteBurst:      cfg.Server.WriteBurst,
		Logger:          cc.Logger,
	})

	onHangup(ctx, cc.Logger, func() {
		r, err := cc.ReloadConfig()
		if err != nil {
			cc.Logger.Error("config reload failed", slog.String("error", err.Error()))
			return
		}

		if r.WriteLimit {
			next := cc.Cfg()
			srv.SetWriteLimit(next.Server.WritesPerSecond, next.Server.WriteBurst)
		}

		if len(r.Restart) > 0 {
			cc.Logger.Warn("config changes need a restart", slog.Any("keys", r.Restart))
		}

		cc.Logger.Info("config reloaded",
			slog.Int("reloads", cc.Holder.Reloads()),
			slog.Bool("changed", r.Changed()),
		)
	})

	cc.Logger.Info("serving plan store",
		slog.String("backend", cfg.Store.Backend),
		slog.String("listen", cfg.Server.Listen),
		slog.Bool("auth", cfg.Store.Token != ""),
	)

	return srv.ListenAndServe(ctx, cfg.Server.Listen)
}
