package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/config"
	"github.com/tonimelisma/shiftplan/internal/docstore"
	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

// sessionStartTimeout bounds connecting to the store and receiving the
// first plan snapshot.
const sessionStartTimeout = 30 * time.Second

// storeOptions maps the [store] section onto docstore.Open.
func storeOptions(cfg *config.Config) docstore.Options {
	return docstore.Options{
		Backend:      cfg.Store.Backend,
		Path:         cfg.Store.ResolvedPath(),
		URL:          cfg.Store.URL,
		Token:        cfg.Store.Token,
		PollInterval: cfg.Store.PollEvery(),
		Redis: docstore.RedisOptions{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		},
	}
}

// controllerOptions maps the [sync] and [session] sections onto a
// controller. The role was validated with the config.
func controllerOptions(cfg *config.Config, logger *slog.Logger, cb syncctl.Callbacks) syncctl.Options {
	role, err := syncctl.ParseRole(cfg.Session.Role)
	if err != nil {
		role = syncctl.RoleObserver
	}

	return syncctl.Options{
		DocPath:            cfg.Sync.DocPath,
		Role:               role,
		StalenessThreshold: cfg.Sync.Staleness(),
		ResubscribeBackoff: cfg.Sync.Backoff(),
		Logger:             logger,
		Callbacks:          cb,
	}
}

// session is one connected controller plus the store it owns.
type session struct {
	store docstore.Store
	ctl   *syncctl.Controller
}

// openSession connects to the configured store and waits for the first
// plan snapshot.
func openSession(ctx context.Context, cc *CLIContext, cb syncctl.Callbacks) (*session, error) {
	cfg := cc.Cfg()

	startCtx, cancel := context.WithTimeout(ctx, sessionStartTimeout)
	defer cancel()

	store, err := docstore.Open(startCtx, storeOptions(cfg), cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	ctl := syncctl.New(store, controllerOptions(cfg, cc.Logger, cb))

	// The subscription must outlive the start timeout.
	if err := startController(ctx, startCtx, ctl); err != nil {
		store.Close()
		return nil, err
	}

	cc.Logger.Debug("session started",
		slog.String("backend", cfg.Store.Backend),
		slog.String("doc", cfg.Sync.DocPath),
		slog.String("role", string(ctl.Role())),
		slog.String("state", ctl.State().String()),
	)

	return &session{store: store, ctl: ctl}, nil
}

// startController runs Start under ctx, giving up when startCtx expires
// first.
func startController(ctx, startCtx context.Context, ctl *syncctl.Controller) error {
	done := make(chan error, 1)

	go func() { done <- ctl.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("connecting to plan: %w", err)
		}

		return nil
	case <-startCtx.Done():
		// Start returns once its own ctx ends; Close stops whatever it
		// managed to begin.
		go func() {
			if <-done == nil {
				ctl.Close()
			}
		}()

		return fmt.Errorf("connecting to plan: %w", startCtx.Err())
	}
}

func (s *session) Close() {
	s.ctl.Close()
	s.store.Close()
}

// runSession is the body of every one-shot plan command: connect, run fn,
// and turn a refused stale write into the conflict prompt.
func runSession(cmd *cobra.Command, fn func(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller) error) error {
	cc := mustCLIContext(cmd.Context())

	base, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(base, cc.Logger)

	s, err := openSession(ctx, cc, syncctl.Callbacks{})
	if err != nil {
		return err
	}
	defer s.Close()

	err = fn(ctx, cc, s.ctl)
	if !errors.Is(err, syncctl.ErrStaleWrite) {
		return err
	}

	return handleConflict(ctx, cc, s.ctl, err)
}

// handleConflict prints the conflict prompt and applies --on-conflict when
// it was given. Without it the stale-write error is returned unchanged.
func handleConflict(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, writeErr error) error {
	prompt, ok := ctl.Conflict()
	if !ok {
		return writeErr
	}

	printConflict(cc, prompt)

	if flagOnConflict == "" {
		cc.Statusf("Re-run with --on-conflict refresh|overwrite|wait to choose.\n")
		return writeErr
	}

	r, err := syncctl.ParseResolution(flagOnConflict)
	if err != nil {
		return err
	}

	if err := ctl.Resolve(ctx, r); err != nil {
		return fmt.Errorf("resolving conflict: %w", err)
	}

	switch r {
	case syncctl.ResolveRefresh:
		cc.Statusf("Loaded the shared plan; your change was discarded.\n")
	case syncctl.ResolveOverwrite:
		cc.Statusf("Your copy replaced the shared plan.\n")
	case syncctl.ResolveWait:
		cc.Statusf("Nothing was written; the session is read-only until resolved.\n")
		return writeErr
	}

	return nil
}

func printConflict(cc *CLIContext, p syncctl.ConflictPrompt) {
	cc.Statusf("The shared plan was changed elsewhere %s after your copy was loaded.\n",
		p.Age().Round(time.Second))
	cc.Statusf("  remote: %s\n  local:  %s\n",
		formatMillis(p.RemoteTimestamp), formatMillis(p.LocalTimestamp))
}
