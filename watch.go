package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/syncctl"
)

const watchHelp = `Commands:
  resolve refresh|overwrite|wait   settle a pending conflict
  background                       give up write permission
  foreground                       take it back, checking for newer changes
  undo                             undo the last change
  show                             print the shift's flights
  quit                             end the session
`

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the shared plan live",
		Long: `Stay connected to the shared plan and print every update, notice and
state change. Commands are read from standard input, one per line:

` + watchHelp,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

// watcher serializes the output of controller callbacks and console
// commands.
type watcher struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *watcher) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintf(w.out, format, args...)
}

func (w *watcher) callbacks() syncctl.Callbacks {
	return syncctl.Callbacks{
		OnChange: func(p *plan.State) {
			w.printf("plan: %d flights, %s, last write %s\n",
				len(p.Flights), p.ShiftConfig.Label(), formatMillis(p.LastMutationTimestamp))
		},
		OnConflict: func(p syncctl.ConflictPrompt) {
			w.printf("conflict: the shared plan is %s ahead of yours; answer with resolve refresh|overwrite|wait\n",
				p.Age().Round(time.Second))
		},
		OnNotice: func(n syncctl.Notice) {
			w.printf("%s: %s\n", strings.ToLower(n.Level.String()), n.Message)
		},
		OnState: func(s syncctl.State) {
			w.printf("state: %s\n", s)
		},
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	base, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(base, cc.Logger)

	w := &watcher{out: cc.Out}

	s, err := openSession(ctx, cc, w.callbacks())
	if err != nil {
		return err
	}
	defer s.Close()

	w.printf("watching %s as %s (%s)\n", cc.Cfg().Sync.DocPath, s.ctl.Role(), s.ctl.State())

	lines := make(chan string)

	go func() {
		defer close(lines)

		sc := bufio.NewScanner(cc.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input closed: keep following until interrupted.
				<-ctx.Done()
				return nil
			}

			quit, err := w.handle(ctx, cc, s.ctl, line)
			if err != nil {
				w.printf("error: %v\n", err)
			}

			if quit {
				return nil
			}
		}
	}
}

// handle runs one console command and reports whether the session ends.
func (w *watcher) handle(ctx context.Context, cc *CLIContext, ctl *syncctl.Controller, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	cc.Logger.Debug("watch command", slog.String("command", fields[0]))

	switch fields[0] {
	case "quit", "exit":
		return true, nil
	case "help":
		w.printf("%s", watchHelp)
	case "resolve":
		if len(fields) != 2 {
			return false, errors.New("usage: resolve refresh|overwrite|wait")
		}

		r, err := syncctl.ParseResolution(fields[1])
		if err != nil {
			return false, err
		}

		return false, ctl.Resolve(ctx, r)
	case "background":
		ctl.Background()
	case "foreground":
		err := ctl.Foreground(ctx)
		if errors.Is(err, syncctl.ErrStaleWrite) {
			// The conflict callback already prompted.
			return false, nil
		}

		return false, err
	case "undo":
		return false, ctl.Undo(ctx)
	case "show":
		w.mu.Lock()
		printFlights(w.out, ctl.Flights())
		w.mu.Unlock()
	default:
		return false, fmt.Errorf("unknown command %q, try help", fields[0])
	}

	return false, nil
}
