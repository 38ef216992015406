package syncctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tonimelisma/shiftplan/internal/docstore"
	"github.com/tonimelisma/shiftplan/internal/plan"
)

// Resolution is the operator's answer to a ConflictPrompt.
type Resolution string

// Conflict resolutions.
const (
	// ResolveRefresh discards the local copy and loads the remote plan.
	ResolveRefresh Resolution = "refresh"

	// ResolveOverwrite pushes the local copy over the remote plan.
	ResolveOverwrite Resolution = "overwrite"

	// ResolveWait leaves both copies alone and drops write permission until
	// the session is foregrounded again.
	ResolveWait Resolution = "wait"
)

// ParseResolution accepts "refresh", "overwrite" or "wait".
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case ResolveRefresh, ResolveOverwrite, ResolveWait:
		return r, nil
	default:
		return "", fmt.Errorf("syncctl: unknown resolution %q", s)
	}
}

// writableLocked reports why the session may not write, or nil.
func (c *Controller) writableLocked() error {
	switch {
	case c.opts.Role != RoleAdmin:
		return fmt.Errorf("%w: role %s is read-only", ErrPermissionDenied, c.opts.Role)
	case !c.subscribed || !c.synced:
		return fmt.Errorf("%w: not connected", ErrStoreUnavailable)
	case c.conflict != nil && c.live:
		return ErrStaleWrite
	case !c.live:
		return fmt.Errorf("%w: session is in the background", ErrPermissionDenied)
	default:
		return nil
	}
}

// Mutate applies fn to the local plan and writes the result. fn must take
// its own history snapshot when it changes anything; when it returns an
// error the plan is not written. name labels the operation in logs.
func (c *Controller) Mutate(ctx context.Context, name string, fn func(*plan.State) error) error {
	c.mu.Lock()
	defer c.unlock()

	return c.mutateLocked(ctx, name, fn)
}

func (c *Controller) mutateLocked(ctx context.Context, name string, fn func(*plan.State) error) error {
	if err := c.writableLocked(); err != nil {
		c.deniedLocked(name, err)
		return err
	}

	if err := fn(c.plan); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}

		return err
	}

	return c.pushLocked(ctx, name, false)
}

func (c *Controller) deniedLocked(name string, err error) {
	c.logger.Info("write rejected", slog.String("op", name), slog.String("error", err.Error()))

	switch {
	case errors.Is(err, ErrPermissionDenied):
		c.noticeLocked(slog.LevelWarn, "read-only session, change not saved")
	case errors.Is(err, ErrStaleWrite):
		c.noticeLocked(slog.LevelWarn, "resolve the pending conflict before making changes")
	default:
		c.noticeLocked(slog.LevelError, "not connected to the plan, change not saved")
	}
}

// remoteTimestampLocked reads lastMutationTimestamp from the stored plan. A
// missing document reads as zero.
func (c *Controller) remoteTimestampLocked(ctx context.Context) (int64, error) {
	doc, err := c.store.Get(ctx, c.opts.DocPath)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("%w: reading remote timestamp: %w", ErrStoreUnavailable, err)
	}

	var head struct {
		LastMutationTimestamp int64 `json:"lastMutationTimestamp"`
	}

	if err := json.Unmarshal(doc, &head); err != nil {
		// An unreadable remote plan cannot be newer than ours.
		c.logger.Warn("remote plan is unreadable", slog.String("error", err.Error()))
		return 0, nil
	}

	return head.LastMutationTimestamp, nil
}

// staleLocked reports whether remote is newer than the local copy by more
// than the staleness threshold.
func (c *Controller) staleLocked(remote int64) bool {
	local := c.plan.LastMutationTimestamp

	return remote > local && remote-local > c.opts.StalenessThreshold.Milliseconds()
}

// pushLocked is the write path: check the remote timestamp, bump the local
// one, write the whole plan. A stale check leaves the local change in place
// and raises a conflict; force skips the check and stamps the plan newer
// than the remote copy.
func (c *Controller) pushLocked(ctx context.Context, name string, force bool) error {
	remote, err := c.remoteTimestampLocked(ctx)
	if err != nil {
		c.unavailableLocked(name, err)
		return err
	}

	if !force && c.staleLocked(remote) {
		c.conflictLocked(ConflictPrompt{RemoteTimestamp: remote, LocalTimestamp: c.plan.LastMutationTimestamp})
		return ErrStaleWrite
	}

	prev := c.plan.LastMutationTimestamp

	next := max(c.nowFunc().UnixMilli(), prev+1)
	if force {
		next = max(next, remote+1)
	}

	c.plan.LastMutationTimestamp = next

	doc, err := c.plan.Encode()
	if err != nil {
		c.plan.LastMutationTimestamp = prev
		return err
	}

	c.expectEchoLocked(next)

	if err := c.store.Set(ctx, c.opts.DocPath, doc); err != nil {
		c.plan.LastMutationTimestamp = prev
		c.echoes = slices.DeleteFunc(c.echoes, func(ts int64) bool { return ts == next })
		err = fmt.Errorf("%w: writing plan: %w", ErrStoreUnavailable, err)
		c.unavailableLocked(name, err)

		return err
	}

	c.logger.Debug("plan written",
		slog.String("op", name),
		slog.Int64("timestamp", next),
		slog.Int("bytes", len(doc)),
	)

	c.changedLocked()

	return nil
}

func (c *Controller) unavailableLocked(name string, err error) {
	c.logger.Warn("plan write failed", slog.String("op", name), slog.String("error", err.Error()))
	c.noticeLocked(slog.LevelError, "could not reach the plan store, change kept locally")
}

// Undo restores the newest history snapshot and writes the result.
func (c *Controller) Undo(ctx context.Context) error {
	return c.Mutate(ctx, "undo", func(s *plan.State) error {
		err := s.Undo()
		if errors.Is(err, plan.ErrEmptyHistory) {
			c.noticeLocked(slog.LevelInfo, "nothing to undo")
		}

		return err
	})
}

// Background drops write permission, as when the session loses focus.
func (c *Controller) Background() {
	c.mu.Lock()
	c.live = false
	c.transitionLocked()
	c.unlock()
}

// Foreground restores liveness. For an admin it re-reads the remote
// timestamp first and enters ConflictPending, returning ErrStaleWrite, when
// the remote plan moved on while the session was away.
func (c *Controller) Foreground(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()

	if c.opts.Role != RoleAdmin || !c.synced {
		c.live = true
		c.transitionLocked()

		return nil
	}

	remote, err := c.remoteTimestampLocked(ctx)
	if err != nil {
		c.unavailableLocked("foreground", err)
		return err
	}

	c.live = true

	if c.staleLocked(remote) {
		c.conflictLocked(ConflictPrompt{RemoteTimestamp: remote, LocalTimestamp: c.plan.LastMutationTimestamp})
		return ErrStaleWrite
	}

	c.conflict = nil
	c.transitionLocked()

	return nil
}

// Resolve settles the pending conflict.
func (c *Controller) Resolve(ctx context.Context, r Resolution) error {
	c.mu.Lock()
	defer c.unlock()

	if c.conflict == nil {
		return ErrNoConflict
	}

	c.logger.Info("resolving conflict", slog.String("resolution", string(r)))

	switch r {
	case ResolveRefresh:
		next := plan.New()

		doc, err := c.store.Get(ctx, c.opts.DocPath)
		switch {
		case err == nil:
			if next, err = plan.Decode(doc); err != nil {
				return err
			}
		case !errors.Is(err, docstore.ErrNotFound):
			err = fmt.Errorf("%w: reading plan: %w", ErrStoreUnavailable, err)
			c.unavailableLocked("refresh", err)

			return err
		}

		c.plan = next
		c.changedLocked()

	case ResolveOverwrite:
		if err := c.pushLocked(ctx, "overwrite", true); err != nil {
			return err
		}

	case ResolveWait:
		c.live = false
		c.transitionLocked()

		return nil

	default:
		return fmt.Errorf("syncctl: unknown resolution %q", r)
	}

	c.conflict = nil
	c.live = true
	c.transitionLocked()

	return nil
}
