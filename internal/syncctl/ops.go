package syncctl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/focus"
	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/report"
	"github.com/tonimelisma/shiftplan/internal/schedule"
)

// archiveDateLayout names the per-day stats archive documents.
const archiveDateLayout = report.DateLayout

// AssignStaff assigns staff to flight id; an empty name clears it.
func (c *Controller) AssignStaff(ctx context.Context, id, staff string) error {
	return c.Mutate(ctx, "assign", func(s *plan.State) error {
		return s.AssignStaff(id, staff)
	})
}

// UpdateGate sets a flight's gate and its paired leg's. It returns the
// paired flight's ID, empty when there is none.
func (c *Controller) UpdateGate(ctx context.Context, id, gate string) (string, error) {
	var paired string

	err := c.Mutate(ctx, "gate", func(s *plan.State) error {
		var err error
		paired, err = s.UpdateGate(id, gate, c.nowFunc())

		return err
	})

	return paired, err
}

// UpdateTime moves a flight to a new HH:MM label. It reports false when
// the label was already current.
func (c *Controller) UpdateTime(ctx context.Context, id, label string) (bool, error) {
	var changed bool

	err := c.Mutate(ctx, "time", func(s *plan.State) error {
		var err error
		if changed, err = s.UpdateTime(id, label, c.nowFunc()); err != nil {
			return err
		}

		if !changed {
			return errUnchanged
		}

		return nil
	})

	return changed, err
}

// ToggleComplete flips a flight's completion and reports the new value.
func (c *Controller) ToggleComplete(ctx context.Context, id string) (bool, error) {
	var done bool

	err := c.Mutate(ctx, "complete", func(s *plan.State) error {
		var err error
		done, err = s.ToggleComplete(id)

		return err
	})

	return done, err
}

// CompleteNext marks the earliest pending in-focus flight completed and
// returns its ID, or plan.ErrNoPendingFlight.
func (c *Controller) CompleteNext(ctx context.Context) (string, error) {
	var id string

	err := c.Mutate(ctx, "complete next", func(s *plan.State) error {
		var err error
		id, err = s.CompleteNext()

		return err
	})

	return id, err
}

// ToggleDelay flips a flight's delayed flag and reports the new value.
func (c *Controller) ToggleDelay(ctx context.Context, id string) (bool, error) {
	var delayed bool

	err := c.Mutate(ctx, "delay", func(s *plan.State) error {
		var err error
		delayed, err = s.ToggleDelay(id)

		return err
	})

	return delayed, err
}

// ToggleOverride toggles a visibility override and reports whether it is
// now set.
func (c *Controller) ToggleOverride(ctx context.Context, id string, o focus.Override) (bool, error) {
	var set bool

	err := c.Mutate(ctx, "override", func(s *plan.State) error {
		var err error
		set, err = s.ToggleOverride(id, o)

		return err
	})

	return set, err
}

// AddManualFlight inserts a hand-entered flight and returns a copy of it.
func (c *Controller) AddManualFlight(ctx context.Context, in plan.ManualFlight) (flight.Flight, error) {
	var added flight.Flight

	err := c.Mutate(ctx, "add", func(s *plan.State) error {
		f, err := s.AddManualFlight(in, c.nowFunc())
		if err != nil {
			return err
		}

		added = *f

		return nil
	})

	return added, err
}

// DeleteFlight removes a flight and its annotations and returns it.
func (c *Controller) DeleteFlight(ctx context.Context, id string) (flight.Flight, error) {
	var removed flight.Flight

	err := c.Mutate(ctx, "delete", func(s *plan.State) error {
		var err error
		removed, err = s.DeleteFlight(id)

		return err
	})

	return removed, err
}

// ClearUpdateBadges drops every import and time-change badge.
func (c *Controller) ClearUpdateBadges(ctx context.Context) error {
	return c.Mutate(ctx, "badges", func(s *plan.State) error {
		s.ClearUpdateBadges()
		return nil
	})
}

// SetShift replaces the shift window.
func (c *Controller) SetShift(ctx context.Context, cfg focus.ShiftConfig) error {
	return c.Mutate(ctx, "shift", func(s *plan.State) error {
		return s.SetShift(cfg)
	})
}

// AddStaff adds a roster name. It reports false, writing nothing, for a
// duplicate.
func (c *Controller) AddStaff(ctx context.Context, name string) (bool, error) {
	var added bool

	err := c.Mutate(ctx, "staff-add", func(s *plan.State) error {
		if added = s.AddStaff(name); !added {
			return errUnchanged
		}

		return nil
	})

	return added, err
}

// RemoveStaff drops a roster name. It reports false, writing nothing, when
// the name is not on the roster.
func (c *Controller) RemoveStaff(ctx context.Context, name string) (bool, error) {
	var removed bool

	err := c.Mutate(ctx, "staff-remove", func(s *plan.State) error {
		if removed = s.RemoveStaff(name); !removed {
			return errUnchanged
		}

		return nil
	})

	return removed, err
}

// Reset clears the plan for a new shift, keeping the roster.
func (c *Controller) Reset(ctx context.Context) error {
	return c.Mutate(ctx, "reset", func(s *plan.State) error {
		s.Reset()
		return nil
	})
}

// Restore replaces the whole plan with a decoded backup document.
func (c *Controller) Restore(ctx context.Context, doc []byte) error {
	backup, err := plan.Decode(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", plan.ErrInvalidInput, err)
	}

	return c.Mutate(ctx, "restore", func(s *plan.State) error {
		s.Restore(backup)

		c.logger.Info("plan restored from backup",
			slog.Int("flights", len(s.Flights)),
			slog.Int("staff", len(s.Staff)),
		)

		return nil
	})
}

// Import applies a schedule table to the plan. A missing header or an
// ambiguous strategy leaves the plan, and the store, untouched.
func (c *Controller) Import(ctx context.Context, g schedule.Grid, strategy schedule.Strategy) (schedule.Result, error) {
	var res schedule.Result

	err := c.Mutate(ctx, "import", func(s *plan.State) error {
		var err error
		if res, err = schedule.Import(s, g, strategy, c.nowFunc()); err != nil {
			return err
		}

		c.logger.Info("schedule imported",
			slog.String("strategy", string(res.Strategy)),
			slog.Int("updated", res.Updated),
			slog.Int("added", res.Added),
			slog.Int("unchanged", res.Unchanged),
		)

		return nil
	})

	return res, err
}

// ArchiveStats writes today's completed-flight counts per staff member to
// the stats archive, then resets the plan. The plan is only reset once the
// archive write succeeded.
func (c *Controller) ArchiveStats(ctx context.Context) (map[string]int, error) {
	c.mu.Lock()
	defer c.unlock()

	if err := c.writableLocked(); err != nil {
		c.deniedLocked("archive", err)
		return nil, err
	}

	counts := report.ArchiveCounts(c.plan)

	doc, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("syncctl: encoding archive: %w", err)
	}

	path := ArchivePrefix + c.nowFunc().Format(archiveDateLayout)
	if err := c.store.Set(ctx, path, doc); err != nil {
		err = fmt.Errorf("%w: writing %s: %w", ErrStoreUnavailable, path, err)
		c.unavailableLocked("archive", err)

		return nil, err
	}

	c.logger.Info("stats archived", slog.String("path", path), slog.Int("staff", len(counts)))

	err = c.mutateLocked(ctx, "reset", func(s *plan.State) error {
		s.Reset()
		return nil
	})

	return counts, err
}
