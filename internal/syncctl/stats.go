package syncctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tonimelisma/shiftplan/internal/docstore"
	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/report"
)

var (
	// ErrArchiveDayNotFound is returned for edits of a day that was never
	// archived.
	ErrArchiveDayNotFound = errors.New("syncctl: archive day not found")

	// ErrArchiveDayExists is returned when adding a day that is already
	// archived.
	ErrArchiveDayExists = errors.New("syncctl: archive day already exists")
)

func archivePath(date string) (string, error) {
	if _, err := time.Parse(report.DateLayout, date); err != nil {
		return "", fmt.Errorf("%w: archive date %q is not YYYY-MM-DD", plan.ErrInvalidInput, date)
	}

	return ArchivePrefix + date, nil
}

func validCounts(counts map[string]int) error {
	for name, n := range counts {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty staff name", plan.ErrInvalidInput)
		}

		if n < 0 {
			return fmt.Errorf("%w: negative count %d for %s", plan.ErrInvalidInput, n, name)
		}
	}

	return nil
}

// ArchiveDays reads every archived day, oldest first. Documents not named
// by a date, and days that vanish between listing and reading, are skipped.
func (c *Controller) ArchiveDays(ctx context.Context) ([]report.ArchiveDay, error) {
	paths, err := c.store.List(ctx, strings.TrimSuffix(ArchivePrefix, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: listing archive: %w", ErrStoreUnavailable, err)
	}

	days := make([]report.ArchiveDay, 0, len(paths))

	for _, p := range paths {
		day, err := c.readArchiveDay(ctx, strings.TrimPrefix(p, ArchivePrefix))
		if errors.Is(err, ErrArchiveDayNotFound) || errors.Is(err, plan.ErrInvalidInput) {
			continue
		}

		if err != nil {
			return nil, err
		}

		days = append(days, day)
	}

	return days, nil
}

// ArchiveDay reads one archived day.
func (c *Controller) ArchiveDay(ctx context.Context, date string) (report.ArchiveDay, error) {
	return c.readArchiveDay(ctx, date)
}

func (c *Controller) readArchiveDay(ctx context.Context, date string) (report.ArchiveDay, error) {
	path, err := archivePath(date)
	if err != nil {
		return report.ArchiveDay{}, err
	}

	doc, err := c.store.Get(ctx, path)
	if errors.Is(err, docstore.ErrNotFound) {
		return report.ArchiveDay{}, fmt.Errorf("%w: %s", ErrArchiveDayNotFound, date)
	}

	if err != nil {
		return report.ArchiveDay{}, fmt.Errorf("%w: reading %s: %w", ErrStoreUnavailable, path, err)
	}

	counts := map[string]int{}
	if err := json.Unmarshal(doc, &counts); err != nil {
		return report.ArchiveDay{}, fmt.Errorf("syncctl: decoding %s: %w", path, err)
	}

	return report.ArchiveDay{Date: date, Counts: counts}, nil
}

// Performance totals completed flights per staff member over period, from
// the archive and the live plan.
func (c *Controller) Performance(ctx context.Context, period report.Period) ([]report.Tally, error) {
	var days []report.ArchiveDay

	if period != report.PeriodToday {
		var err error
		if days, err = c.ArchiveDays(ctx); err != nil {
			return nil, err
		}
	}

	return report.Performance(c.Plan(), days, period, c.nowFunc()), nil
}

// SaveArchiveDay replaces the counts of an archived day.
func (c *Controller) SaveArchiveDay(ctx context.Context, date string, counts map[string]int) error {
	c.mu.Lock()
	defer c.unlock()

	if err := c.writableLocked(); err != nil {
		c.deniedLocked("stats edit", err)
		return err
	}

	if _, err := c.readArchiveDay(ctx, date); err != nil {
		return err
	}

	return c.writeArchiveLocked(ctx, "stats edit", date, counts)
}

// AddArchiveDay archives a day that has no entry yet. Every roster name
// starts at zero; counts overrides individual names.
func (c *Controller) AddArchiveDay(ctx context.Context, date string, counts map[string]int) (map[string]int, error) {
	c.mu.Lock()
	defer c.unlock()

	if err := c.writableLocked(); err != nil {
		c.deniedLocked("stats add", err)
		return nil, err
	}

	_, err := c.readArchiveDay(ctx, date)

	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrArchiveDayExists, date)
	case !errors.Is(err, ErrArchiveDayNotFound):
		return nil, err
	}

	day := make(map[string]int, len(c.plan.Staff)+len(counts))
	for _, name := range c.plan.Staff {
		day[name] = 0
	}

	for name, n := range counts {
		day[name] = n
	}

	if err := c.writeArchiveLocked(ctx, "stats add", date, day); err != nil {
		return nil, err
	}

	return day, nil
}

func (c *Controller) writeArchiveLocked(ctx context.Context, name, date string, counts map[string]int) error {
	path, err := archivePath(date)
	if err != nil {
		return err
	}

	if err := validCounts(counts); err != nil {
		return err
	}

	doc, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("syncctl: encoding archive: %w", err)
	}

	if err := c.store.Set(ctx, path, doc); err != nil {
		err = fmt.Errorf("%w: writing %s: %w", ErrStoreUnavailable, path, err)
		c.unavailableLocked(name, err)

		return err
	}

	c.logger.Info("archive day written", slog.String("op", name), slog.String("path", path))

	return nil
}

// DeleteArchiveDay removes an archived day.
func (c *Controller) DeleteArchiveDay(ctx context.Context, date string) error {
	c.mu.Lock()
	defer c.unlock()

	if err := c.writableLocked(); err != nil {
		c.deniedLocked("stats delete", err)
		return err
	}

	if _, err := c.readArchiveDay(ctx, date); err != nil {
		return err
	}

	path := ArchivePrefix + date
	if err := c.store.Delete(ctx, path); err != nil {
		err = fmt.Errorf("%w: deleting %s: %w", ErrStoreUnavailable, path, err)
		c.unavailableLocked("stats delete", err)

		return err
	}

	c.logger.Info("archive day deleted", slog.String("path", path))

	return nil
}
