// Package syncctl keeps one client's copy of the shared plan in step with
// the document store. It owns the local plan, applies every snapshot the
// store delivers, and routes local mutations through an optimistic
// timestamp check before writing the whole document back.
//
// Only an admin whose session is live may write. A write is refused when the
// remote document is newer than the local copy by more than the staleness
// threshold; the controller then waits in ConflictPending until the operator
// resolves it with Resolve.
package syncctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tonimelisma/shiftplan/internal/docstore"
	"github.com/tonimelisma/shiftplan/internal/plan"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultDocPath            = "appState/main"
	DefaultStalenessThreshold = 5 * time.Second
	DefaultResubscribeBackoff = 5 * time.Second
)

// maxPendingEchoes bounds the own-write ledger for backends that coalesce
// snapshots and never deliver some echoes.
const maxPendingEchoes = 32

// ArchivePrefix is the parent path of the per-day stats archive documents.
const ArchivePrefix = "statsArchive/"

var (
	// ErrPermissionDenied is returned for writes by an observer or by an
	// admin whose session is not live.
	ErrPermissionDenied = errors.New("syncctl: permission denied")

	// ErrStaleWrite is returned when the remote plan is newer than the
	// local copy by more than the staleness threshold.
	ErrStaleWrite = errors.New("syncctl: remote plan is newer than local copy")

	// ErrStoreUnavailable wraps store failures during reads and writes.
	ErrStoreUnavailable = errors.New("syncctl: store unavailable")

	// ErrNoConflict is returned by Resolve when nothing is pending.
	ErrNoConflict = errors.New("syncctl: no conflict pending")

	// errUnchanged lets a mutation report that it did nothing, so there is
	// nothing to write.
	errUnchanged = errors.New("syncctl: unchanged")
)

// State is the controller's connection and permission state.
type State int

// Controller states.
const (
	Disconnected State = iota
	Subscribed
	Writable
	ReadOnly
	ConflictPending
)

func (s State) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	case Writable:
		return "writable"
	case ReadOnly:
		return "read-only"
	case ConflictPending:
		return "conflict-pending"
	default:
		return "disconnected"
	}
}

// Role is the local session's role. It is never written to the store.
type Role string

// Session roles.
const (
	RoleAdmin    Role = "admin"
	RoleObserver Role = "observer"
)

// ParseRole accepts "admin" or "observer" in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleObserver:
		return r, nil
	default:
		return "", fmt.Errorf("syncctl: unknown role %q", s)
	}
}

// ConflictPrompt is handed to the operator when a write or a foreground
// check finds the remote plan stale-newer than the local one.
type ConflictPrompt struct {
	RemoteTimestamp int64 `json:"remoteTimestamp"`
	LocalTimestamp  int64 `json:"localTimestamp"`
}

// Age is how far the remote plan is ahead of the local copy.
func (p ConflictPrompt) Age() time.Duration {
	return time.Duration(p.RemoteTimestamp-p.LocalTimestamp) * time.Millisecond
}

// Notice is a user-facing message emitted alongside a log line.
type Notice struct {
	Level   slog.Level
	Message string
}

// Callbacks receive controller events. They run on the goroutine that
// caused the event, after the controller's lock is released, and may be
// called concurrently. Nil callbacks are skipped.
type Callbacks struct {
	// OnChange receives a copy of the plan after every applied snapshot
	// and every accepted local write.
	OnChange func(*plan.State)

	OnConflict func(ConflictPrompt)
	OnNotice   func(Notice)
	OnState    func(State)
}

// Options configures a Controller.
type Options struct {
	DocPath            string
	Role               Role
	StalenessThreshold time.Duration
	ResubscribeBackoff time.Duration
	Logger             *slog.Logger
	Callbacks          Callbacks
}

// Controller synchronizes one client's plan with the store. All plan access
// goes through it; it is safe for concurrent use.
type Controller struct {
	store  docstore.Store
	opts   Options
	logger *slog.Logger

	nowFunc func() time.Time // injectable for deterministic tests

	mu         sync.Mutex
	plan       *plan.State
	filters    plan.Filters
	state      State
	subscribed bool // a subscription is open
	synced     bool // the open subscription delivered a snapshot
	live       bool // the session is in the foreground
	conflict   *ConflictPrompt
	echoes     []int64 // timestamps of own writes not yet delivered back
	events     []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a controller for store. It does not subscribe until Start.
func New(store docstore.Store, opts Options) *Controller {
	if opts.DocPath == "" {
		opts.DocPath = DefaultDocPath
	}

	if opts.Role == "" {
		opts.Role = RoleObserver
	}

	if opts.StalenessThreshold <= 0 {
		opts.StalenessThreshold = DefaultStalenessThreshold
	}

	if opts.ResubscribeBackoff <= 0 {
		opts.ResubscribeBackoff = DefaultResubscribeBackoff
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		store:   store,
		opts:    opts,
		logger:  opts.Logger.With(slog.String("doc", opts.DocPath), slog.String("role", string(opts.Role))),
		nowFunc: time.Now,
		plan:    plan.New(),
		live:    true,
	}
}

// Start subscribes to the plan document and blocks until the first snapshot
// has been applied. The subscription then runs in the background, and is
// re-established after ResubscribeBackoff whenever it fails, until ctx ends
// or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	ch, err := c.subscribe(runCtx)
	if err != nil {
		cancel()
		return err
	}

	select {
	case snap, ok := <-ch:
		if !ok || snap.Err != nil {
			cancel()
			c.dropSubscription(snap.Err)

			return fmt.Errorf("%w: initial snapshot: %w", ErrStoreUnavailable, snapErr(snap, ok))
		}

		c.apply(snap)
	case <-ctx.Done():
		cancel()
		c.dropSubscription(ctx.Err())

		return ctx.Err()
	}

	c.cancel = cancel
	c.wg.Add(1)

	go c.run(runCtx, ch)

	return nil
}

// Close stops the background subscription and waits for it to end. The
// store is left open.
func (c *Controller) Close() {
	if c.cancel != nil {
		c.cancel()
	}

	c.wg.Wait()
}

func snapErr(snap docstore.Snapshot, ok bool) error {
	if !ok {
		return docstore.ErrClosed
	}

	return snap.Err
}

func (c *Controller) subscribe(ctx context.Context) (<-chan docstore.Snapshot, error) {
	ch, err := c.store.Subscribe(ctx, c.opts.DocPath, docstore.SubscribeOptions{IncludeLocalEchoes: true})
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing: %w", ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	c.subscribed = true
	c.synced = false
	c.transitionLocked()
	c.unlock()

	c.logger.Debug("subscribed")

	return ch, nil
}

// run applies snapshots until the subscription fails, then resubscribes.
func (c *Controller) run(ctx context.Context, ch <-chan docstore.Snapshot) {
	defer c.wg.Done()

	for {
		err := c.consume(ch)

		if ctx.Err() != nil {
			c.dropSubscription(nil)
			return
		}

		c.dropSubscription(err)

		for {
			if !sleep(ctx, c.opts.ResubscribeBackoff) {
				return
			}

			next, err := c.subscribe(ctx)
			if err == nil {
				ch = next
				break
			}

			c.logger.Warn("resubscribe failed", slog.String("error", err.Error()))
		}
	}
}

// consume applies snapshots in delivery order until ch closes.
func (c *Controller) consume(ch <-chan docstore.Snapshot) error {
	for snap := range ch {
		if snap.Err != nil {
			return snap.Err
		}

		c.apply(snap)
	}

	return docstore.ErrClosed
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) dropSubscription(err error) {
	c.mu.Lock()
	c.subscribed = false
	c.synced = false

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("subscription lost", slog.String("error", err.Error()))
		c.noticeLocked(slog.LevelError, fmt.Sprintf("connection to the plan lost, retrying in %s", c.opts.ResubscribeBackoff))
	}

	c.transitionLocked()
	c.unlock()
}

// apply replaces the local plan with snap. Local-only state (role, filters,
// liveness) is untouched.
func (c *Controller) apply(snap docstore.Snapshot) {
	next := plan.New()

	if snap.Exists {
		decoded, err := plan.Decode(snap.Doc)
		if err != nil {
			c.mu.Lock()
			c.synced = true
			c.logger.Warn("ignoring undecodable plan snapshot", slog.String("error", err.Error()))
			c.noticeLocked(slog.LevelError, "received a plan that could not be read")
			c.transitionLocked()
			c.unlock()

			return
		}

		next = decoded
	}

	c.mu.Lock()

	if c.supersededEchoLocked(next.LastMutationTimestamp) {
		c.logger.Debug("skipping superseded echo", slog.Int64("timestamp", next.LastMutationTimestamp))
		c.unlock()

		return
	}

	c.plan = next
	c.synced = true

	c.logger.Debug("plan snapshot applied",
		slog.Int("flights", len(next.Flights)),
		slog.Int64("timestamp", next.LastMutationTimestamp),
		slog.Bool("pending_writes", snap.Metadata.HasPendingWrites),
	)

	c.changedLocked()
	c.transitionLocked()
	c.unlock()
}

// supersededEchoLocked reports whether ts is the echo of an own write that a
// later own write already replaced. Echoes up to ts are dropped from the
// ledger either way, since snapshots arrive in write order.
func (c *Controller) supersededEchoLocked(ts int64) bool {
	i := slices.Index(c.echoes, ts)
	if i < 0 {
		return false
	}

	superseded := i < len(c.echoes)-1
	c.echoes = c.echoes[i+1:]

	return superseded
}

func (c *Controller) expectEchoLocked(ts int64) {
	c.echoes = append(c.echoes, ts)
	if len(c.echoes) > maxPendingEchoes {
		c.echoes = c.echoes[len(c.echoes)-maxPendingEchoes:]
	}
}

// evaluateLocked derives the state from the connection, role, liveness and
// conflict flags.
func (c *Controller) evaluateLocked() State {
	switch {
	case !c.subscribed:
		return Disconnected
	case !c.synced:
		return Subscribed
	case c.conflict != nil && c.live:
		return ConflictPending
	case c.opts.Role == RoleAdmin && c.live:
		return Writable
	default:
		return ReadOnly
	}
}

func (c *Controller) transitionLocked() {
	next := c.evaluateLocked()
	if next == c.state {
		return
	}

	c.logger.Info("sync state changed", slog.String("from", c.state.String()), slog.String("to", next.String()))
	c.state = next

	if cb := c.opts.Callbacks.OnState; cb != nil {
		c.events = append(c.events, func() { cb(next) })
	}
}

func (c *Controller) changedLocked() {
	if cb := c.opts.Callbacks.OnChange; cb != nil {
		snapshot := c.plan.Clone()
		c.events = append(c.events, func() { cb(snapshot) })
	}
}

func (c *Controller) noticeLocked(level slog.Level, msg string) {
	if cb := c.opts.Callbacks.OnNotice; cb != nil {
		n := Notice{Level: level, Message: msg}
		c.events = append(c.events, func() { cb(n) })
	}
}

func (c *Controller) conflictLocked(p ConflictPrompt) {
	c.conflict = &p

	c.logger.Warn("remote plan is newer than local copy",
		slog.Int64("remote_ts", p.RemoteTimestamp),
		slog.Int64("local_ts", p.LocalTimestamp),
	)

	if cb := c.opts.Callbacks.OnConflict; cb != nil {
		c.events = append(c.events, func() { cb(p) })
	}

	c.transitionLocked()
}

// unlock releases the lock and then runs the queued callbacks in order.
func (c *Controller) unlock() {
	events := c.events
	c.events = nil
	c.mu.Unlock()

	for _, e := range events {
		e()
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Role returns the session role.
func (c *Controller) Role() Role {
	return c.opts.Role
}

// Plan returns a copy of the local plan.
func (c *Controller) Plan() *plan.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.plan.Clone()
}

// Conflict returns the pending conflict, if any.
func (c *Controller) Conflict() (ConflictPrompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conflict == nil {
		return ConflictPrompt{}, false
	}

	return *c.conflict, true
}

// SetFilters replaces this client's view filters.
func (c *Controller) SetFilters(f plan.Filters) {
	c.mu.Lock()
	c.filters = f
	c.mu.Unlock()
}

// Filters returns this client's view filters.
func (c *Controller) Filters() plan.Filters {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.filters
}

// Flights returns the flights that pass this client's filters.
func (c *Controller) Flights() []plan.FlightView {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.plan.Select(c.filters)
}
