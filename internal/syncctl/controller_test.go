package syncctl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/shiftplan/internal/docstore"
	"github.com/tonimelisma/shiftplan/internal/flight"
	"github.com/tonimelisma/shiftplan/internal/plan"
	"github.com/tonimelisma/shiftplan/internal/report"
)

const testPath = DefaultDocPath

var testNow = time.Date(2024, time.January, 10, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects callback events.
type recorder struct {
	mu        sync.Mutex
	notices   []Notice
	conflicts []ConflictPrompt
	states    []State
	changes   int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnChange: func(*plan.State) {
			r.mu.Lock()
			r.changes++
			r.mu.Unlock()
		},
		OnConflict: func(p ConflictPrompt) {
			r.mu.Lock()
			r.conflicts = append(r.conflicts, p)
			r.mu.Unlock()
		},
		OnNotice: func(n Notice) {
			r.mu.Lock()
			r.notices = append(r.notices, n)
			r.mu.Unlock()
		},
		OnState: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.notices)
}

func (r *recorder) conflictList() []ConflictPrompt {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]ConflictPrompt(nil), r.conflicts...)
}

// mutedStore delivers only the first snapshot of each subscription, like a
// client whose change notifications stopped arriving while it was away.
type mutedStore struct {
	*docstore.MemoryStore
}

func (m mutedStore) Subscribe(ctx context.Context, path string, opts docstore.SubscribeOptions) (<-chan docstore.Snapshot, error) {
	in, err := m.MemoryStore.Subscribe(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan docstore.Snapshot, 1)

	go func() {
		defer close(out)

		first := true
		for snap := range in {
			if first {
				out <- snap
				first = false
			}
		}
	}()

	return out, nil
}

// seedPlan writes a plan with one arrival and stamp ts to store.
func seedPlan(t *testing.T, store docstore.Store, ts int64, staff ...string) {
	t.Helper()

	s := plan.New()
	s.SetBase(time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	s.Staff = append(s.Staff, staff...)

	f := flight.Flight{ID: "A1", Type: flight.Arrival, FlightNumber: "PC3001", OriginalGate: "A1"}
	require.NoError(t, f.Reschedule(s.Base(testNow), "19:00", flight.ImportRolloverMinutes))
	s.Flights = append(s.Flights, f)
	s.LastMutationTimestamp = ts

	doc, err := s.Encode()
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), testPath, doc))
}

func storedPlan(t *testing.T, store docstore.Store) *plan.State {
	t.Helper()

	doc, err := store.Get(context.Background(), testPath)
	require.NoError(t, err)

	s, err := plan.Decode(doc)
	require.NoError(t, err)

	return s
}

func startController(t *testing.T, store docstore.Store, role Role, rec *recorder) *Controller {
	t.Helper()

	opts := Options{
		Role:               role,
		ResubscribeBackoff: 10 * time.Millisecond,
		Logger:             discardLogger(),
	}

	if rec != nil {
		opts.Callbacks = rec.callbacks()
	}

	c := New(store, opts)
	c.nowFunc = func() time.Time { return testNow }

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)

	return c
}

func TestNew_Defaults(t *testing.T) {
	c := New(docstore.NewMemoryStore(), Options{})

	assert.Equal(t, DefaultDocPath, c.opts.DocPath)
	assert.Equal(t, RoleObserver, c.Role())
	assert.Equal(t, DefaultStalenessThreshold, c.opts.StalenessThreshold)
	assert.Equal(t, DefaultResubscribeBackoff, c.opts.ResubscribeBackoff)
	assert.Equal(t, Disconnected, c.State())
}

func TestParseRoleAndResolution(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("root")
	assert.Error(t, err)

	res, err := ParseResolution("OVERWRITE")
	require.NoError(t, err)
	assert.Equal(t, ResolveOverwrite, res)

	_, err = ParseResolution("merge")
	assert.Error(t, err)
}

func TestStart_AppliesRemotePlan(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET")
	rec := &recorder{}

	c := startController(t, store, RoleAdmin, rec)

	assert.Equal(t, Writable, c.State())
	got := c.Plan()
	require.Len(t, got.Flights, 1)
	assert.Equal(t, []string{"AHMET"}, got.Staff)
	assert.Equal(t, int64(1000), got.LastMutationTimestamp)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []State{Subscribed, Writable}, rec.states)
	assert.Equal(t, 1, rec.changes)
}

func TestStart_MissingDocumentIsEmptyPlan(t *testing.T) {
	c := startController(t, docstore.NewMemoryStore(), RoleObserver, nil)

	assert.Equal(t, ReadOnly, c.State())
	assert.True(t, c.Plan().IsEmpty())
}

func TestStart_SubscribeFailure(t *testing.T) {
	store := docstore.NewMemoryStore()
	require.NoError(t, store.Close())

	c := New(store, Options{Logger: discardLogger()})
	err := c.Start(context.Background())

	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, Disconnected, c.State())
}

func TestMutate_WritesWithBumpedTimestamp(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, testNow.UnixMilli()-1000)
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	require.NoError(t, c.AssignStaff(ctx, "A1", "ahmet"))

	stored := storedPlan(t, store)
	assert.Equal(t, "AHMET", stored.Assignments["A1"])
	assert.Equal(t, testNow.UnixMilli(), stored.LastMutationTimestamp)

	// The clock has not moved, so the next write is stamped last+1.
	_, err := c.ToggleComplete(ctx, "A1")
	require.NoError(t, err)

	stored = storedPlan(t, store)
	assert.Equal(t, testNow.UnixMilli()+1, stored.LastMutationTimestamp)
	assert.Equal(t, []string{"A1"}, stored.CompletedIDs)
	assert.Equal(t, 2, stored.HistoryLen())
}

func TestMutate_FailedOperationWritesNothing(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	c := startController(t, store, RoleAdmin, nil)

	err := c.AssignStaff(context.Background(), "missing", "AHMET")
	require.ErrorIs(t, err, plan.ErrFlightNotFound)

	assert.Equal(t, int64(1000), storedPlan(t, store).LastMutationTimestamp)
}

func TestMutate_UnchangedWritesNothing(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET")
	c := startController(t, store, RoleAdmin, nil)

	added, err := c.AddStaff(context.Background(), "ahmet")
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, int64(1000), storedPlan(t, store).LastMutationTimestamp)
}

func TestMutate_StalenessThreshold(t *testing.T) {
	local := testNow.UnixMilli() - 60_000

	tests := []struct {
		name  string
		ahead int64
		stale bool
	}{
		{"just over threshold", 5001, true},
		{"at threshold", 5000, false},
		{"just under threshold", 4999, false},
		{"older remote", -100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := docstore.NewMemoryStore()
			seedPlan(t, mem, local)
			rec := &recorder{}
			c := startController(t, mutedStore{mem}, RoleAdmin, rec)

			// Another admin writes while this client hears nothing.
			seedPlan(t, mem, local+tt.ahead, "REMOTE")

			err := c.AssignStaff(context.Background(), "A1", "AHMET")

			if !tt.stale {
				require.NoError(t, err)
				assert.Equal(t, Writable, c.State())
				assert.Equal(t, "AHMET", storedPlan(t, mem).Assignments["A1"])

				return
			}

			require.ErrorIs(t, err, ErrStaleWrite)
			assert.Equal(t, ConflictPending, c.State())

			// Nothing was written and the local change is kept unstamped.
			stored := storedPlan(t, mem)
			assert.Equal(t, local+tt.ahead, stored.LastMutationTimestamp)
			assert.Empty(t, stored.Assignments)

			got := c.Plan()
			assert.Equal(t, "AHMET", got.Assignments["A1"])
			assert.Equal(t, local, got.LastMutationTimestamp)

			prompt := ConflictPrompt{RemoteTimestamp: local + tt.ahead, LocalTimestamp: local}
			assert.Equal(t, []ConflictPrompt{prompt}, rec.conflictList())

			p, ok := c.Conflict()
			require.True(t, ok)
			assert.Equal(t, 5001*time.Millisecond, p.Age())

			// Further writes are refused until the conflict is resolved.
			err = c.AssignStaff(context.Background(), "A1", "MEHMET")
			assert.ErrorIs(t, err, ErrStaleWrite)
		})
	}
}

// conflicted returns a controller in ConflictPending over mem, whose
// remote plan carries the REMOTE roster.
func conflicted(t *testing.T) (*Controller, *docstore.MemoryStore, int64) {
	t.Helper()

	mem := docstore.NewMemoryStore()
	local := testNow.UnixMilli() - 60_000
	seedPlan(t, mem, local)

	c := startController(t, mutedStore{mem}, RoleAdmin, nil)

	remote := local + 10_000
	seedPlan(t, mem, remote, "REMOTE")

	err := c.AssignStaff(context.Background(), "A1", "AHMET")
	require.ErrorIs(t, err, ErrStaleWrite)

	return c, mem, remote
}

func TestResolve_Refresh(t *testing.T) {
	c, _, remote := conflicted(t)

	require.NoError(t, c.Resolve(context.Background(), ResolveRefresh))

	assert.Equal(t, Writable, c.State())
	_, ok := c.Conflict()
	assert.False(t, ok)

	got := c.Plan()
	assert.Equal(t, []string{"REMOTE"}, got.Staff)
	assert.Empty(t, got.Assignments)
	assert.Equal(t, remote, got.LastMutationTimestamp)

	// Writes go through again.
	require.NoError(t, c.AssignStaff(context.Background(), "A1", "MEHMET"))
}

func TestResolve_Overwrite(t *testing.T) {
	c, mem, remote := conflicted(t)

	require.NoError(t, c.Resolve(context.Background(), ResolveOverwrite))

	assert.Equal(t, Writable, c.State())

	stored := storedPlan(t, mem)
	assert.Equal(t, "AHMET", stored.Assignments["A1"])
	assert.Empty(t, stored.Staff)
	assert.Greater(t, stored.LastMutationTimestamp, remote)
}

func TestResolve_Wait(t *testing.T) {
	c, mem, remote := conflicted(t)
	ctx := context.Background()

	require.NoError(t, c.Resolve(ctx, ResolveWait))

	assert.Equal(t, ReadOnly, c.State())
	_, ok := c.Conflict()
	assert.True(t, ok)

	err := c.AssignStaff(ctx, "A1", "MEHMET")
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, remote, storedPlan(t, mem).LastMutationTimestamp)

	// Coming back still finds the remote plan ahead.
	require.ErrorIs(t, c.Foreground(ctx), ErrStaleWrite)
	assert.Equal(t, ConflictPending, c.State())
}

func TestResolve_NoConflict(t *testing.T) {
	store := docstore.NewMemoryStore()
	c := startController(t, store, RoleAdmin, nil)

	assert.ErrorIs(t, c.Resolve(context.Background(), ResolveRefresh), ErrNoConflict)
}

func TestObserver_PermissionDenied(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	rec := &recorder{}
	c := startController(t, store, RoleObserver, rec)

	assert.Equal(t, ReadOnly, c.State())

	err := c.AssignStaff(context.Background(), "A1", "AHMET")
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, rec.noticeCount())

	_, err = c.Import(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrPermissionDenied)

	assert.Equal(t, int64(1000), storedPlan(t, store).LastMutationTimestamp)
	assert.Empty(t, c.Plan().Assignments)
}

func TestBackgroundForeground(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	c.Background()
	assert.Equal(t, ReadOnly, c.State())
	require.ErrorIs(t, c.AssignStaff(ctx, "A1", "AHMET"), ErrPermissionDenied)

	require.NoError(t, c.Foreground(ctx))
	assert.Equal(t, Writable, c.State())
	require.NoError(t, c.AssignStaff(ctx, "A1", "AHMET"))
}

func TestForeground_DetectsConflict(t *testing.T) {
	mem := docstore.NewMemoryStore()
	local := testNow.UnixMilli() - 60_000
	seedPlan(t, mem, local)
	rec := &recorder{}
	c := startController(t, mutedStore{mem}, RoleAdmin, rec)
	ctx := context.Background()

	c.Background()
	seedPlan(t, mem, local+10_000, "REMOTE")

	require.ErrorIs(t, c.Foreground(ctx), ErrStaleWrite)
	assert.Equal(t, ConflictPending, c.State())
	assert.Equal(t, []ConflictPrompt{{RemoteTimestamp: local + 10_000, LocalTimestamp: local}}, rec.conflictList())
}

func TestForeground_StoreUnavailableStaysReadOnly(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	c := startController(t, store, RoleAdmin, nil)

	c.Background()
	store.FailNext()

	require.ErrorIs(t, c.Foreground(context.Background()), ErrStoreUnavailable)
	assert.Equal(t, ReadOnly, c.State())
}

func TestSnapshots_ReplacePlanKeepLocalState(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	ctx := context.Background()

	admin := startController(t, store, RoleAdmin, nil)
	observer := startController(t, store, RoleObserver, nil)

	filters := plan.Filters{Direction: flight.Arrival, Search: "3001"}
	observer.SetFilters(filters)

	require.NoError(t, admin.AssignStaff(ctx, "A1", "AHMET"))

	require.Eventually(t, func() bool {
		return observer.Plan().Assignments["A1"] == "AHMET"
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, filters, observer.Filters())
	assert.Equal(t, RoleObserver, observer.Role())
	assert.Equal(t, ReadOnly, observer.State())

	views := observer.Flights()
	require.Len(t, views, 1)
	assert.Equal(t, "AHMET", views[0].Staff)
}

func TestSnapshots_OwnEchoesSettleOnLatestWrite(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET", "MEHMET")
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	for _, name := range []string{"AHMET", "MEHMET", "AHMET", "MEHMET"} {
		require.NoError(t, c.AssignStaff(ctx, "A1", name))
		assert.Equal(t, name, c.Plan().Assignments["A1"])
	}

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()

		return len(c.echoes) == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "MEHMET", c.Plan().Assignments["A1"])
	assert.Equal(t, storedPlan(t, store).LastMutationTimestamp, c.Plan().LastMutationTimestamp)
}

func TestSnapshots_UndecodableIsIgnored(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	rec := &recorder{}
	c := startController(t, store, RoleObserver, rec)

	require.NoError(t, store.Set(context.Background(), testPath, []byte(`{"flights":`)))

	require.Eventually(t, func() bool { return rec.noticeCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, c.Plan().Flights, 1)
}

func TestResubscribe_AfterFailure(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	rec := &recorder{}
	c := startController(t, store, RoleAdmin, rec)

	store.FailSubscriptions(testPath)

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		for _, s := range rec.states {
			if s == Disconnected {
				return true
			}
		}

		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return c.State() == Writable }, 5*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, rec.noticeCount(), 1)

	// The new subscription delivers later writes.
	seedPlan(t, store, 2000, "LATE")
	require.Eventually(t, func() bool {
		return len(c.Plan().Staff) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMutate_StoreUnavailable(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	rec := &recorder{}
	c := startController(t, store, RoleAdmin, rec)

	store.FailNext()

	err := c.AssignStaff(context.Background(), "A1", "AHMET")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, rec.noticeCount())

	// The change stays local and unstamped; the store is untouched.
	got := c.Plan()
	assert.Equal(t, "AHMET", got.Assignments["A1"])
	assert.Equal(t, int64(1000), got.LastMutationTimestamp)
	assert.Empty(t, storedPlan(t, store).Assignments)
	assert.Equal(t, Writable, c.State())
}

func TestUndo(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	rec := &recorder{}
	c := startController(t, store, RoleAdmin, rec)
	ctx := context.Background()

	require.NoError(t, c.AssignStaff(ctx, "A1", "AHMET"))
	require.NoError(t, c.Undo(ctx))

	stored := storedPlan(t, store)
	assert.Empty(t, stored.Assignments)
	assert.Zero(t, stored.HistoryLen())

	require.ErrorIs(t, c.Undo(ctx), plan.ErrEmptyHistory)
	assert.Equal(t, 1, rec.noticeCount())
}

func TestImport(t *testing.T) {
	store := docstore.NewMemoryStore()
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	grid := [][]string{
		{"10.01.2024"},
		{"FLIGHT NO", "STA", "AIRLINE", "STATIONS", "BRIDGE", "FLIGHT NO", "STD"},
		{"PC3001", "23:30", "PEGASUS", "SAW-AYT", "A1", "PC3002", "01:15"},
	}

	res, err := c.Import(ctx, grid, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	stored := storedPlan(t, store)
	require.Len(t, stored.Flights, 2)
	assert.Equal(t, "2024-01-10", stored.BaseDate)

	// A table without a header changes nothing.
	_, err = c.Import(ctx, [][]string{{"no header"}}, "")
	require.Error(t, err)
	assert.Len(t, storedPlan(t, store).Flights, 2)
}

func TestArchiveStats(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET", "MEHMET")
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	require.NoError(t, c.AssignStaff(ctx, "A1", "AHMET"))
	_, err := c.ToggleComplete(ctx, "A1")
	require.NoError(t, err)

	counts, err := c.ArchiveStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"AHMET": 1, "MEHMET": 0}, counts)

	doc, err := store.Get(ctx, ArchivePrefix+"2024-01-10")
	require.NoError(t, err)

	var archived map[string]int
	require.NoError(t, json.Unmarshal(doc, &archived))
	assert.Equal(t, counts, archived)

	stored := storedPlan(t, store)
	assert.True(t, stored.IsEmpty())
	assert.Equal(t, []string{"AHMET", "MEHMET"}, stored.Staff)
}

func TestArchiveStats_FailedArchiveKeepsPlan(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET")
	c := startController(t, store, RoleAdmin, nil)

	store.FailNext()

	_, err := c.ArchiveStats(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Len(t, storedPlan(t, store).Flights, 1)
	assert.Len(t, c.Plan().Flights, 1)
}

func TestCompleteNext(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000)
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	id, err := c.CompleteNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1", id)
	assert.Equal(t, []string{"A1"}, storedPlan(t, store).CompletedIDs)

	_, err = c.CompleteNext(ctx)
	require.ErrorIs(t, err, plan.ErrNoPendingFlight)
}

func TestRestore(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET")
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	backup := plan.New()
	backup.Staff = []string{"ZEYNEP"}
	backup.LastMutationTimestamp = 5

	doc, err := backup.Encode()
	require.NoError(t, err)
	require.NoError(t, c.Restore(ctx, doc))

	stored := storedPlan(t, store)
	assert.True(t, stored.IsEmpty())
	assert.Equal(t, []string{"ZEYNEP"}, stored.Staff)
	assert.Greater(t, stored.LastMutationTimestamp, int64(1000))

	require.ErrorIs(t, c.Restore(ctx, []byte("{")), plan.ErrInvalidInput)
	assert.Equal(t, []string{"ZEYNEP"}, storedPlan(t, store).Staff)
}

func setArchiveDay(t *testing.T, store docstore.Store, date string, counts map[string]int) {
	t.Helper()

	doc, err := json.Marshal(counts)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), ArchivePrefix+date, doc))
}

func TestArchiveDays(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET")
	setArchiveDay(t, store, "2024-01-08", map[string]int{"AHMET": 3})
	setArchiveDay(t, store, "2024-01-02", map[string]int{"MEHMET": 1})
	require.NoError(t, store.Set(context.Background(), ArchivePrefix+"notes", []byte(`{}`)))
	c := startController(t, store, RoleObserver, nil)
	ctx := context.Background()

	days, err := c.ArchiveDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2024-01-02", days[0].Date)
	assert.Equal(t, map[string]int{"AHMET": 3}, days[1].Counts)

	_, err = c.ArchiveDay(ctx, "2024-01-09")
	require.ErrorIs(t, err, ErrArchiveDayNotFound)

	_, err = c.ArchiveDay(ctx, "yesterday")
	require.ErrorIs(t, err, plan.ErrInvalidInput)
}

func TestPerformance(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET", "MEHMET")
	setArchiveDay(t, store, "2024-01-08", map[string]int{"MEHMET": 3})
	setArchiveDay(t, store, "2023-11-30", map[string]int{"AHMET": 9})
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	require.NoError(t, c.AssignStaff(ctx, "A1", "AHMET"))
	_, err := c.ToggleComplete(ctx, "A1")
	require.NoError(t, err)

	today, err := c.Performance(ctx, report.PeriodToday)
	require.NoError(t, err)
	assert.Equal(t, []report.Tally{{Name: "AHMET", Count: 1}, {Name: "MEHMET", Count: 0}}, today)

	week, err := c.Performance(ctx, report.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, []report.Tally{{Name: "MEHMET", Count: 3}, {Name: "AHMET", Count: 1}}, week)

	all, err := c.Performance(ctx, report.PeriodAll)
	require.NoError(t, err)
	assert.Equal(t, []report.Tally{{Name: "AHMET", Count: 10}, {Name: "MEHMET", Count: 3}}, all)
}

func TestArchiveDay_EditAddDelete(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET", "MEHMET")
	setArchiveDay(t, store, "2024-01-08", map[string]int{"AHMET": 3})
	c := startController(t, store, RoleAdmin, nil)
	ctx := context.Background()

	require.NoError(t, c.SaveArchiveDay(ctx, "2024-01-08", map[string]int{"AHMET": 2, "MEHMET": 1}))
	day, err := c.ArchiveDay(ctx, "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"AHMET": 2, "MEHMET": 1}, day.Counts)

	require.ErrorIs(t, c.SaveArchiveDay(ctx, "2024-01-09", map[string]int{"AHMET": 1}), ErrArchiveDayNotFound)
	require.ErrorIs(t, c.SaveArchiveDay(ctx, "2024-01-08", map[string]int{"AHMET": -1}), plan.ErrInvalidInput)

	added, err := c.AddArchiveDay(ctx, "2024-01-05", map[string]int{"MEHMET": 4})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"AHMET": 0, "MEHMET": 4}, added)

	_, err = c.AddArchiveDay(ctx, "2024-01-05", nil)
	require.ErrorIs(t, err, ErrArchiveDayExists)

	require.NoError(t, c.DeleteArchiveDay(ctx, "2024-01-08"))
	_, err = store.Get(ctx, ArchivePrefix+"2024-01-08")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	require.ErrorIs(t, c.DeleteArchiveDay(ctx, "2024-01-08"), ErrArchiveDayNotFound)

	days, err := c.ArchiveDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-01-05", days[0].Date)
}

func TestArchiveDay_ObserverCannotEdit(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedPlan(t, store, 1000, "AHMET")
	setArchiveDay(t, store, "2024-01-08", map[string]int{"AHMET": 3})
	c := startController(t, store, RoleObserver, nil)
	ctx := context.Background()

	require.ErrorIs(t, c.SaveArchiveDay(ctx, "2024-01-08", map[string]int{"AHMET": 0}), ErrPermissionDenied)
	require.ErrorIs(t, c.DeleteArchiveDay(ctx, "2024-01-08"), ErrPermissionDenied)

	_, err := c.AddArchiveDay(ctx, "2024-01-09", nil)
	require.ErrorIs(t, err, ErrPermissionDenied)

	day, err := c.ArchiveDay(ctx, "2024-01-08")
	require.NoError(t, err)
	assert.Equal(t, 3, day.Counts["AHMET"])
}
