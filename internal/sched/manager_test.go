package sched

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gametimed/internal/clock"
	"gametimed/internal/convert"
	"gametimed/internal/storage"
	"gametimed/internal/units"
)

// manualTimers is a TimerHost fired by hand from tests.
type manualTimers struct {
	mu    sync.Mutex
	seq   int
	armed map[int]*manualTimer
}

type manualTimer struct {
	id      int
	delay   time.Duration
	fire    func()
	stopped bool
}

func newManualTimers() *manualTimers {
	return &manualTimers{armed: map[int]*manualTimer{}}
}

func (h *manualTimers) ArmOnce(delay time.Duration, onFire func()) TimerHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	t := &manualTimer{id: h.seq, delay: delay, fire: onFire}
	h.armed[t.id] = t
	return t
}

func (h *manualTimers) Disarm(handle TimerHandle) {
	t, ok := handle.(*manualTimer)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	t.stopped = true
	delete(h.armed, t.id)
}

// fireNext pops the earliest armed timer and runs it synchronously.
func (h *manualTimers) fireNext(t *testing.T) {
	t.Helper()
	h.mu.Lock()
	var next *manualTimer
	for _, mt := range h.armed {
		if next == nil || mt.id < next.id {
			next = mt
		}
	}
	if next != nil {
		delete(h.armed, next.id)
	}
	h.mu.Unlock()
	require.NotNil(t, next, "no timer armed")
	next.fire()
}

func (h *manualTimers) armedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.armed)
}

func (h *manualTimers) lastDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	var last *manualTimer
	for _, mt := range h.armed {
		if last == nil || mt.id > last.id {
			last = mt
		}
	}
	if last == nil {
		return -1
	}
	return last.delay
}

type fixture struct {
	clk    *clock.ManualClock
	timers *manualTimers
	store  *storage.Memory
	mgr    *Manager
	reg    *Registry
}

func newFixture(t *testing.T, now int64, factor float64) *fixture {
	t.Helper()
	tb, err := units.New(nil, factor)
	require.NoError(t, err)

	f := &fixture{
		clk:    clock.NewManual(now, factor),
		timers: newManualTimers(),
		store:  storage.NewMemory(),
		reg:    NewRegistry(),
	}
	f.mgr = New(convert.New(tb), f.clk, f.reg, Options{
		Timers: f.timers,
		Store:  f.store,
	})
	return f
}

func TestScheduleComputesInitialDelay(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3600, 2)
	require.NoError(t, f.reg.Register("noop", func(ctx context.Context, args json.RawMessage) error { return nil }))

	id, delay, err := f.mgr.Schedule(context.Background(), "noop", nil, map[string]int64{"min": 10}, false)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	// 600 game seconds at factor 2 is 300 real seconds.
	assert.InDelta(t, 300, delay, 1e-9)
	assert.Equal(t, 300*time.Second, f.timers.lastDelay())

	// The entry is persisted immediately.
	recs, err := f.store.LoadEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.False(t, recs[0].NeedsRecompute)
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, 1)
	require.NoError(t, f.reg.Register("noop", func(ctx context.Context, args json.RawMessage) error { return nil }))

	_, _, err := f.mgr.Schedule(context.Background(), "missing", nil, map[string]int64{"min": 5}, false)
	require.Error(t, err)

	_, _, err = f.mgr.Schedule(context.Background(), "noop", nil, map[string]int64{"fortnight": 1}, false)
	assert.ErrorIs(t, err, units.ErrUnknownUnit)

	// Nothing was stored or armed by the failed calls.
	recs, err := f.store.LoadEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, f.timers.armedCount())
}

func TestOneShotFiresAndCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, 1)

	var got json.RawMessage
	calls := 0
	require.NoError(t, f.reg.Register("record", func(ctx context.Context, args json.RawMessage) error {
		calls++
		got = args
		return nil
	}))

	args := json.RawMessage(`{"msg":"dawn"}`)
	id, _, err := f.mgr.Schedule(context.Background(), "record", args, map[string]int64{"hour": 6}, false)
	require.NoError(t, err)

	f.timers.fireNext(t)
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `{"msg":"dawn"}`, string(got))

	// One-shot: entry released everywhere.
	assert.Empty(t, f.mgr.Snapshot())
	recs, err := f.store.LoadEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.False(t, f.mgr.Cancel(id), "cancel after completion is a no-op")
}

func TestRepeatRearmsFromLiveClock(t *testing.T) {
	t.Parallel()
	// Game time 01:00:00 at factor 1, repeating at :10 past every hour.
	f := newFixture(t, 3600, 1)
	calls := 0
	require.NoError(t, f.reg.Register("tick", func(ctx context.Context, args json.RawMessage) error {
		calls++
		return nil
	}))

	_, delay, err := f.mgr.Schedule(context.Background(), "tick", nil, map[string]int64{"min": 10}, true)
	require.NoError(t, err)
	assert.InDelta(t, 600, delay, 1e-9)

	// The clock does not land exactly on the projection: it overshoots.
	f.clk.Set(3600 + 630)
	f.timers.fireNext(t)
	assert.Equal(t, 1, calls)

	// Re-arm used the live clock at 01:10:30. Unspecified units keep their
	// current values, so the next projection is 02:10:30, one hour out.
	require.Equal(t, 1, f.timers.armedCount())
	assert.Equal(t, 3600*time.Second, f.timers.lastDelay())

	snap := f.mgr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "armed", snap[0].State)
}

func TestRepeatRearmsAfterHandlerError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, 1)

	var hookID, hookHandler string
	var hookErr error
	f.mgr.errHook = func(id, handler string, err error) {
		hookID, hookHandler, hookErr = id, handler, err
	}

	boom := errors.New("boom")
	require.NoError(t, f.reg.Register("flaky", func(ctx context.Context, args json.RawMessage) error {
		return boom
	}))

	id, _, err := f.mgr.Schedule(context.Background(), "flaky", nil, map[string]int64{"min": 30}, true)
	require.NoError(t, err)

	f.clk.Set(30 * 60)
	f.timers.fireNext(t)

	// The failure reached the host's hook and the entry re-armed anyway.
	assert.Equal(t, id, hookID)
	assert.Equal(t, "flaky", hookHandler)
	assert.ErrorIs(t, hookErr, boom)
	assert.Equal(t, 1, f.timers.armedCount())
}

func TestCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, 1)
	calls := 0
	require.NoError(t, f.reg.Register("noop", func(ctx context.Context, args json.RawMessage) error {
		calls++
		return nil
	}))

	id, _, err := f.mgr.Schedule(context.Background(), "noop", nil, map[string]int64{"min": 5}, true)
	require.NoError(t, err)

	assert.True(t, f.mgr.Cancel(id))
	assert.False(t, f.mgr.Cancel(id), "second cancel is a no-op")
	assert.Zero(t, f.timers.armedCount())

	recs, err := f.store.LoadEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLateFireAfterCancelIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, 1)
	calls := 0
	require.NoError(t, f.reg.Register("noop", func(ctx context.Context, args json.RawMessage) error {
		calls++
		return nil
	}))

	id, _, err := f.mgr.Schedule(context.Background(), "noop", nil, map[string]int64{"min": 5}, false)
	require.NoError(t, err)

	// Keep a reference to the armed timer, cancel, then deliver the fire
	// that was already in flight.
	f.timers.mu.Lock()
	var inflight *manualTimer
	for _, mt := range f.timers.armed {
		inflight = mt
	}
	f.timers.mu.Unlock()
	require.NotNil(t, inflight)

	require.True(t, f.mgr.Cancel(id))
	inflight.fire()

	assert.Zero(t, calls, "handler must not run after cancel")
}

func TestSuspendMarksAndPersists(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, 1)
	require.NoError(t, f.reg.Register("noop", func(ctx context.Context, args json.RawMessage) error { return nil }))

	_, _, err := f.mgr.Schedule(context.Background(), "noop", nil, map[string]int64{"hour": 2}, true)
	require.NoError(t, err)
	_, _, err = f.mgr.Schedule(context.Background(), "noop", nil, map[string]int64{"min": 30}, false)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Suspend(context.Background()))
	assert.Zero(t, f.timers.armedCount(), "timers disarmed on suspend")

	recs, err := f.store.LoadEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.NeedsRecompute, "entry %s not marked", r.ID)
	}
}

func TestResumeRecomputesAgainstLiveClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// First life: schedule at game 01:00:00 targeting 02:00:00, then suspend.
	f := newFixture(t, 3600, 1)
	require.NoError(t, f.reg.Register("noop", func(ctx context.Context, args json.RawMessage) error { return nil }))
	id, delay, err := f.mgr.Schedule(ctx, "noop", nil, map[string]int64{"hour": 2, "min": 0}, true)
	require.NoError(t, err)
	assert.InDelta(t, 3600, delay, 1e-9)
	require.NoError(t, f.mgr.Suspend(ctx))

	// Second life shares the store; the game clock advanced non-linearly
	// during the outage (checkpoint restore landed at 01:45).
	tb, err := units.New(nil, 1)
	require.NoError(t, err)
	clk := clock.NewManual(3600+45*60, 1)
	timers := newManualTimers()
	reg := NewRegistry()
	require.NoError(t, reg.Register("noop", func(ctx context.Context, args json.RawMessage) error { return nil }))
	mgr := New(convert.New(tb), clk, reg, Options{Timers: timers, Store: f.store})

	require.NoError(t, mgr.Resume(ctx))

	// The stale one-hour delay is not reused: 15 minutes remain.
	require.Equal(t, 1, timers.armedCount())
	assert.Equal(t, 15*time.Minute, timers.lastDelay())

	// The recompute mark is cleared and re-persisted.
	recs, err := f.store.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.False(t, recs[0].NeedsRecompute)
}

func TestResumeDropsUnregisteredHandlers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemory()
	require.NoError(t, store.SaveEntry(ctx, storage.EntryRecord{
		ID:             "ghost",
		Handler:        "gone",
		Target:         map[string]int64{"min": 1},
		NeedsRecompute: true,
	}))

	tb, err := units.New(nil, 1)
	require.NoError(t, err)
	timers := newManualTimers()
	mgr := New(convert.New(tb), clock.NewManual(0, 1), NewRegistry(), Options{Timers: timers, Store: store})

	require.NoError(t, mgr.Resume(ctx))
	assert.Zero(t, timers.armedCount())
	recs, err := store.LoadEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	fn := func(ctx context.Context, args json.RawMessage) error { return nil }

	require.NoError(t, reg.Register("a", fn))
	require.Error(t, reg.Register("a", fn), "duplicate registration")
	require.Error(t, reg.Register("", fn))
	require.Error(t, reg.Register("b", nil))
	assert.Equal(t, []string{"a"}, reg.Names())
}
