// Package sched schedules named handlers to fire when the game clock
// reaches a partially specified target time. Entries persist through a
// storage.Store and are recomputed against the live clock after every
// suspend, so a delay computed before a shutdown is never reused verbatim.
package sched

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gametimed/internal/clock"
	"gametimed/internal/convert"
	"gametimed/internal/eventbus"
	"gametimed/internal/storage"
	logx "gametimed/pkg/logx"
)

// Options configures a Manager. Zero values get safe defaults.
type Options struct {
	Timers TimerHost     // default: RealTimers()
	Store  storage.Store // nil disables persistence
	Log    logx.Logger
	Bus    eventbus.Bus // nil disables event publishing

	// OnHandlerError receives every handler failure. The manager never
	// retries; any retry policy belongs to the host. Repeating entries
	// re-arm even after a failure.
	OnHandlerError func(id, handler string, err error)
}

type Manager struct {
	mu sync.Mutex

	log    logx.Logger
	conv   *convert.Converter
	clk    clock.GameClock
	timers TimerHost
	store  storage.Store
	reg    *Registry
	bus    eventbus.Bus

	entries map[string]*entry

	errHook  func(id, handler string, err error)
	errLimit *rate.Limiter // caps handler-failure log volume, hook is never limited

	suspended bool
}

func New(conv *convert.Converter, clk clock.GameClock, reg *Registry, opt Options) *Manager {
	if opt.Timers == nil {
		opt.Timers = RealTimers()
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	return &Manager{
		log:      opt.Log,
		conv:     conv,
		clk:      clk,
		timers:   opt.Timers,
		store:    opt.Store,
		reg:      reg,
		bus:      opt.Bus,
		entries:  map[string]*entry{},
		errHook:  opt.OnHandlerError,
		errLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Registry returns the handler registry this manager resolves against.
func (m *Manager) Registry() *Registry { return m.reg }

// Schedule computes the real delay until the game clock next matches target
// and arms a one-shot timer for it. It returns the entry id and the initial
// delay in real seconds. Nothing is mutated when the handler is unknown or
// the target names an unconfigured unit.
func (m *Manager) Schedule(ctx context.Context, handler string, args json.RawMessage, target map[string]int64, repeat bool) (string, float64, error) {
	if _, ok := m.reg.lookup(handler); !ok {
		return "", 0, fmt.Errorf("handler %q not registered", handler)
	}

	// Copy the caller's map; the entry owns its target.
	tgt := make(map[string]int64, len(target))
	for k, v := range target {
		tgt[k] = v
	}

	delay, err := m.conv.ResolveNextOccurrence(m.clk.Now(), tgt)
	if err != nil {
		return "", 0, err
	}

	m.mu.Lock()
	if m.suspended {
		m.mu.Unlock()
		return "", 0, fmt.Errorf("manager is suspended")
	}
	e := &entry{
		id:        uuid.NewString(),
		handler:   handler,
		args:      args,
		target:    tgt,
		repeat:    repeat,
		state:     StatePending,
		createdAt: time.Now(),
	}
	m.entries[e.id] = e
	m.armLocked(e, delay)
	m.persistLocked(ctx, e)
	m.mu.Unlock()

	m.log.Debug("entry scheduled",
		logx.String("id", e.id),
		logx.String("handler", handler),
		logx.Bool("repeat", repeat),
		logx.Float64("delay_secs", delay))
	m.publish(eventbus.TypeScheduleCreated, e.id, handler)
	return e.id, delay, nil
}

// publish sends a bus event when a bus is wired. Never blocks.
func (m *Manager) publish(typ, id, handler string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Type: typ,
		Data: map[string]string{"id": id, "handler": handler},
	})
}

// Cancel removes an entry and disarms its timer. Idempotent; returns false
// when the entry is already gone.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if e.timer != nil {
		m.timers.Disarm(e.timer)
	}
	e.state = StateCancelled
	delete(m.entries, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteEntry(context.Background(), id); err != nil {
			m.log.Warn("entry delete failed", logx.String("id", id), logx.Err(err))
		}
	}
	m.log.Debug("entry cancelled", logx.String("id", id))
	m.publish(eventbus.TypeScheduleCancelled, id, e.handler)
	return true
}

// Suspend marks every entry for recomputation and persists it. Called by the
// host on graceful shutdown or reload; no timer fires after it returns.
func (m *Manager) Suspend(ctx context.Context) error {
	m.mu.Lock()
	m.suspended = true
	dirty := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.timer != nil {
			m.timers.Disarm(e.timer)
			e.timer = nil
		}
		e.needsRecompute = true
		dirty = append(dirty, e)
	}
	m.mu.Unlock()

	var firstErr error
	for _, e := range dirty {
		m.mu.Lock()
		rec := e.record()
		m.mu.Unlock()
		if m.store != nil {
			if err := m.store.SaveEntry(ctx, rec); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	m.log.Info("schedules suspended", logx.Int("entries", len(dirty)))
	return firstErr
}

// Resume restores entries from the store and re-arms them. Every restored
// entry gets a freshly computed delay against the live game clock; a delay
// computed before the suspension is never reused, since real downtime would
// silently desynchronize the fire time. Entries whose handler is no longer
// registered are dropped with a warning.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	records, err := m.store.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}

	restored := 0
	for _, rec := range records {
		if _, ok := m.reg.lookup(rec.Handler); !ok {
			m.log.Warn("dropping entry with unregistered handler",
				logx.String("id", rec.ID), logx.String("handler", rec.Handler))
			if err := m.store.DeleteEntry(ctx, rec.ID); err != nil {
				m.log.Warn("entry delete failed", logx.String("id", rec.ID), logx.Err(err))
			}
			continue
		}
		if !rec.NeedsRecompute {
			// Crash path: the entry was never marked. The delay is not
			// persisted anywhere, so it is recomputed all the same.
			m.log.Debug("entry restored without suspend mark", logx.String("id", rec.ID))
		}
		delay, err := m.conv.ResolveNextOccurrence(m.clk.Now(), rec.Target)
		if err != nil {
			m.log.Warn("dropping entry with invalid target",
				logx.String("id", rec.ID), logx.Err(err))
			if derr := m.store.DeleteEntry(ctx, rec.ID); derr != nil {
				m.log.Warn("entry delete failed", logx.String("id", rec.ID), logx.Err(derr))
			}
			continue
		}

		m.mu.Lock()
		e := &entry{
			id:        rec.ID,
			handler:   rec.Handler,
			args:      rec.Args,
			target:    rec.Target,
			repeat:    rec.Repeat,
			state:     StatePending,
			createdAt: rec.CreatedAt,
		}
		m.entries[e.id] = e
		m.armLocked(e, delay)
		m.persistLocked(ctx, e)
		m.mu.Unlock()
		restored++
	}
	m.log.Info("schedules resumed", logx.Int("restored", restored), logx.Int("loaded", len(records)))
	if m.bus != nil {
		m.bus.Publish(eventbus.Event{
			Type: eventbus.TypeScheduleResumed,
			Data: map[string]int{"restored": restored, "loaded": len(records)},
		})
	}
	return nil
}

// Snapshot returns a read-only view of all live entries, ordered by
// creation time.
func (m *Manager) Snapshot() []EntryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EntryInfo, 0, len(m.entries))
	for _, e := range m.entries {
		tgt := make(map[string]int64, len(e.target))
		for k, v := range e.target {
			tgt[k] = v
		}
		out = append(out, EntryInfo{
			ID:             e.id,
			Handler:        e.handler,
			Target:         tgt,
			Repeat:         e.repeat,
			State:          e.state.String(),
			NextDelay:      e.nextDelay,
			ArmedAt:        e.armedAt,
			NeedsRecompute: e.needsRecompute,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArmedAt.Equal(out[j].ArmedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ArmedAt.Before(out[j].ArmedAt)
	})
	return out
}

// armLocked arms the one-shot timer for e. Call with m.mu held.
func (m *Manager) armLocked(e *entry, delay float64) {
	if delay < 0 {
		// A largest-unit target in the past projects backwards (there is no
		// larger unit to roll into); fire immediately rather than never.
		delay = 0
	}
	e.nextDelay = delay
	e.needsRecompute = false
	e.state = StateArmed
	e.armedAt = time.Now()
	id := e.id
	e.timer = m.timers.ArmOnce(time.Duration(delay*float64(time.Second)), func() { m.onFire(id) })
}

// persistLocked saves e best-effort. Call with m.mu held.
func (m *Manager) persistLocked(ctx context.Context, e *entry) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveEntry(ctx, e.record()); err != nil {
		m.log.Warn("entry save failed", logx.String("id", e.id), logx.Err(err))
	}
}

func (e *entry) record() storage.EntryRecord {
	return storage.EntryRecord{
		ID:             e.id,
		Handler:        e.handler,
		Args:           e.args,
		Target:         e.target,
		Repeat:         e.repeat,
		NeedsRecompute: e.needsRecompute,
		CreatedAt:      e.createdAt,
	}
}

// onFire runs on the timer goroutine. A fire that races a cancellation
// finds its entry absent and no-ops.
func (m *Manager) onFire(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || m.suspended {
		m.mu.Unlock()
		m.log.Debug("late fire ignored", logx.String("id", id))
		return
	}
	e.state = StateFired
	e.timer = nil
	handler := e.handler
	args := e.args
	repeat := e.repeat
	m.mu.Unlock()

	m.publish(eventbus.TypeScheduleFired, id, handler)

	fn, ok := m.reg.lookup(handler)
	if !ok {
		// Handler vanished after scheduling; treat like a failing callback.
		m.reportError(id, handler, fmt.Errorf("handler %q not registered", handler))
	} else if err := fn(context.Background(), args); err != nil {
		m.reportError(id, handler, err)
	}

	if !repeat {
		m.mu.Lock()
		if cur, ok := m.entries[id]; ok && cur == e {
			cur.state = StateDone
			delete(m.entries, id)
		}
		m.mu.Unlock()
		if m.store != nil {
			if err := m.store.DeleteEntry(context.Background(), id); err != nil {
				m.log.Warn("entry delete failed", logx.String("id", id), logx.Err(err))
			}
		}
		m.log.Debug("entry done", logx.String("id", id), logx.String("handler", handler))
		return
	}

	// Re-arm against the live clock. The previous projection is not assumed
	// to still hold; the clock may have drifted or been checkpointed.
	m.mu.Lock()
	cur, ok := m.entries[id]
	if !ok || cur != e || m.suspended {
		// Cancelled (or suspended) while the handler ran.
		m.mu.Unlock()
		return
	}
	delay, err := m.conv.ResolveNextOccurrence(m.clk.Now(), cur.target)
	if err != nil {
		// Cannot happen for a target that already validated once; drop the
		// entry rather than fire-loop.
		delete(m.entries, id)
		m.mu.Unlock()
		m.log.Error("recompute failed; entry dropped", logx.String("id", id), logx.Err(err))
		return
	}
	m.armLocked(cur, delay)
	m.persistLocked(context.Background(), cur)
	m.mu.Unlock()

	m.log.Debug("entry re-armed",
		logx.String("id", id),
		logx.String("handler", handler),
		logx.Float64("delay_secs", delay))
	m.publish(eventbus.TypeScheduleRearmed, id, handler)
}

func (m *Manager) reportError(id, handler string, err error) {
	if m.errLimit.Allow() {
		m.log.Error("handler failed", logx.String("id", id), logx.String("handler", handler), logx.Err(err))
	}
	if m.errHook != nil {
		m.errHook(id, handler, err)
	}
}
