package storage

import (
	"context"
	"sync"
)

// Memory is a map-backed store. It satisfies Store for tests and for runs
// that want manager bookkeeping without surviving restarts.
type Memory struct {
	mu      sync.Mutex
	entries map[string]EntryRecord
	clock   ClockState
	hasClk  bool
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]EntryRecord{}}
}

func (m *Memory) SaveEntry(ctx context.Context, e EntryRecord) error {
	_ = ctx
	m.mu.Lock()
	m.entries[e.ID] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadEntries(ctx context.Context) ([]EntryRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EntryRecord, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) DeleteEntry(ctx context.Context, id string) error {
	_ = ctx
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SaveClock(ctx context.Context, st ClockState) error {
	_ = ctx
	m.mu.Lock()
	m.clock = st
	m.hasClk = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadClock(ctx context.Context) (ClockState, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock, m.hasClk, nil
}

func (m *Memory) Close() error { return nil }
