// Package eventbus is a small in-memory fanout for schedule and clock
// events. Publish never blocks; slow subscribers drop events.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the daemon.
const (
	TypeScheduleCreated   = "schedule.created"
	TypeScheduleFired     = "schedule.fired"
	TypeScheduleRearmed   = "schedule.rearmed"
	TypeScheduleCancelled = "schedule.cancelled"
	TypeScheduleResumed   = "schedule.resumed"
	TypeClockCheckpoint   = "clock.checkpoint"
)

// Event carries one signal. Data should stay small; subscribers must not
// mutate it.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery; a concurrently closed channel panics on
		// send, so recover covers the unsubscribe race.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
