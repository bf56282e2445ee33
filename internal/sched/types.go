package sched

import (
	"context"
	"encoding/json"
	"time"
)

// HandlerFunc is a registered callback. Entries persist the handler's name
// plus serialized args, never the function itself, so schedules survive
// restarts.
type HandlerFunc func(ctx context.Context, args json.RawMessage) error

// State tracks one entry through its lifecycle:
// pending -> armed -> (fired -> armed | fired -> done) | cancelled.
type State int

const (
	StatePending State = iota
	StateArmed
	StateFired
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateArmed:
		return "armed"
	case StateFired:
		return "fired"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TimerHandle identifies an armed timer to its TimerHost.
type TimerHandle any

// TimerHost arms one-shot timers. The default host uses time.AfterFunc;
// tests substitute a manual host.
type TimerHost interface {
	ArmOnce(delay time.Duration, onFire func()) TimerHandle
	Disarm(h TimerHandle)
}

// entry is the in-memory state of one schedule. Guarded by Manager.mu.
type entry struct {
	id      string
	handler string
	args    json.RawMessage
	target  map[string]int64
	repeat  bool

	state          State
	needsRecompute bool
	timer          TimerHandle
	nextDelay      float64 // real seconds, as last computed
	armedAt        time.Time
	createdAt      time.Time
}

// EntryInfo is the read-only snapshot view of an entry.
type EntryInfo struct {
	ID             string           `json:"id"`
	Handler        string           `json:"handler"`
	Target         map[string]int64 `json:"target"`
	Repeat         bool             `json:"repeat"`
	State          string           `json:"state"`
	NextDelay      float64          `json:"next_delay_secs"`
	ArmedAt        time.Time        `json:"armed_at"`
	NeedsRecompute bool             `json:"needs_recompute,omitempty"`
}
