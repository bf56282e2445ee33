// Package clock provides the absolute game clock. Game seconds accrue from
// real runtime multiplied by the speed factor on top of a checkpointed base,
// so absolute game time survives restarts without advancing while the
// process is down.
package clock

import (
	"sync"
	"time"
)

// GameClock reports absolute game time. Implementations must be
// monotonically non-decreasing while the process runs.
type GameClock interface {
	// Now returns the current absolute game time in game seconds.
	Now() int64
	// Factor returns game seconds elapsed per real second.
	Factor() float64
}

// State is a persistable checkpoint of the clock.
type State struct {
	// GameSeconds is the absolute game time at the checkpoint.
	GameSeconds int64 `json:"game_seconds"`
	// SavedAt is the real time the checkpoint was taken.
	SavedAt time.Time `json:"saved_at"`
}

// SystemClock derives game time from the process wall clock.
type SystemClock struct {
	mu      sync.Mutex
	base    int64     // game seconds at started
	started time.Time // real time the current run began
	factor  float64
}

// NewSystem starts a system clock from a restored checkpoint base.
// A zero base starts the game epoch fresh.
func NewSystem(base int64, factor float64) *SystemClock {
	return &SystemClock{base: base, started: time.Now(), factor: factor}
}

func (c *SystemClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.started).Seconds()
	return c.base + int64(elapsed*c.factor)
}

func (c *SystemClock) Factor() float64 { return c.factor }

// Checkpoint captures the current state for persistence.
func (c *SystemClock) Checkpoint() State {
	return State{GameSeconds: c.Now(), SavedAt: time.Now()}
}

// ManualClock is a settable clock for tests and offline tooling.
type ManualClock struct {
	mu     sync.Mutex
	now    int64
	factor float64
}

func NewManual(now int64, factor float64) *ManualClock {
	return &ManualClock{now: now, factor: factor}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Factor() float64 { return c.factor }

// Set moves the clock to an absolute game time.
func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance moves the clock forward by delta game seconds.
func (c *ManualClock) Advance(delta int64) {
	c.mu.Lock()
	c.now += delta
	c.mu.Unlock()
}
