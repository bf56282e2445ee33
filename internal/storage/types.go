package storage

import (
	"encoding/json"
	"errors"
	"time"

	"gametimed/internal/clock"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map (state does not survive restarts)
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// EntryRecord is the persisted form of one schedule entry.
// No live closure is stored; Handler names a registered handler and Args
// carries its serialized arguments. Keep it compact and schema-stable.
type EntryRecord struct {
	ID      string          `json:"id"`
	Handler string          `json:"handler"`
	Args    json.RawMessage `json:"args,omitempty"`
	// Target maps unit names to target values ({"hour": 2, "min": 30}).
	Target map[string]int64 `json:"target"`
	Repeat bool             `json:"repeat"`
	// NeedsRecompute is set while the host is suspended; entries carrying it
	// must get a fresh delay from the live clock before re-arming.
	NeedsRecompute bool      `json:"needs_recompute"`
	CreatedAt      time.Time `json:"created_at"`
}

// ClockState aliases the clock checkpoint so drivers don't import clock
// everywhere.
type ClockState = clock.State
