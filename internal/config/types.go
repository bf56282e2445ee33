package config

import (
	"gametimed/internal/units"
)

type Config struct {
	// GameTime is fixed for the lifetime of the process. A hot reload that
	// changes it is rejected; restart to apply.
	GameTime GameTimeConfig `json:"game_time"`

	Logging LoggingConfig `json:"logging"`

	Storage *StorageConfig `json:"storage,omitempty"`

	HTTP *HTTPConfig `json:"http,omitempty"`

	Pprof *PprofConfig `json:"pprof,omitempty"`

	Checkpoint CheckpointConfig `json:"checkpoint"`
}

// GameTimeConfig defines the unit hierarchy and speed factor.
//
// Units is an optional map of size overrides in base (game) seconds, keyed
// by unit name (sec/min/hr/hour/day/week/month/year/yr). Sizes must keep
// the hierarchy a chain of integer multiples.
//
// Example:
//
//	"game_time": { "speed_factor": 2.0, "units": { "month": 2419200 } }
type GameTimeConfig struct {
	SpeedFactor float64          `json:"speed_factor"`
	Units       map[string]int64 `json:"units,omitempty"`
}

// Table builds the immutable unit table from this section.
func (g GameTimeConfig) Table() (*units.Table, error) {
	factor := g.SpeedFactor
	if factor == 0 {
		factor = 1
	}
	return units.New(g.Units, factor)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./gametimed_state" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HTTPConfig controls the optional status API.
//
// Security note: prefer binding to localhost (e.g. "127.0.0.1:7474");
// the API is unauthenticated.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:7474"
}

// PprofConfig controls the optional profiling server. A non-loopback
// addr requires a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token   string `json:"token,omitempty"` // never logged
}

// CheckpointConfig controls how often the game clock is checkpointed to
// storage. Interval is a Go duration string; default "5m".
type CheckpointConfig struct {
	Interval string `json:"interval,omitempty"`
}
