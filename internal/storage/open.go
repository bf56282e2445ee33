package storage

import (
	"context"
	"errors"
	"strings"

	logx "gametimed/pkg/logx"
)

// Store is the minimal persistence API used by the schedule manager and the
// clock checkpointer. Every method is a single atomic read or write; no
// multi-step transactions are required of a driver.
type Store interface {
	SaveEntry(ctx context.Context, e EntryRecord) error
	LoadEntries(ctx context.Context) ([]EntryRecord, error)
	DeleteEntry(ctx context.Context, id string) error

	SaveClock(ctx context.Context, st ClockState) error
	LoadClock(ctx context.Context) (ClockState, bool, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
