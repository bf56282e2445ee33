//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "gametimed/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveEntry(ctx context.Context, e EntryRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("entry id required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	target, err := json.Marshal(e.Target)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries(id, handler, args, target, repeat, needs_recompute, created_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   handler=excluded.handler, args=excluded.args, target=excluded.target,
		   repeat=excluded.repeat, needs_recompute=excluded.needs_recompute`,
		e.ID, e.Handler, nullStr(string(e.Args)), string(target),
		boolInt(e.Repeat), boolInt(e.NeedsRecompute), e.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadEntries(ctx context.Context) ([]EntryRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handler, args, target, repeat, needs_recompute, created_at FROM entries`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryRecord
	for rows.Next() {
		var (
			e       EntryRecord
			args    sql.NullString
			target  string
			repeat  int
			dirty   int
			created string
		)
		if err := rows.Scan(&e.ID, &e.Handler, &args, &target, &repeat, &dirty, &created); err != nil {
			return nil, err
		}
		if args.Valid {
			e.Args = json.RawMessage(args.String)
		}
		if err := json.Unmarshal([]byte(target), &e.Target); err != nil {
			return nil, fmt.Errorf("entry %s: bad target: %w", e.ID, err)
		}
		e.Repeat = repeat != 0
		e.NeedsRecompute = dirty != 0
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteEntry(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) SaveClock(ctx context.Context, st ClockState) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clock(id, game_seconds, saved_at) VALUES(1,?,?)
		 ON CONFLICT(id) DO UPDATE SET game_seconds=excluded.game_seconds, saved_at=excluded.saved_at`,
		st.GameSeconds, st.SavedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadClock(ctx context.Context) (ClockState, bool, error) {
	if s == nil || s.db == nil {
		return ClockState{}, false, ErrDisabled
	}
	var (
		secs  int64
		saved string
	)
	err := s.db.QueryRowContext(ctx, `SELECT game_seconds, saved_at FROM clock WHERE id = 1`).Scan(&secs, &saved)
	if errors.Is(err, sql.ErrNoRows) {
		return ClockState{}, false, nil
	}
	if err != nil {
		return ClockState{}, false, err
	}
	st := ClockState{GameSeconds: secs}
	if t, err := time.Parse(time.RFC3339Nano, saved); err == nil {
		st.SavedAt = t
	}
	return st, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
