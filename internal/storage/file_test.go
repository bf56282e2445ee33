package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	logx "gametimed/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestStore(t, dir)
	e := EntryRecord{
		ID:        "e1",
		Handler:   "log",
		Args:      json.RawMessage(`{"msg":"tick"}`),
		Target:    map[string]int64{"hour": 2, "min": 30},
		Repeat:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	if err := st.SaveClock(ctx, ClockState{GameSeconds: 98765, SavedAt: time.Now()}); err != nil {
		t.Fatalf("SaveClock: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: entry and clock must come back.
	st = openTestStore(t, dir)
	defer st.Close()

	entries, err := st.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("LoadEntries returned %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.ID != "e1" || got.Handler != "log" || !got.Repeat {
		t.Fatalf("entry mismatch: %+v", got)
	}
	if got.Target["hour"] != 2 || got.Target["min"] != 30 {
		t.Fatalf("target mismatch: %v", got.Target)
	}
	if string(got.Args) != `{"msg":"tick"}` {
		t.Fatalf("args mismatch: %s", got.Args)
	}

	clk, ok, err := st.LoadClock(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadClock: %v, ok=%v", err, ok)
	}
	if clk.GameSeconds != 98765 {
		t.Fatalf("clock = %d, want 98765", clk.GameSeconds)
	}
}

func TestFileStoreDelete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestStore(t, dir)
	for _, id := range []string{"a", "b"} {
		if err := st.SaveEntry(ctx, EntryRecord{ID: id, Handler: "log", Target: map[string]int64{"min": 5}}); err != nil {
			t.Fatalf("SaveEntry(%s): %v", id, err)
		}
	}
	if err := st.DeleteEntry(ctx, "a"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	// Deleting twice is fine.
	if err := st.DeleteEntry(ctx, "a"); err != nil {
		t.Fatalf("DeleteEntry again: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openTestStore(t, dir)
	defer st.Close()
	entries, err := st.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "b" {
		t.Fatalf("entries after delete = %+v", entries)
	}
}

func TestFileStoreUpdateWins(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestStore(t, dir)
	defer st.Close()

	e := EntryRecord{ID: "e1", Handler: "log", Target: map[string]int64{"min": 5}}
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("SaveEntry: %v", err)
	}
	e.NeedsRecompute = true
	if err := st.SaveEntry(ctx, e); err != nil {
		t.Fatalf("SaveEntry update: %v", err)
	}

	entries, err := st.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 1 || !entries[0].NeedsRecompute {
		t.Fatalf("update lost: %+v", entries)
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: ""}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(disabled) = %v, %v; want nil, nil", st, err)
	}
	st, err = Open(Config{Driver: "none"}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", st, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
