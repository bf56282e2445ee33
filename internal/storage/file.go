package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "gametimed/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of entries + clock)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File

	entries map[string]EntryRecord
	clock   ClockState
	hasClk  bool

	writes int
}

type journalRecord struct {
	Op    string       `json:"op"` // "put", "del", "clock"
	Entry *EntryRecord `json:"entry,omitempty"`
	ID    string       `json:"id,omitempty"`
	Clock *ClockState  `json:"clock,omitempty"`
}

type snapshotFile struct {
	Entries map[string]EntryRecord `json:"entries"`
	Clock   *ClockState            `json:"clock,omitempty"`
}

const compactEvery = 256

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	s := &fileStore{
		log:          log,
		snapshotPath: snapPath,
		entries:      map[string]EntryRecord{},
	}

	// Load state from snapshot, then replay the journal over it.
	_ = s.loadSnapshot(snapPath)
	_ = s.replayJournal(journalPath)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	// Fold the journal into a final snapshot so the next open starts clean.
	if err := s.compactLocked(); err != nil {
		s.log.Debug("final compact failed", logx.Err(err))
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) SaveEntry(ctx context.Context, e EntryRecord) error {
	_ = ctx
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("entry id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return s.appendLocked(journalRecord{Op: "put", Entry: &e})
}

func (s *fileStore) LoadEntries(ctx context.Context) ([]EntryRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryRecord, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *fileStore) DeleteEntry(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	return s.appendLocked(journalRecord{Op: "del", ID: id})
}

func (s *fileStore) SaveClock(ctx context.Context, st ClockState) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = st
	s.hasClk = true
	return s.appendLocked(journalRecord{Op: "clock", Clock: &st})
}

func (s *fileStore) LoadClock(ctx context.Context) (ClockState, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock, s.hasClk, nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journalFile == nil {
		return errors.New("journal closed")
	}
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	snap := snapshotFile{Entries: s.entries}
	if s.hasClk {
		clk := s.clock
		snap.Clock = &clk
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for id, e := range snap.Entries {
		s.entries[id] = e
	}
	if snap.Clock != nil {
		s.clock = *snap.Clock
		s.hasClk = true
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "put":
			if r.Entry != nil && r.Entry.ID != "" {
				s.entries[r.Entry.ID] = *r.Entry
			}
		case "del":
			if r.ID != "" {
				delete(s.entries, r.ID)
			}
		case "clock":
			if r.Clock != nil {
				s.clock = *r.Clock
				s.hasClk = true
			}
		}
	}
	return sc.Err()
}
