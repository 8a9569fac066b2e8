// Package stats keeps a history of export runs as JSON Lines.
package stats

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
	"github.com/Sourjya261-BB/Jira-Router/internal/log"
)

// Snapshot captures the outcome of a single export run.
type Snapshot struct {
	RunID         string         `json:"run"`
	Timestamp     time.Time      `json:"ts"`
	Total         int            `json:"total"`
	Pages         int            `json:"pages"`
	Written       int            `json:"written"`
	ByType        map[string]int `json:"byType,omitempty"`
	FailedOffsets []int          `json:"failed,omitempty"`
	DurationSecs  float64        `json:"durationS"`
}

// Partial reports whether some pages were never fetched.
func (s Snapshot) Partial() bool {
	return len(s.FailedOffsets) > 0
}

// Store manages persistence of run snapshots.
type Store struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewStore creates a store at ~/.cache/jira-router/runs.jsonl.
func NewStore() (*Store, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	dir := filepath.Join(cacheDir, "jira-router")
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	return &Store{
		fs:   fs,
		path: filepath.Join(dir, "runs.jsonl"),
	}, nil
}

// NewStoreWithFs creates a store at path on the given filesystem.
func NewStoreWithFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// Append adds a snapshot and prunes to the most recent records.
func (s *Store) Append(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		log.Debug("could not read run history, starting fresh", "error", err)
		records = nil
	}

	records = append(records, snap)
	if len(records) > constants.StatsMaxRecords {
		records = records[len(records)-constants.StatsMaxRecords:]
	}

	return s.writeAll(records)
}

// Recent returns the last n snapshots (or fewer if not enough exist).
func (s *Store) Recent(n int) []Snapshot {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil
	}

	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

func (s *Store) readAll() ([]Snapshot, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []Snapshot
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			continue // skip malformed lines
		}
		records = append(records, snap)
	}
	return records, scanner.Err()
}

func (s *Store) writeAll(records []Snapshot) error {
	tmp := s.path + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			_ = s.fs.Remove(tmp)
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}

	return s.fs.Rename(tmp, s.path)
}
