// Package fingerprint records which inbox documents have been processed, so
// that unchanged documents are never reworked.
package fingerprint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/TobiSchelling/flatdrop/internal/database"
)

// FileName is the JSON fingerprint log inside the logs directory.
const FileName = "processed_sources.json"

// Record is the stored state of one processed document.
type Record struct {
	Fingerprint        string         `json:"fingerprint"`
	LastProcessed      string         `json:"last_processed_timestamp"`
	FragmentsExtracted int            `json:"fragments_extracted"`
	DispositionSummary map[string]int `json:"disposition_summary"`
}

// NewRecord stamps a record with the current time.
func NewRecord(fp string, fragments int, summary map[string]int, now time.Time) Record {
	return Record{
		Fingerprint:        fp,
		LastProcessed:      now.Format(time.RFC3339),
		FragmentsExtracted: fragments,
		DispositionSummary: summary,
	}
}

// Store is a fingerprint backend. Put is buffered until Flush.
type Store interface {
	Get(key string) (Record, bool)
	Put(key string, r Record)
	Keys() []string
	Flush() error
	Close() error
}

// Unchanged reports whether key was processed with exactly fp.
func Unchanged(s Store, key, fp string) bool {
	r, ok := s.Get(key)
	return ok && r.Fingerprint == fp
}

// Open returns the backend named by backend ("json" or "sqlite").
// db is required for sqlite and ignored otherwise.
func Open(backend, logsDir string, db *database.DB) (Store, error) {
	switch backend {
	case "", "json":
		return OpenFile(filepath.Join(logsDir, FileName))
	case "sqlite":
		if db == nil {
			return nil, errors.New("sqlite fingerprint store needs an open ledger")
		}
		return OpenLedger(db)
	}
	return nil, fmt.Errorf("unknown fingerprint backend %q", backend)
}

// FileStore keeps all records in one JSON object keyed by document key.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
	dirty   bool
}

// OpenFile loads path. A missing file is an empty store.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, records: make(map[string]Record)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fingerprints: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

func (s *FileStore) Put(key string, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = r
	s.dirty = true
}

func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.records)
}

// Flush rewrites the file through a temp file and rename.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("writing fingerprints: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *FileStore) Close() error { return s.Flush() }

// LedgerStore keeps records in the sqlite ledger.
type LedgerStore struct {
	mu      sync.Mutex
	db      *database.DB
	records map[string]Record
	pending map[string]Record
}

// OpenLedger loads every fingerprint row from db.
func OpenLedger(db *database.DB) (*LedgerStore, error) {
	rows, err := db.AllFingerprints()
	if err != nil {
		return nil, fmt.Errorf("loading fingerprints: %w", err)
	}
	s := &LedgerStore{db: db, records: make(map[string]Record, len(rows)), pending: make(map[string]Record)}
	for k, fp := range rows {
		s.records[k] = Record{
			Fingerprint:        fp.Fingerprint,
			LastProcessed:      fp.LastProcessed,
			FragmentsExtracted: fp.FragmentsExtracted,
			DispositionSummary: fp.DispositionSummary,
		}
	}
	return s, nil
}

func (s *LedgerStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

func (s *LedgerStore) Put(key string, r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = r
	s.pending[key] = r
}

func (s *LedgerStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.records)
}

func (s *LedgerStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	rows := make([]database.Fingerprint, 0, len(s.pending))
	for _, k := range sortedKeys(s.pending) {
		r := s.pending[k]
		rows = append(rows, database.Fingerprint{
			DocumentKey:        k,
			Fingerprint:        r.Fingerprint,
			LastProcessed:      r.LastProcessed,
			FragmentsExtracted: r.FragmentsExtracted,
			DispositionSummary: r.DispositionSummary,
		})
	}
	if err := s.db.PutFingerprints(rows); err != nil {
		return err
	}
	s.pending = make(map[string]Record)
	return nil
}

// Close flushes; the ledger itself is owned by the caller.
func (s *LedgerStore) Close() error { return s.Flush() }

func sortedKeys(m map[string]Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeAtomic replaces path with data so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
