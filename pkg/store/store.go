// Package store persists the tab-id to payload map in SQLite. The
// whole map lives in a single named slot: every mutation is a
// read-modify-write of the full map, serialized by an internal mutex
// so overlapping pipeline completions cannot lose each other's writes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/tabsense/tabsense/models"
)

const slotName = "tabsense_data"

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA temp_store = MEMORY;

CREATE TABLE IF NOT EXISTS slots (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store owns the persisted tab map. All mutations go through it; the
// UI and backend layers only ever read snapshots.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// slotData is the JSON document held in the slot. Generations count
// deletions per tab id so an in-flight pipeline write for a closed
// (or closed and reopened) tab can be recognized as stale.
type slotData struct {
	Tabs        map[string]models.TabPayload `json:"tabs"`
	Generations map[string]int64             `json:"generations"`
}

func newSlotData() slotData {
	return slotData{
		Tabs:        map[string]models.TabPayload{},
		Generations: map[string]int64{},
	}
}

// Open opens or creates the store database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// load reads the whole slot. Callers must hold s.mu.
func (s *Store) load() (slotData, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM slots WHERE name = ?", slotName).Scan(&raw)
	if err == sql.ErrNoRows {
		return newSlotData(), nil
	}
	if err != nil {
		return slotData{}, fmt.Errorf("failed to read slot: %w", err)
	}

	data := newSlotData()
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return slotData{}, fmt.Errorf("failed to decode slot: %w", err)
	}
	if data.Tabs == nil {
		data.Tabs = map[string]models.TabPayload{}
	}
	if data.Generations == nil {
		data.Generations = map[string]int64{}
	}
	return data, nil
}

// save writes the whole slot back. Callers must hold s.mu.
func (s *Store) save(data slotData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode slot: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO slots (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		slotName, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write slot: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current tab map, keyed by tab id.
func (s *Store) Snapshot() (map[int]models.TabPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}

	out := make(map[int]models.TabPayload, len(data.Tabs))
	for key, payload := range data.Tabs {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[id] = payload
	}
	return out, nil
}

// Generation returns the current deletion generation for a tab id.
// A pipeline captures this before processing and hands it back to
// PutIfCurrent when done.
func (s *Store) Generation(tabID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return 0, err
	}
	return data.Generations[key(tabID)], nil
}

// PutIfCurrent writes the payload for tabID unless the tab's
// generation moved since gen was captured, which means the tab closed
// mid-processing. It reports whether the write was applied.
func (s *Store) PutIfCurrent(tabID int, payload models.TabPayload, gen int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return false, err
	}
	if data.Generations[key(tabID)] != gen {
		return false, nil
	}

	data.Tabs[key(tabID)] = payload
	if err := s.save(data); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the tab's entry and bumps its generation, so any
// still-running pipeline for this tab id writes into the void.
func (s *Store) Delete(tabID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	delete(data.Tabs, key(tabID))
	data.Generations[key(tabID)]++
	return s.save(data)
}

func key(tabID int) string {
	return strconv.Itoa(tabID)
}
