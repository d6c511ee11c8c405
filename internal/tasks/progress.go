package tasks

import "sync"

// Snapshot is the externally visible progress state of one transfer, keyed by
// user in the [ProgressStore]. Percent is an integer in [0, 100].
type Snapshot struct {
	Percent      int    `json:"percent"`
	Added        int    `json:"added"`
	Total        int    `json:"total"`
	CurrentTrack string `json:"current_track,omitempty"`
	Done         bool   `json:"done"`
}

// ProgressStore holds per-user transfer snapshots for polling consumers (the
// HTTP progress endpoint). Channel updates serve push consumers; the store
// serves pull consumers. Both are fed by the engine.
//
// Safe for concurrent use. Reading an unknown key yields the zero snapshot.
type ProgressStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewProgressStore creates an empty progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{snapshots: make(map[string]Snapshot)}
}

// Get returns the snapshot for key, or the zero snapshot when none exists.
func (s *ProgressStore) Get(key string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[key]
}

// Set replaces the snapshot for key.
func (s *ProgressStore) Set(key string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = snap
}

// Reset zeroes the snapshot for key, marking the start of a new transfer.
func (s *ProgressStore) Reset(key string) {
	s.Set(key, Snapshot{})
}
