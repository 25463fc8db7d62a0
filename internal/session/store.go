package session

import (
	"fmt"
	"sync"
)

// Store persists session records. Persistence is an external collaborator;
// the controller only calls into it at session start and stop. Save must be
// an idempotent upsert keyed by record ID.
type Store interface {
	Save(rec *Record) error
	Get(id string) (*Record, bool)
	Recent(n int) []*Record
}

// MemoryStore is an in-memory Store with bounded most-recent-N retention.
// It backs the CLI and tests; production deployments supply their own Store.
type MemoryStore struct {
	maxRecords int

	mu      sync.RWMutex
	order   []string // insertion order, oldest first
	records map[string]*Record
}

// NewMemoryStore creates a store retaining at most maxRecords sessions.
func NewMemoryStore(maxRecords int) (*MemoryStore, error) {
	if maxRecords < 1 {
		return nil, fmt.Errorf("maxRecords must be at least 1, got %d", maxRecords)
	}

	return &MemoryStore{
		maxRecords: maxRecords,
		records:    make(map[string]*Record),
	}, nil
}

// Save upserts a record by ID. New IDs may evict the oldest retained record.
func (s *MemoryStore) Save(rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("record must have an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
		if len(s.order) > s.maxRecords {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.records, oldest)
		}
	}

	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *MemoryStore) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Recent returns up to n records, newest first.
func (s *MemoryStore) Recent(n int) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.order) {
		n = len(s.order)
	}

	out := make([]*Record, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[s.order[i]].Clone())
	}
	return out
}

// Len returns the number of retained records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
