package job

import (
	"sort"
	"sync"
)

// Store is the in-memory table of live job records, shared by all
// request handlers and all supervisor goroutines.
//
// The map itself is guarded by an RWMutex; the fields of each record
// are single-writer by construction (only the supervisor goroutine
// bound to a job mutates it), so readers never contend with the
// minutes-long analysis.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Record
}

// NewStore returns an empty job table.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Record)}
}

// Insert adds a record. It fails with ErrExists if the id is taken,
// which also makes startup recovery idempotent.
func (s *Store) Insert(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[rec.ID()]; ok {
		return ErrExists
	}
	s.jobs[rec.ID()] = rec
	return nil
}

// Get returns the live record for id.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[id]
	return rec, ok
}

// ListActive returns the ids of all non-terminal jobs for the owner,
// oldest first. Job ids are ULIDs, so lexical order is creation order.
func (s *Store) ListActive(ownerID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, rec := range s.jobs {
		if rec.OwnerID() == ownerID && !rec.Status().Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ActiveRecords returns all non-terminal records, for reconciliation
// and metrics.
func (s *Store) ActiveRecords() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var recs []*Record
	for _, rec := range s.jobs {
		if !rec.Status().Terminal() {
			recs = append(recs, rec)
		}
	}
	return recs
}

// ActiveCount returns the number of non-terminal jobs.
func (s *Store) ActiveCount() int {
	return len(s.ActiveRecords())
}

// Len returns the total number of live records, terminal included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
