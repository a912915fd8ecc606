package pipeline

import (
	"sync"

	"github.com/litscout/litscout/internal/domain"
)

// ResultSet accumulates deduplicated records over one pipeline run. Two
// records are duplicates iff their normalized titles match; the first record
// seen for a key wins and later arrivals are discarded. The set grows
// monotonically and preserves arrival order.
//
// All mutation goes through Merge, which serializes concurrent callers.
// Source tasks never touch the set directly; the orchestrator merges each
// task's records as it settles.
type ResultSet struct {
	mu      sync.Mutex
	keys    map[string]struct{}
	records []*domain.Record
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{
		keys: make(map[string]struct{}),
	}
}

// Merge folds incoming records into the set in order. It returns how many
// records were inserted and how many were discarded as duplicates.
func (s *ResultSet) Merge(incoming []*domain.Record) (added, duplicates int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range incoming {
		if r == nil {
			continue
		}
		key := r.DedupKey()
		if _, ok := s.keys[key]; ok {
			duplicates++
			continue
		}
		s.keys[key] = struct{}{}
		s.records = append(s.records, r)
		added++
	}
	return added, duplicates
}

// Len returns the number of distinct records in the set.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a copy of the records in arrival order. The copy is safe
// to persist or return while merges continue.
func (s *ResultSet) Snapshot() []*domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Record, len(s.records))
	copy(out, s.records)
	return out
}
