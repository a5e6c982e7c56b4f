package orchestrator

import (
	"sync"
)

// DefaultLedgerSize is how many sessions the in-memory store remembers.
const DefaultLedgerSize = 256

// Store is the persistence abstraction for the session ledger.
// Implementations can be in-memory or sqlite-backed; the Repository uses
// Store for all session reads and writes.
type Store interface {
	SaveSession(rec SessionRecord) error
	// RecentSessions returns at most limit records, newest first.
	RecentSessions(limit int) ([]SessionRecord, error)
	Close() error
}

// InMemoryStore keeps the newest sessions in a bounded slice.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions []SessionRecord
	max      int
}

// NewInMemoryStore returns an empty store holding at most max records.
// If max <= 0, DefaultLedgerSize is used.
func NewInMemoryStore(max int) *InMemoryStore {
	if max <= 0 {
		max = DefaultLedgerSize
	}
	return &InMemoryStore{max: max}
}

// SaveSession implements Store.SaveSession.
func (s *InMemoryStore) SaveSession(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, rec)
	if len(s.sessions) > s.max {
		s.sessions = s.sessions[len(s.sessions)-s.max:]
	}
	return nil
}

// RecentSessions implements Store.RecentSessions.
func (s *InMemoryStore) RecentSessions(limit int) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.sessions) {
		limit = len(s.sessions)
	}
	out := make([]SessionRecord, 0, limit)
	for i := len(s.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.sessions[i])
	}
	return out, nil
}

// Close implements Store.Close.
func (s *InMemoryStore) Close() error { return nil }
