package state

import (
	"sync"

	"github.com/mapwatch/mapwatch/internal/classify"
)

// Store is a thread-safe in-memory map from entity ID to the last severity
// the monitor loop committed for it. Entries are created lazily on first
// observation and live for the process lifetime.
//
// State is deliberately not persisted across restarts: a restart forgets
// history, and a still-standing error will alert once more on the first cycle
// after startup.
type Store struct {
	mu   sync.RWMutex
	last map[string]classify.Severity
}

// New returns an empty Store.
func New() *Store {
	return &Store{last: make(map[string]classify.Severity)}
}

// Get returns the last committed severity for entityID. The boolean is false
// when the entity has never been observed.
func (s *Store) Get(entityID string) (classify.Severity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sev, ok := s.last[entityID]
	return sev, ok
}

// Set commits sev as the last observed severity for entityID.
func (s *Store) Set(entityID string, sev classify.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[entityID] = sev
}
