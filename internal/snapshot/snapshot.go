// Package snapshot keeps the latest observation per entity for the HTTP API
// and websocket feed. Entries not refreshed within the TTL age out, so a
// stalled monitor loop surfaces as missing entities rather than stale green.
package snapshot

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mapwatch/mapwatch/internal/classify"
)

// Entry is the most recent verdict observed for one entity. It is an
// internal carrier; the API layer maps it to its JSON shape.
type Entry struct {
	EntityID     string
	DisplayName  string
	DashboardURL string
	Verdict      classify.Verdict
	UpdatedAt    time.Time
}

// Store is a thread-safe in-memory snapshot store keyed by entity ID.
type Store struct {
	mu   sync.RWMutex
	data map[string]Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores or replaces the snapshot for e.EntityID.
func (s *Store) Put(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.UpdatedAt = s.now()
	s.data[e.EntityID] = e
}

// Get returns the entry for the given entity, if present. The entry may be
// stale if the TTL has elapsed without a refresh.
func (s *Store) Get(entityID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[entityID]
	return e, ok
}

// List returns all fresh entries sorted by entity ID. Entries past the TTL
// that have not yet been evicted are excluded.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// TTL returns the configured freshness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries last updated before now minus the TTL and returns
// how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run blocks until ctx is cancelled, evicting stale entries at half the TTL
// interval (minimum 1 second).
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("snapshot: evicted stale entries", "count", n)
			}
		}
	}
}
