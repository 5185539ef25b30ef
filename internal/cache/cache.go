// Package cache holds fetched card artwork in memory with per-entry expiry.
//
// Eviction is purely time based: entries live until Prune runs after their
// expiry. There is no size bound. A single mutex guards the whole store since
// entries are only ever read and written as whole blobs.
package cache

import (
	"sync"
	"time"

	"proxysheet/internal/domain"
	u "proxysheet/internal/utils"
)

// DefaultTTL is how long artwork stays cached unless Put says otherwise.
const DefaultTTL = time.Hour

type entry struct {
	data    []byte
	expires time.Time
}

// Store is a keyed store of raw image bytes. The zero value is not usable;
// use New.
type Store struct {
	mu      sync.Mutex
	entries map[domain.CardKey]entry
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[domain.CardKey]entry),
		now:     time.Now,
	}
}

// Get returns the cached bytes for key. The returned slice must not be
// modified.
func (s *Store) Get(key domain.CardKey) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Put stores a copy of data under key for ttl. An existing entry is replaced.
// A non-positive ttl means DefaultTTL.
func (s *Store) Put(key domain.CardKey, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	_, replaced := s.entries[key]
	s.entries[key] = entry{data: buf, expires: s.now().Add(ttl)}
	s.mu.Unlock()

	if replaced {
		u.Info("Cache: dropping key entry", "key", key.String())
	}
}

// Prune removes every entry whose expiry has passed and returns how many
// were removed.
func (s *Store) Prune() int {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !e.expires.After(now) {
			delete(s.entries, k)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		u.Info("Cache: pruned entries", "count", removed)
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
