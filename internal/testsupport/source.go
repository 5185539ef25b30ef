package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"proxysheet/internal/domain"
)

// FakeSource serves artwork from a map and records every retrieval.
type FakeSource struct {
	mu      sync.Mutex
	images  map[domain.CardKey][]byte
	calls   []domain.CardKey
	starts  []time.Time
	active  int
	overlap bool

	// Delay, when set, is how long each retrieval takes.
	Delay time.Duration
	// Err, when set, is returned for every retrieval.
	Err error
}

// NewFakeSource creates a source serving images.
func NewFakeSource(images map[domain.CardKey][]byte) *FakeSource {
	return &FakeSource{images: images}
}

// Fetch implements the fetcher's Source.
func (s *FakeSource) Fetch(ctx context.Context, key domain.CardKey) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.starts = append(s.starts, time.Now())
	s.active++
	if s.active > 1 {
		s.overlap = true
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	data, ok := s.images[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found", domain.ErrNetwork, key)
	}
	return data, nil
}

// Calls returns the keys retrieved so far, in order.
func (s *FakeSource) Calls() []domain.CardKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CardKey(nil), s.calls...)
}

// Starts returns the start time of every retrieval.
func (s *FakeSource) Starts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.starts...)
}

// Overlapped reports whether two retrievals ever ran at the same time.
func (s *FakeSource) Overlapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlap
}
