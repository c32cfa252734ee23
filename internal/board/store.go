package board

import (
	"context"
	"sync"

	"github.com/couchcryptid/stammtisch-map-service/internal/domain"
)

// Store holds the current event snapshot shared by all boards. Snapshots are
// replaced whole and never mutated, so readers may keep the returned slice.
type Store struct {
	mu        sync.RWMutex
	events    []domain.Termin
	version   uint64
	listeners map[uint64]Listener
	nextID    uint64
}

// Listener receives a new snapshot and its version.
type Listener func(events []domain.Termin, version uint64)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{listeners: make(map[uint64]Listener)}
}

// Load replaces the snapshot and notifies subscribers. It implements pipeline.Loader.
func (s *Store) Load(_ context.Context, events []domain.Termin) error {
	s.mu.Lock()
	s.events = events
	s.version++
	version := s.version
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(events, version)
	}
	return nil
}

// Events returns the current snapshot.
func (s *Store) Events() []domain.Termin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events
}

// Snapshot returns the current events together with their version.
func (s *Store) Snapshot() ([]domain.Termin, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events, s.version
}

// Version counts the snapshots loaded so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Event returns one event of the current snapshot by original index.
func (s *Store) Event(index int) (domain.Termin, error) {
	return domain.FindByIndex(s.Events(), index)
}

// Subscribe registers fn to receive every new snapshot. Listeners run outside
// the store lock and may see versions out of order. The returned function unsubscribes.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
