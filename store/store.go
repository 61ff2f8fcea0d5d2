// Package store provides the generic keyed entity collection the resource
// synchronizer writes into. It is intentionally dumb: reconciliation policy
// lives in the mirror package, the store only guarantees idempotent
// upsert/remove semantics and consistent reads.
package store

import (
	"sort"
	"sync"
)

type Entity interface {
	Key() string
}

// Store is a collection of one resource type, keyed by entity identity.
// There is a single writer (the synchronizer); readers get copies.
type Store[E Entity] struct {
	mu       sync.RWMutex
	entities map[string]E
	live     bool
}

func New[E Entity]() *Store[E] {
	return &Store[E]{entities: make(map[string]E)}
}

// Upsert merges fields into the entity with the given id, or creates it.
// apply receives the current entity (zero value if absent) and whether it was
// found, and returns the entity to keep. Applying the same change twice
// yields the same state.
func (s *Store[E]) Upsert(id string, apply func(e E, found bool) E) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.entities[id]
	s.entities[id] = apply(e, found)
}

// Update applies fn to the entity if present; updating an absent id is a
// no-op. It reports whether the entity was found.
func (s *Store[E]) Update(id string, fn func(e E) E) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.entities[id]
	if !found {
		return false
	}
	s.entities[id] = fn(e)
	return true
}

// Remove deletes the entity with the given id. Removing an absent id is a
// no-op.
func (s *Store[E]) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
}

func (s *Store[E]) Get(id string) (E, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// All returns all entities ordered by key.
func (s *Store[E]) All() []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]E, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (s *Store[E]) Filter(pred func(E) bool) []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]E, 0)
	for _, e := range s.entities {
		if pred(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (s *Store[E]) Count(pred func(E) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entities {
		if pred(e) {
			n++
		}
	}
	return n
}

func (s *Store[E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Replace clears the store and inserts the batch (full snapshot ingestion).
func (s *Store[E]) Replace(batch []E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[string]E, len(batch))
	for _, e := range batch {
		s.entities[e.Key()] = e
	}
}

// ReplaceWhere removes all entities matching pred and inserts the batch
// (scoped snapshot ingestion). Entities outside the scope are untouched.
func (s *Store[E]) ReplaceWhere(pred func(E) bool, batch []E) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entities {
		if pred(e) {
			delete(s.entities, id)
		}
	}
	for _, e := range batch {
		s.entities[e.Key()] = e
	}
}

func (s *Store[E]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = make(map[string]E)
}

// Live marks whether the store currently tracks a connected session. A store
// that is not live still serves its last-known entities.
func (s *Store[E]) Live() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

func (s *Store[E]) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}
