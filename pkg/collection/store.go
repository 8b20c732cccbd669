package collection

import (
	"reflect"
	"sort"
	"sync"
)

var _ Source[int] = &Store[int]{}

// Store is the mutable Source implementation backing both base collections
// and derivation outputs. Mutations are normalized (an Added on an existing
// key becomes an Updated, a Deleted on an absent key is dropped) and no-op
// updates are suppressed, so watchers only ever see effective changes.
//
// Synchronous hooks run on the mutating goroutine after the store lock has
// been released; callers serialize mutations externally (the derivation
// graph holds a single propagation lock).
type Store[V any] struct {
	name string

	mu    sync.RWMutex
	items map[int64]V

	hooks    []func(Delta[V])
	watchers []*watcher[V]
}

// NewStore creates an empty store with the given collection name.
func NewStore[V any](name string) *Store[V] {
	return &Store[V]{
		name:  name,
		items: make(map[int64]V),
	}
}

func (s *Store[V]) Name() string { return s.name }

// Get performs a point lookup.
func (s *Store[V]) Get(key int64) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// List returns all entries in ascending key order.
func (s *Store[V]) List() []Entry[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store[V]) listLocked() []Entry[V] {
	ret := make([]Entry[V], 0, len(s.items))
	for k, v := range s.items {
		ret = append(ret, Entry[V]{Key: k, Value: v})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Key < ret[j].Key })
	return ret
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// OnDelta registers a synchronous downstream hook.
func (s *Store[V]) OnDelta(fn func(Delta[V])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Upsert stores a value under the given key and emits an Added or Updated
// delta. Storing a value deep-equal to the current one emits nothing.
func (s *Store[V]) Upsert(key int64, value V) {
	s.mu.Lock()
	old, exists := s.items[key]
	if exists && reflect.DeepEqual(old, value) {
		s.mu.Unlock()
		return
	}
	s.items[key] = value
	s.mu.Unlock()

	typ := Added
	if exists {
		typ = Updated
	}
	s.emit(Delta[V]{Type: typ, Key: key, Value: value})
}

// Delete removes the entry under the given key and emits a Deleted delta.
// Deleting an absent key is a no-op.
func (s *Store[V]) Delete(key int64) {
	s.mu.Lock()
	if _, exists := s.items[key]; !exists {
		s.mu.Unlock()
		return
	}
	delete(s.items, key)
	s.mu.Unlock()

	s.emit(Delta[V]{Type: Deleted, Key: key})
}

// Reset replaces the whole content of the store with the given entries,
// emitting the per-key deltas that transform the old state into the new one.
// Used by adapters to resynchronize after a lost change feed.
func (s *Store[V]) Reset(entries []Entry[V]) {
	s.mu.Lock()
	next := make(map[int64]V, len(entries))
	for _, e := range entries {
		next[e.Key] = e.Value
	}

	var deltas []Delta[V]
	for k := range s.items {
		if _, ok := next[k]; !ok {
			deltas = append(deltas, Delta[V]{Type: Deleted, Key: k})
		}
	}
	for k, v := range next {
		old, exists := s.items[k]
		switch {
		case !exists:
			deltas = append(deltas, Delta[V]{Type: Added, Key: k, Value: v})
		case !reflect.DeepEqual(old, v):
			deltas = append(deltas, Delta[V]{Type: Updated, Key: k, Value: v})
		}
	}
	s.items = next
	s.mu.Unlock()

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Key < deltas[j].Key })
	for _, d := range deltas {
		s.emit(d)
	}
}

func (s *Store[V]) emit(d Delta[V]) {
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn(d)
	}
	s.notifyWatchers(d)
}
