// Package collection implements keyed, change-notifying collections. A
// collection holds at most one value per key and publishes a delta for every
// mutation, both to synchronous downstream hooks (used by the derivation
// graph) and to asynchronous watchers (used by views and stream consumers).
package collection

import "context"

// Named is the minimal handle on a declared collection.
type Named interface {
	Name() string
}

// Entry is a single keyed item of a collection.
type Entry[V any] struct {
	Key   int64
	Value V
}

// Collection is the read-only contract of a keyed collection. List returns
// entries in ascending key order; this order defines the natural iteration
// order of every downstream consumer.
type Collection[V any] interface {
	// Name returns the collection name the object was registered under.
	Name() string

	// Get performs a point lookup.
	Get(key int64) (V, bool)

	// List returns all entries in ascending key order.
	List() []Entry[V]

	// Len returns the number of entries.
	Len() int
}

// Source is a collection that can notify consumers about changes. OnDelta
// hooks are invoked synchronously on the mutating goroutine and must not
// block; Watch channels are buffered and serviced asynchronously.
type Source[V any] interface {
	Collection[V]

	// OnDelta registers a synchronous change hook. Hooks must be registered
	// before the collection starts receiving data.
	OnDelta(fn func(Delta[V]))

	// Watch returns a channel that first replays the current content as
	// Added deltas and then streams subsequent changes. The channel is
	// closed when ctx is cancelled.
	Watch(ctx context.Context) <-chan Delta[V]
}
