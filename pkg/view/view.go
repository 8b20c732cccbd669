// Package view implements named, paginated projections over derived or base
// collections. A view is a pure size cap: the first `limit` entries of the
// upstream collection in ascending key order, recomputed on every read and
// kept live for watchers as the upstream membership changes.
package view

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/go-logr/logr"

	"liveview.io/liveview/pkg/collection"
)

// DefaultLimit is the page size used when a view is built without an
// explicit limit.
const DefaultLimit = 25

// Handle is the type-erased surface the stream broker serves views through.
type Handle interface {
	// Name returns the view name.
	Name() string

	// Limit returns the configured page size.
	Limit() int

	// Snapshot returns the current window in ascending key order.
	Snapshot() []collection.Entry[any]

	// Watch replays the current window and then streams window changes
	// until ctx is cancelled.
	Watch(ctx context.Context) <-chan collection.Delta[any]
}

type options struct {
	limit    int
	limitSet bool
	logger   logr.Logger
}

// Option configures a view at construction time.
type Option func(*options)

// WithLimit sets the page size. Negative values are rejected by New.
func WithLimit(limit int) Option {
	return func(o *options) {
		o.limit = limit
		o.limitSet = true
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.logger = log }
}

var _ Handle = &View[int]{}

// View is a paginated projection of a single upstream collection.
type View[V any] struct {
	name  string
	limit int
	src   collection.Source[V]
	log   logr.Logger
}

// New creates a view over src. A negative limit is a configuration error and
// is rejected here so that an invalid graph never starts.
func New[V any](name string, src collection.Source[V], opts ...Option) (*View[V], error) {
	o := options{limit: DefaultLimit, logger: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.limitSet && o.limit < 0 {
		return nil, NewConfigError(name, fmt.Errorf("negative limit %d", o.limit))
	}

	return &View[V]{
		name:  name,
		limit: o.limit,
		src:   src,
		log:   o.logger.WithName("view").WithValues("name", name),
	}, nil
}

func (v *View[V]) Name() string { return v.name }

func (v *View[V]) Limit() int { return v.limit }

// Current returns the first Limit entries of the upstream collection in
// ascending key order. The window is recomputed on every call, never frozen.
func (v *View[V]) Current() []collection.Entry[V] {
	entries := v.src.List()
	if len(entries) > v.limit {
		entries = entries[:v.limit]
	}
	return entries
}

// Snapshot implements Handle.
func (v *View[V]) Snapshot() []collection.Entry[any] {
	entries := v.Current()
	ret := make([]collection.Entry[any], len(entries))
	for i, e := range entries {
		ret[i] = collection.Entry[any]{Key: e.Key, Value: e.Value}
	}
	return ret
}

// WatchTyped replays the current window as Added deltas and then emits a
// delta whenever the window's membership or content changes. An upstream
// change that does not affect the first Limit keys produces no event.
func (v *View[V]) WatchTyped(ctx context.Context) <-chan collection.Delta[V] {
	out := make(chan collection.Delta[V], collection.DefaultWatchChannelBuffer)
	upstream := v.src.Watch(ctx)

	go func() {
		defer close(out)

		window := map[int64]V{}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-upstream:
				if !ok {
					return
				}
				window = v.diff(window, out)
			}
		}
	}()

	return out
}

// Watch implements Handle.
func (v *View[V]) Watch(ctx context.Context) <-chan collection.Delta[any] {
	out := make(chan collection.Delta[any], collection.DefaultWatchChannelBuffer)
	typed := v.WatchTyped(ctx)

	go func() {
		defer close(out)
		for d := range typed {
			out <- collection.Delta[any]{Type: d.Type, Key: d.Key, Value: d.Value}
		}
	}()

	return out
}

// diff recomputes the window and emits the deltas transforming prev into it:
// first the keys leaving the window, then additions and content changes, all
// in ascending key order.
func (v *View[V]) diff(prev map[int64]V, out chan<- collection.Delta[V]) map[int64]V {
	current := v.Current()

	next := make(map[int64]V, len(current))
	for _, e := range current {
		next[e.Key] = e.Value
	}

	gone := make([]int64, 0)
	for k := range prev {
		if _, ok := next[k]; !ok {
			gone = append(gone, k)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })
	for _, k := range gone {
		v.send(out, collection.Delta[V]{Type: collection.Deleted, Key: k})
	}

	for _, e := range current {
		old, exists := prev[e.Key]
		switch {
		case !exists:
			v.send(out, collection.Delta[V]{Type: collection.Added, Key: e.Key, Value: e.Value})
		case !reflect.DeepEqual(old, e.Value):
			v.send(out, collection.Delta[V]{Type: collection.Updated, Key: e.Key, Value: e.Value})
		}
	}

	return next
}

func (v *View[V]) send(out chan<- collection.Delta[V], d collection.Delta[V]) {
	select {
	case out <- d:
	default:
		v.log.V(1).Info("dropping event for slow watcher", "event-type", d.Type, "key", d.Key)
	}
}
