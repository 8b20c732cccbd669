package collection

import (
	"context"
	"sync"
)

// DefaultWatchChannelBuffer is the per-watcher event buffer. A watcher that
// falls this far behind starts losing events and should resubscribe to obtain
// a fresh replay.
const DefaultWatchChannelBuffer = 256

type watcher[V any] struct {
	result  chan Delta[V]
	cancel  context.CancelFunc
	stopped bool
	sync.Mutex
}

func newWatcher[V any](cancel context.CancelFunc) *watcher[V] {
	return &watcher[V]{
		result: make(chan Delta[V], DefaultWatchChannelBuffer),
		cancel: cancel,
	}
}

func (w *watcher[V]) stop() {
	w.Lock()
	defer w.Unlock()
	if !w.stopped {
		w.stopped = true
		w.cancel()
		close(w.result)
	}
}

func (w *watcher[V]) send(d Delta[V]) {
	w.Lock()
	defer w.Unlock()
	if w.stopped {
		return
	}
	select {
	case w.result <- d:
	default:
		// Watcher's channel is full, skip this event for this watcher.
	}
}

// Watch returns a channel that replays the current content as Added deltas
// and then streams subsequent changes until ctx is cancelled.
func (s *Store[V]) Watch(ctx context.Context) <-chan Delta[V] {
	wCtx, cancel := context.WithCancel(ctx)
	w := newWatcher[V](cancel)

	// Replay and registration happen under the store lock so that no
	// concurrent mutation can slip between the initial snapshot and the
	// live stream.
	s.mu.Lock()
	for _, e := range s.listLocked() {
		w.send(Delta[V]{Type: Added, Key: e.Key, Value: e.Value})
	}
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	go func() {
		<-wCtx.Done()
		w.stop()
		s.removeWatcher(w)
	}()

	return w.result
}

func (s *Store[V]) removeWatcher(w *watcher[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ww := range s.watchers {
		if ww == w {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

func (s *Store[V]) notifyWatchers(d Delta[V]) {
	s.mu.RLock()
	watchers := make([]*watcher[V], len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.RUnlock()

	for _, w := range watchers {
		w.send(d)
	}
}
