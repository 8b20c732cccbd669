package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"liveview.io/liveview/pkg/collection"
	"liveview.io/liveview/pkg/view"
)

// keepaliveInterval is how often an idle stream gets a comment ping so
// intermediaries do not drop the connection.
const keepaliveInterval = 15 * time.Second

// Broker serves live view subscriptions over server-sent events. View names
// are never exposed on the stream surface; clients hold opaque stream ids
// handed out by the write API redirect.
type Broker struct {
	mu      sync.Mutex
	addr    string
	views   map[string]view.Handle
	byName  map[string]string
	streams map[string]view.Handle
	log     logr.Logger
}

// NewBroker creates a stream broker over the given views.
func NewBroker(addr string, views []view.Handle, opts Options) *Broker {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	b := &Broker{
		addr:    addr,
		views:   make(map[string]view.Handle),
		byName:  make(map[string]string),
		streams: make(map[string]view.Handle),
		log:     log.WithName("broker"),
	}
	for _, h := range views {
		b.views[h.Name()] = h
	}

	return b
}

// StreamID resolves a view name to its opaque stream id, minting one on first
// use. The id is stable for the lifetime of the broker.
func (b *Broker) StreamID(name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.views[name]
	if !ok {
		return "", fmt.Errorf("no view named %q", name)
	}

	id, ok := b.byName[name]
	if !ok {
		id = uuid.NewString()
		b.byName[name] = id
		b.streams[id] = h
	}

	return id, nil
}

// Start runs the broker until ctx is cancelled.
func (b *Broker) Start(ctx context.Context) error {
	return serve(ctx, b.addr, b.Router(), b.log)
}

// Router builds the stream routes.
func (b *Broker) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/streams/{stream}", b.handleStream)
	mux.HandleFunc("/", notFoundHandler)
	return mux
}

// streamEvent is the wire form of a single view change.
type streamEvent struct {
	Type  collection.DeltaType `json:"type"`
	Key   int64                `json:"key"`
	Value any                  `json:"value,omitempty"`
}

func (b *Broker) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("stream")

	b.mu.Lock()
	h, ok := b.streams[id]
	b.mu.Unlock()
	if !ok {
		notFoundHandler(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, b.log, NewInternalError("streaming unsupported"))
		return
	}

	// Subscribe before writing headers so the initial snapshot replay is
	// part of the same event stream.
	ctx := r.Context()
	ch := h.Watch(ctx)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := b.log.WithValues("view", h.Name(), "stream", id)
	log.V(1).Info("stream opened")

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.V(1).Info("stream closed")
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case d, open := <-ch:
			if !open {
				log.V(1).Info("stream source gone")
				return
			}
			if err := writeSSE(w, d); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, d collection.Delta[any]) error {
	ev := streamEvent{Type: d.Type, Key: d.Key}
	if d.Type != collection.Deleted {
		ev.Value = d.Value
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
