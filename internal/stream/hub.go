// Package stream fans reconciled zone views out to subscribed SSE clients.
package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sse"

	"parking-status-backend/internal/reconcile"
)

// Event names on the wire.
const (
	EventSnapshot = "snapshot"
	EventPatch    = "zone_patch"
)

// Broadcaster is the trigger-side view of the hub. Ingress, the override
// ledger, and the sweeper hold this; tests substitute a fake to assert event
// sequences without a transport.
type Broadcaster interface {
	BroadcastPatch(view reconcile.EffectiveZoneView)
}

// SnapshotFunc produces the initial snapshot for a new subscriber. The hub
// invokes it while holding its lock, so no patch can land between the snapshot
// read and registration.
type SnapshotFunc func() ([]reconcile.EffectiveZoneView, error)

// Registry is the full subscriber-facing surface the stream endpoint needs.
type Registry interface {
	Broadcaster
	Subscribe(w io.Writer, snapshot SnapshotFunc) (string, error)
	Unsubscribe(id string)
}

// SnapshotEnvelope wraps the initial full snapshot event payload.
type SnapshotEnvelope struct {
	Zones []reconcile.EffectiveZoneView `json:"zones"`
}

type subscriber struct {
	w io.Writer
}

// Hub owns the set of open stream connections. All subscriber-set access
// (add, remove, broadcast iteration) is serialized by one mutex; a write
// failure removes only the failing subscriber.
type Hub struct {
	mu        sync.Mutex
	subs      map[string]*subscriber
	nextID    int64
	keepAlive time.Duration
}

// NewHub creates a hub emitting keep-alive frames at the given cadence.
func NewHub(keepAlive time.Duration) *Hub {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &Hub{
		subs:      make(map[string]*subscriber),
		keepAlive: keepAlive,
	}
}

// Subscribe registers a connection and sends it the initial snapshot before
// any patch can reach it; holding the lock across the snapshot read and write
// is what guarantees that ordering. The returned id is passed to Unsubscribe
// when the peer goes away.
func (h *Hub) Subscribe(w io.Writer, snapshot SnapshotFunc) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	zones, err := snapshot()
	if err != nil {
		return "", err
	}
	if err := sse.Encode(w, sse.Event{Event: EventSnapshot, Data: SnapshotEnvelope{Zones: zones}}); err != nil {
		return "", err
	}
	flush(w)

	h.nextID++
	id := strconv.FormatInt(h.nextID, 10)
	h.subs[id] = &subscriber{w: w}
	log.Printf("stream: subscriber %s connected (%d open)", id, len(h.subs))
	return id, nil
}

// Unsubscribe removes a connection, typically when the peer closes.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		log.Printf("stream: subscriber %s disconnected (%d open)", id, len(h.subs))
	}
}

// BroadcastPatch pushes one zone's reconciled view to every open connection.
func (h *Hub) BroadcastPatch(view reconcile.EffectiveZoneView) {
	h.broadcast(sse.Event{Event: EventPatch, Data: view})
}

func (h *Hub) broadcast(event sse.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		if err := sse.Encode(sub.w, event); err != nil {
			log.Printf("stream: dropping subscriber %s: %v", id, err)
			delete(h.subs, id)
			continue
		}
		flush(sub.w)
	}
}

// Run emits keep-alive comment frames until the context is cancelled. These
// carry no data; they exist to defeat idle-timeout disconnects at the
// transport layer.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Hub) ping() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		if _, err := io.WriteString(sub.w, ": ping\n\n"); err != nil {
			log.Printf("stream: dropping subscriber %s: %v", id, err)
			delete(h.subs, id)
			continue
		}
		flush(sub.w)
	}
}

// Len reports the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
