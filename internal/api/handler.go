package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"parking-status-backend/internal/notification"
	"parking-status-backend/internal/store"
	"parking-status-backend/internal/stream"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	hub     stream.Registry
	pool    *notification.WorkerPool
	webpush *webpush.Options
}

// NewHandler creates a new API handler. pool may be nil when push
// notifications are not configured.
func NewHandler(s store.Store, hub stream.Registry, pool *notification.WorkerPool, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		hub:     hub,
		pool:    pool,
		webpush: webpushOptions,
	}
}

// publish pushes a zone's fresh view to the stream and, when the zone just
// became available, queues push notifications. A nil view (unknown zone)
// publishes nothing.
func (h *Handler) publish(change *store.StatusChange) {
	if change == nil || change.View == nil {
		return
	}
	h.hub.BroadcastPatch(*change.View)
	if change.BecameAvailable && h.pool != nil {
		h.pool.Dispatch(change.View.ID)
	}
}
