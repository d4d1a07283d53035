package queue

import (
	"context"
	"sync"

	"github.com/soundslot/jamsession/internal/app/reconcile"
	"github.com/soundslot/jamsession/internal/store"
)

// Hub lazily maintains one watched Queue per session. The server uses it so
// every HTTP mutation for a session works over the same cached queue view.
type Hub struct {
	store store.Store

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewHub creates an empty hub.
func NewHub(st store.Store) *Hub {
	return &Hub{
		store:  st,
		queues: make(map[string]*Queue),
	}
}

// Get returns the session's queue, creating and watching it on first use.
// Hub-owned queues carry no local participant, so every feed event is
// treated as authoritative.
func (h *Hub) Get(ctx context.Context, sessionID string) (*Queue, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if q, ok := h.queues[sessionID]; ok {
		return q, nil
	}

	q := New(h.store, sessionID, reconcile.New(""))
	if err := q.Load(ctx); err != nil {
		return nil, err
	}
	if _, ok := h.store.(store.Feed); ok {
		if err := q.Watch(ctx); err != nil {
			return nil, err
		}
	}
	h.queues[sessionID] = q
	return q, nil
}

// Release drops a session's queue and its subscription, e.g. when the
// session ends.
func (h *Hub) Release(sessionID string) {
	h.mu.Lock()
	q, ok := h.queues[sessionID]
	delete(h.queues, sessionID)
	h.mu.Unlock()

	if ok {
		q.Close()
	}
}

// Close releases every queue.
func (h *Hub) Close() {
	h.mu.Lock()
	queues := h.queues
	h.queues = make(map[string]*Queue)
	h.mu.Unlock()

	for _, q := range queues {
		q.Close()
	}
}
