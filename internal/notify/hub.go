package notify

import (
	"context"
	"sync"

	"qagaz.org/internal/ids"
)

const subscriberBuffer = 64

// Hub fans workflow events out to in-process subscribers, feeding the
// live event stream of the HTTP API. Slow subscribers lose events rather
// than block publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
	next Notifier
}

// NewHub returns a hub that additionally forwards every event to next
// (pass Discard{} or nil to fan out only).
func NewHub(next Notifier) *Hub {
	return &Hub{
		subs: make(map[string]chan Event),
		next: next,
	}
}

// Subscribe registers a subscriber and returns its event channel together
// with a cancel function. The channel is closed on cancel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	id := ids.New()

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Notify publishes the event to all subscribers without blocking, then
// forwards it to the wrapped notifier.
func (h *Hub) Notify(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = ids.New()
	}

	h.mu.RLock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is saturated; drop for this one
		}
	}
	h.mu.RUnlock()

	if h.next != nil {
		return h.next.Notify(ctx, ev)
	}
	return nil
}

// SubscriberCount reports how many subscribers are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
