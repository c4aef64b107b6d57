package notify

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/courtbook/courtbook/internal/booking/reconcile"
)

const subscriberBuffer = 16

// Hub fans payment events out to subscribed reconcilers. It is the in-process
// stand-in for the notification topic the surrounding platform delivers
// webhook events on; subscription lifecycle belongs to the caller.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan reconcile.Event
	nextID      uint64
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint64]chan reconcile.Event)}
}

// Subscribe returns a buffered event channel and an unsubscribe function.
// The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan reconcile.Event, func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	ch := make(chan reconcile.Event, subscriberBuffer)
	h.subscribers[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subscribers[id]; ok {
			delete(h.subscribers, id)
			close(existing)
		}
	}
}

// Publish delivers the event to every subscriber without blocking. A
// subscriber with a full buffer misses the event; the poll channel covers
// that gap, so dropping beats stalling the webhook ingress.
func (h *Hub) Publish(event reconcile.Event) {
	h.mu.RLock()
	channels := make([]chan reconcile.Event, 0, len(h.subscribers))
	for _, ch := range h.subscribers {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
			log.Warn().
				Str("event_type", event.Type).
				Int64("booking_id", event.BookingID).
				Msg("Dropped payment event for slow subscriber")
		}
	}
}
