// Package hub fans lifecycle events out to currently subscribed channels.
// There is no replay and no buffering beyond each subscriber's channel:
// events published before a client subscribes are never delivered to it.
package hub

import (
	"sync"
	"time"
)

// Event is one notification as delivered to subscribers.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// it starts losing events.
const subscriberBuffer = 16

// Hub is an in-memory publish/subscribe fan-out.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	now  func() time.Time
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[chan Event]struct{}), now: time.Now}
}

// Subscribe registers a new sink and returns its channel. The caller must
// call Unsubscribe when done; Emit never removes a subscriber.
func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe deregisters the channel and closes it.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Emit stamps the event and writes it to every currently registered channel.
// A subscriber whose channel is full loses the event; delivery is
// at-most-once.
func (h *Hub) Emit(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, At: h.now().UTC()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
