package httpapi

import "sync"

// Event names pushed on the /api/events stream.
const (
	EventReady            = "ready"
	EventRosterChanged    = "roster-changed"
	EventConflictDetected = "conflict-detected"
	EventAuthChanged      = "auth-changed"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data any
}

// Hub fans events out to connected stream clients. A slow client drops
// events rather than blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	buffer  int
}

// NewHub returns a hub whose per-client queues hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{clients: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe registers a client queue. Call the returned func to leave.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
		})
	}
}

// Publish delivers ev to every client with room in its queue.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
