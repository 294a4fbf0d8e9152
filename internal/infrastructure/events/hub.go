package events

import (
	"sync"

	"github.com/paire/chat-billing/internal/domain/event"
)

// Hub fans engine events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event rather than stalling the
// ledger operation that produced it.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*event.Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*event.Client),
	}
}

func (h *Hub) Register(client *event.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers ev to every subscriber, and to user-scoped subscribers
// only when the event names their user.
func (h *Hub) Publish(ev *event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.UserID != nil {
			if ev.UserID == nil || ev.UserID.String() != *c.UserID {
				continue
			}
		}
		trySend(c, ev)
	}
}

// SendToClient delivers ev to one subscriber.
func (h *Hub) SendToClient(clientID string, ev *event.Event) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return event.ErrClientNotFound
	}
	if !trySend(c, ev) {
		return event.ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *event.Client, ev *event.Event) bool {
	select {
	case c.MessageChan <- ev:
		return true
	default:
		return false
	}
}
