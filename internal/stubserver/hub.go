package stubserver

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/recyconnect/notify/internal/feed"
)

// wsClient represents one connected push subscriber.
type wsClient struct {
	userID string
	send   chan []byte
}

// Hub manages all active push subscribers, keyed by user id.
// Single-instance, in-process: exactly what a dev stub needs.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]*wsClient
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string][]*wsClient)}
}

// Register adds a subscriber for a user.
func (h *Hub) Register(userID string, send chan []byte) *wsClient {
	c := &wsClient{userID: userID, send: send}

	h.mu.Lock()
	h.clients[userID] = append(h.clients[userID], c)
	h.mu.Unlock()

	log.Debug().Str("user", userID).Msg("push subscriber connected")
	return c
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[c.userID]
	updated := make([]*wsClient, 0, len(clients))
	for _, existing := range clients {
		if existing != c {
			updated = append(updated, existing)
		}
	}

	if len(updated) == 0 {
		delete(h.clients, c.userID)
	} else {
		h.clients[c.userID] = updated
	}

	log.Debug().Str("user", c.userID).Msg("push subscriber disconnected")
}

// Push sends a notification frame to every subscriber of a user.
func (h *Hub) Push(userID string, n feed.Notification) {
	msg, err := n.MarshalJSON()
	if err != nil {
		log.Error().Err(err).Msg("encode push frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients[userID] {
		select {
		case c.send <- msg:
		default:
			// Subscriber is slow/disconnected, skip
			log.Warn().Str("user", userID).Msg("push subscriber send buffer full, skipping")
		}
	}
}

// ConnectedCount returns the total number of connected subscribers.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}
