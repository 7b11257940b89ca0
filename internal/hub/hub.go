package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/weiawesome/pawfect-live/internal/config"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

// Hub manages all WebSocket connections and delivers encoded messages to
// them. Room membership lives in the signal service; the hub only knows
// connection ids.
type Hub struct {
	clients    map[string]*Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run processes unregistrations until ctx is done, then closes every
// remaining client.
func (h *Hub) Run(ctx context.Context) {
	l := pkglog.L()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.ID]; ok && cur == client {
				delete(h.clients, client.ID)
				close(client.Send)
				l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client unregistered")
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client to the hub. It is visible to Send calls as soon as
// Register returns.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	l := pkglog.L()
	l.Info().Str(pkglog.FieldClientID, client.ID).Msg("client registered")
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Close drops the connection of clientID, if connected.
func (h *Hub) Close(clientID string) {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()

	if ok {
		go h.Unregister(client)
	}
}

// SendTo sends a message to a specific client. It reports false when the
// client is not connected.
func (h *Hub) SendTo(clientID string, message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldClientID, clientID).Msg("failed to encode message")
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	h.enqueue(client, data)
	return true
}

// SendToMany sends one encoded copy of message to each listed client.
func (h *Hub) SendToMany(clientIDs []string, message interface{}) {
	if len(clientIDs) == 0 {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Msg("failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range clientIDs {
		if client, ok := h.clients[id]; ok {
			h.enqueue(client, data)
		}
	}
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Msg("failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		h.enqueue(client, data)
	}
}

// LastSeen returns the last activity time of clientID.
func (h *Hub) LastSeen(clientID string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return time.Time{}, false
	}
	return client.LastSeen(), true
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		// Client's send buffer is full
		l := pkglog.L()
		l.Warn().Str(pkglog.FieldClientID, client.ID).Msg("send buffer full, dropping client")
		go h.Unregister(client)
	}
}
