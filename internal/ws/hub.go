// Package ws implements the chat gateway: a cookie-authenticated
// WebSocket endpoint fanning messages out to every connected client.
package ws

import (
	"log"
	"sync"

	"github.com/avetra/storegate/internal/model"
)

// Client is one connected chat participant. Send is drained by the
// connection's write pump; when it backs up the hub drops messages
// for that client rather than blocking the broadcast.
type Client struct {
	ID     string
	UserID uint64
	Role   model.Role
	Send   chan []byte
}

// Hub tracks connected clients and broadcasts chat payloads.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// Broadcast fans payload out to every connected client, including
// the sender.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
			log.Printf("ws-gateway: drop message for client %s", client.ID)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
