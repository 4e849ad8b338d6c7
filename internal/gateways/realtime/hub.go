// Package realtime pushes committed trade events to connected websocket
// clients, optionally across instances through redis.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
)

// Hub tracks live connections per user and implements trade.Notifier for the
// clients attached to this process.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	byUser  map[string]map[uuid.UUID]*Client
}

type Stats struct {
	Clients int `json:"clients"`
	Users   int `json:"users"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		byUser:  make(map[string]map[uuid.UUID]*Client),
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if _, ok := h.byUser[c.UserID]; !ok {
		h.byUser[c.UserID] = make(map[uuid.UUID]*Client)
	}
	h.byUser[c.UserID][c.ID] = c
	h.mu.Unlock()

	slog.Info("Realtime client connected",
		slog.String("type", "sys"),
		slog.String("client_id", c.ID.String()),
		slog.String("user_id", c.UserID),
	)
}

// remove detaches c and closes its send queue. It is safe to call more than
// once.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	if conns, ok := h.byUser[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	close(c.send)
	h.mu.Unlock()

	slog.Info("Realtime client disconnected",
		slog.String("type", "sys"),
		slog.String("client_id", c.ID.String()),
		slog.String("user_id", c.UserID),
	)
}

// queue offers payload to one client without blocking. It reports false when
// the client is gone or its queue is full.
func (h *Hub) queue(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendToUser queues payload on every connection of userID and returns how many
// accepted it. A connection whose queue is full is dropped.
func (h *Hub) SendToUser(userID string, payload []byte) int {
	var delivered int
	var slow []*Client

	h.mu.RLock()
	for _, c := range h.byUser[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Dropping slow realtime client",
			slog.String("type", "sys"),
			slog.String("client_id", c.ID.String()),
			slog.String("user_id", c.UserID),
		)
		h.remove(c)
	}
	return delivered
}

func (h *Hub) Publish(_ context.Context, ev trade.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}
	for _, userID := range ev.Recipients {
		h.SendToUser(userID, payload)
	}
	return nil
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Clients: len(h.clients), Users: len(h.byUser)}
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// hello is the first frame a client receives after the upgrade.
type hello struct {
	Kind   string    `json:"kind"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

var _ trade.Notifier = (*Hub)(nil)
