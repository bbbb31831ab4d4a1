package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hub maintains the set of active clients and pushes dashboard events to the
// clients subscribed to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message

	logger *logrus.Logger

	mu    sync.RWMutex
	stats HubStats
}

// HubStats contains hub statistics.
type HubStats struct {
	ConnectedClients int       `json:"connected_clients"`
	TotalConnections int64     `json:"total_connections"`
	MessagesSent     int64     `json:"messages_sent"`
	LastActivity     time.Time `json:"last_activity"`
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		logger:     logger,
		stats:      HubStats{LastActivity: time.Now()},
	}
}

// Run handles registration, unregistration and message fan-out until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.deliver(message)
		case <-ticker.C:
			h.deliver(Message{Type: TypeHeartbeat})
		}
	}
}

// NotifyDashboardInvalidated pushes an invalidation event to the clients
// watching that dashboard. Implements the bridge callback side.
func (h *Hub) NotifyDashboardInvalidated(dashboardID, tenantID string, payload json.RawMessage) {
	select {
	case h.broadcast <- NewDashboardInvalidated(dashboardID, tenantID, payload):
	default:
		h.logger.Warn("WebSocket broadcast queue full, dropping invalidation push")
	}
}

// Stats returns a snapshot of hub statistics.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.ConnectedClients = len(h.clients)
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"client_id":         client.ID,
		"tenant_id":         client.TenantID,
		"connected_clients": h.Stats().ConnectedClients,
	}).Info("WebSocket client connected")

	welcome := Message{
		Type: TypeConnection,
		Data: map[string]interface{}{
			"status":    "connected",
			"client_id": client.ID,
		},
	}
	client.send <- welcome.ToJSON()
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.stats.ConnectedClients = len(h.clients)
		h.stats.LastActivity = time.Now()

		h.logger.WithFields(logrus.Fields{
			"client_id":         client.ID,
			"connected_clients": len(h.clients),
		}).Info("WebSocket client disconnected")
	}
}

func (h *Hub) deliver(message Message) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wants(message) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	raw := message.ToJSON()
	var sent int64
	var dropped []*Client
	for _, client := range targets {
		select {
		case client.send <- raw:
			sent++
		default:
			// Send buffer full; drop the slow client. Removal happens inline
			// because deliver runs on the Run goroutine, which is the only
			// reader of the unregister channel.
			dropped = append(dropped, client)
		}
	}

	h.mu.Lock()
	for _, client := range dropped {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
			h.logger.WithField("client_id", client.ID).Warn("Dropping slow WebSocket client")
		}
	}
	h.stats.ConnectedClients = len(h.clients)
	h.stats.MessagesSent += sent
	h.stats.LastActivity = time.Now()
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.stats.ConnectedClients = 0
}
