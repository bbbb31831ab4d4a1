package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	ID       string
	TenantID string

	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *logrus.Logger

	mu         sync.RWMutex
	dashboards map[string]bool
}

// clientCommand is what clients send upstream: subscribe/unsubscribe to
// dashboard pushes.
type clientCommand struct {
	Action      string `json:"action"`
	DashboardID string `json:"dashboardId"`
}

// wants reports whether this client should receive message. Dashboard
// invalidations are delivered only to subscribers of that dashboard within
// the same tenant; everything else goes to all clients.
func (c *Client) wants(message Message) bool {
	if message.Type != TypeDashboardInvalidated {
		return true
	}
	tenantID, _ := message.Data["tenant_id"].(string)
	if tenantID != "" && tenantID != c.TenantID {
		return false
	}
	dashboardID, _ := message.Data["dashboard_id"].(string)

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dashboards[dashboardID]
}

func (c *Client) subscribe(dashboardID string) {
	c.mu.Lock()
	c.dashboards[dashboardID] = true
	c.mu.Unlock()
}

func (c *Client) unsubscribe(dashboardID string) {
	c.mu.Lock()
	delete(c.dashboards, dashboardID)
	c.mu.Unlock()
}

// Handler upgrades HTTP requests to websocket connections. The tenant comes
// from the X-Tenant-ID header or tenant_id query parameter.
func Handler(hub *Hub) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tenantID := ctx.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			tenantID = ctx.Query("tenant_id")
		}

		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			hub.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
			return
		}

		client := &Client{
			ID:         uuid.New().String(),
			TenantID:   tenantID,
			conn:       conn,
			send:       make(chan []byte, 256),
			hub:        hub,
			logger:     hub.logger,
			dashboards: make(map[string]bool),
		}

		client.hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.logger.WithError(err).Debug("Ignoring malformed client command")
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.subscribe(cmd.DashboardID)
		case "unsubscribe":
			c.unsubscribe(cmd.DashboardID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
