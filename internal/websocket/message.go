package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to clients
const (
	TypeConnection           = "connection"
	TypeHeartbeat            = "heartbeat"
	TypeDashboardInvalidated = "dashboard_invalidated"
)

// Message is the wire envelope for all hub pushes.
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON serializes the message, stamping the timestamp if unset.
func (m Message) ToJSON() []byte {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"error"}`)
	}
	return b
}

// NewDashboardInvalidated builds the push sent when a dashboard's cached
// data has been invalidated. Clients are expected to refetch.
func NewDashboardInvalidated(dashboardID, tenantID string, payload json.RawMessage) Message {
	data := map[string]interface{}{
		"dashboard_id": dashboardID,
		"tenant_id":    tenantID,
	}
	if len(payload) > 0 {
		data["event"] = payload
	}
	return Message{Type: TypeDashboardInvalidated, Data: data}
}
