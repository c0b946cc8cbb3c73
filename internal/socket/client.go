package socket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/raksha/internal/sos/domain"
)

const writeTimeout = 5 * time.Second

// Client wraps a websocket connection as a pushable session. Writes are
// serialised; a single slow recipient must never block another recipient's
// delivery, so every write carries a deadline.
type Client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn}
}

type alertMessage struct {
	Type  string       `json:"type"`
	Alert domain.Alert `json:"alert"`
}

// PushAlert delivers the alert over the socket. Fire and forget: the caller
// gets a transport error for logging, but no acknowledgement is awaited.
func (c *Client) PushAlert(alert domain.Alert) error {
	payload, err := json.Marshal(alertMessage{Type: "sos-alert", Alert: alert})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write alert: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
