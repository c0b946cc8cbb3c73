// Package socket binds websocket connections to user identities. A connection
// starts unidentified, becomes identified when the client sends an identify
// message, and is removed from the presence registry on disconnect.
package socket

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/raksha/internal/presence"
	"github.com/example/raksha/internal/sos/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades connections and runs their lifecycle.
type Handler struct {
	registry *presence.Registry
	users    domain.Directory
	logger   *zap.Logger
}

// NewHandler constructs the websocket handler.
func NewHandler(registry *presence.Registry, users domain.Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, users: users, logger: logger}
}

type inboundMessage struct {
	Type   string   `json:"type"`
	UserID string   `json:"user_id"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

// ServeHTTP upgrades the connection and reads messages until disconnect.
// A connection that never identifies stays invisible to the dispatcher and
// receives nothing.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn)
	var identifiedAs *uuid.UUID

	defer func() {
		if identifiedAs != nil {
			h.registry.Unregister(*identifiedAs, client)
		}
		_ = client.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid socket message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "identify":
			userID, err := uuid.Parse(msg.UserID)
			if err != nil {
				h.logger.Debug("identify with invalid user id", zap.String("user_id", msg.UserID))
				continue
			}
			// Re-identifying under a new id registers the new key and
			// leaves the old key's entry on its prior connection untouched.
			h.registry.Register(userID, client)
			identifiedAs = &userID
			h.logger.Info("session identified", zap.String("user_id", userID.String()))
		case "report-location":
			if identifiedAs == nil || msg.Lat == nil || msg.Lng == nil {
				continue
			}
			point := domain.GeoPoint{Lat: *msg.Lat, Lng: *msg.Lng}
			if err := h.users.UpdateLocation(r.Context(), *identifiedAs, point); err != nil {
				h.logger.Warn("location update failed", zap.Error(err), zap.String("user_id", identifiedAs.String()))
			}
		default:
			h.logger.Debug("unknown socket message type", zap.String("type", msg.Type))
		}
	}
}
