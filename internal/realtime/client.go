package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gracehub/backend/internal/authz"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the websocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single websocket connection watching a service.
type Client struct {
	ID        string
	ServiceID uuid.UUID
	UserID    uuid.UUID
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// ValidateFunc authenticates a token into an actor.
type ValidateFunc func(token string) (authz.Actor, error)

// AuthorizeFunc checks that the actor may watch the service. It applies
// the same tenant isolation as the HTTP endpoints.
type AuthorizeFunc func(ctx context.Context, actor authz.Actor, serviceID uuid.UUID) error

// ServeWs handles the websocket upgrade and runs the client loop.
// Browsers cannot set headers on websocket requests, so the JWT arrives
// as a query parameter.
func ServeWs(hub *Hub, logger *zap.Logger, validate ValidateFunc, authorize AuthorizeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceIDStr := c.Query("service_id")
		token := c.Query("token")
		if serviceIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "service_id and token required"})
			return
		}
		serviceID, err := uuid.Parse(serviceIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
			return
		}
		actor, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err := authorize(c.Request.Context(), actor, serviceID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found or access denied"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			ServiceID: serviceID,
			UserID:    actor.UserID,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "watchers":
			c.hub.Broadcast(c.ServiceID, "watchers", map[string]int{
				"count": c.hub.WatcherCount(c.ServiceID),
			})
		default:
			// ignore; the stream is server to client
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
