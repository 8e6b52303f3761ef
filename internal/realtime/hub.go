// Package realtime pushes live attendance updates to websocket
// subscribers watching a service, e.g. the check-in dashboard projected
// in the lobby. Cross-instance fan-out goes through Redis pub/sub.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains service_id -> set of connections and broadcasts messages.
// Local broadcast plus publish to Redis for horizontal scaling.
type Hub struct {
	services map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per service
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher publishes service events for cross-instance broadcast.
type RedisPublisher interface {
	PublishServiceEvent(serviceID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to service channels and invokes handler for
// incoming events.
type RedisSubscriber interface {
	SubscribeService(serviceID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a websocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		services: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a service room. Starts the Redis subscription
// for this service when the first client joins.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.services[c.ServiceID] == nil {
		h.services[c.ServiceID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeService(c.ServiceID, func(event string, payload []byte) {
				h.Broadcast(c.ServiceID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.ServiceID] = cancel
			}
		}
	}
	h.services[c.ServiceID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined service room",
		zap.String("client_id", c.ID), zap.String("service_id", c.ServiceID.String()))
}

// Unregister removes a client from a service room. Cancels the Redis
// subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.services[c.ServiceID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.services, c.ServiceID)
			if cancel, ok := h.subs[c.ServiceID]; ok {
				cancel()
				delete(h.subs, c.ServiceID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left service room",
		zap.String("client_id", c.ID), zap.String("service_id", c.ServiceID.String()))
}

// Broadcast sends a message to all local clients watching a service.
func (h *Hub) Broadcast(serviceID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.services[serviceID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishAttendance pushes updated check-in counts for a service. Publishes
// to Redis only when configured so the subscriber callback broadcasts once
// per instance, avoiding duplicate delivery to local clients.
func (h *Hub) PublishAttendance(serviceID uuid.UUID, total, newBelievers int) {
	payload := map[string]int{"total": total, "new_believers": newBelievers}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishServiceEvent(serviceID, "attendance", data)
		return
	}
	h.Broadcast(serviceID, "attendance", json.RawMessage(data))
}

// WatcherCount returns the number of connected clients watching a service.
func (h *Hub) WatcherCount(serviceID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.services[serviceID])
}
