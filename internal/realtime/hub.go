package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/closeshop/internal/metrics"
)

// Event types carried on the wire.
const (
	EventInsert     = "INSERT"
	EventSubscribed = "SUBSCRIBED"
)

// Event is a change notification delivered to subscribers of a topic.
type Event struct {
	Type   string          `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record,omitempty"`
}

// Topic names the channel for row changes of table owned by userID.
func Topic(table, userID string) string {
	return fmt.Sprintf("%s:user:%s", table, userID)
}

// Hub maintains the active subscribers grouped by topic.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[*Client]string
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics:  make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]string),
		logger:  logger,
	}
}

// Register subscribes a client to topic. A client holds one topic at a time.
func (h *Hub) Register(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		return
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Client]struct{})
		h.topics[topic] = subs
	}
	subs[c] = struct{}{}
	h.clients[c] = topic
	metrics.SubscriberAdded()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic, ok := h.clients[c]
	if !ok {
		return
	}
	delete(h.clients, c)
	if subs := h.topics[topic]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	close(c.send)
	metrics.SubscriberRemoved()
}

// Publish delivers ev to every subscriber of topic. Subscribers whose buffer
// is full miss the event.
func (h *Hub) Publish(topic string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- data:
		default:
			metrics.EventDropped()
			h.logger.Warn("subscriber buffer full, dropping event", "topic", topic)
		}
	}
}

// PublishInsert announces a new row of table owned by userID.
func (h *Hub) PublishInsert(table, userID string, record any) {
	data, err := json.Marshal(record)
	if err != nil {
		h.logger.Error("marshal record", "table", table, "error", err)
		return
	}
	h.Publish(Topic(table, userID), Event{Type: EventInsert, Table: table, Record: data})
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicCount returns the number of subscribers on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
