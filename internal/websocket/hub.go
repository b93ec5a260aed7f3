package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
)

// SessionTopic names the topic carrying updates for one attendance session.
func SessionTopic(sessionID int64) string {
	return "session:" + strconv.FormatInt(sessionID, 10)
}

// Message types pushed to session displays.
const (
	TypeTokenRotated    = "token_rotated"
	TypeIntervalChanged = "interval_changed"
	TypeMarkRecorded    = "mark_recorded"
	TypeSessionEnded    = "session_ended"
	TypeSessionDeleted  = "session_deleted"
	TypeError           = "error"
)

// Message is a live update pushed to the displays of one attendance session.
type Message struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// NewMessage creates a Message for the session with the given external id.
func NewMessage(typ, session string, data any) Message {
	return Message{Type: typ, Session: session, Data: data}
}

// Hub tracks connected clients grouped by topic, one topic per session.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register adds a client to its topic.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.topics[c.topic]
	if !ok {
		clients = make(map[*Client]struct{})
		h.topics[c.topic] = clients
	}
	clients[c] = struct{}{}
}

// Snapshot builds the first message for a new client and reports whether
// the client should be disconnected right after it. It must not call the hub.
type Snapshot func(ctx context.Context) (msg Message, final bool)

// Subscribe registers c and queues the message built by snap as its first
// message. Broadcasts wait while snap runs, so an update committed after the
// snapshot was read always reaches c after it. A final snapshot leaves c
// unregistered with its send channel closed.
func (h *Hub) Subscribe(ctx context.Context, c *Client, snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg, final := snap(ctx)
	if data, err := json.Marshal(msg); err != nil {
		h.logger.Error("marshal snapshot", "error", err)
	} else {
		c.send <- data
	}

	if final {
		close(c.send)
		return
	}
	clients, ok := h.topics[c.topic]
	if !ok {
		clients = make(map[*Client]struct{})
		h.topics[c.topic] = clients
	}
	clients[c] = struct{}{}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	clients, ok := h.topics[c.topic]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.topics, c.topic)
	}
}

// Broadcast sends a message to every client subscribed to topic. Clients
// whose buffer is full miss the message rather than block the caller.
func (h *Hub) Broadcast(topic string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.topics[topic] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping message for slow client", "topic", topic, "type", msg.Type)
		}
	}
}

// CloseTopic delivers msg to the topic's clients as a final message and then
// disconnects them.
func (h *Hub) CloseTopic(topic string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		data = nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.topics[topic] {
		if data != nil {
			select {
			case c.send <- data:
			default:
			}
		}
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients across all topics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.topics {
		n += len(clients)
	}
	return n
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
