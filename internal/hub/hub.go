// Package hub tracks connected dashboard and display clients and routes fan-out events to
// the ones whose subscription matches.
package hub

import (
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Subscription filters events; empty fields match anything. EventType accepts a trailing
// wildcard such as "room.*".
type Subscription struct {
	Day       string
	RoomID    string
	EventType string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
}

type SubscribeMessage struct {
	Action    string `json:"action"`
	Day       string `json:"day"`
	RoomID    string `json:"room_id"`
	EventType string `json:"event_type"`
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{clients: make(map[string]*Client), logger: logger}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast hands payload to every matching client without blocking and reports how many
// clients received it and how many were skipped. A client whose buffer is full misses the
// message and is expected to re-read the board.
func (h *Hub) Broadcast(payload []byte, meta Subscription) (delivered, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			dropped++
			h.logger.Warn("drop message for slow client", zap.String("client_id", client.ID), zap.String("event_type", meta.EventType))
		}
	}
	return delivered, dropped
}

func match(sub Subscription, meta Subscription) bool {
	if sub.Day != "" && meta.Day != "" && meta.Day != sub.Day {
		return false
	}
	if sub.RoomID != "" && meta.RoomID != sub.RoomID {
		return false
	}
	if sub.EventType != "" && !matchType(sub.EventType, meta.EventType) {
		return false
	}
	return true
}

func matchType(pattern, eventType string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(eventType, prefix)
	}
	return pattern == eventType
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}

func (m SubscribeMessage) Subscription() Subscription {
	if m.Action == "unsubscribe" {
		return Subscription{}
	}
	return Subscription{Day: m.Day, RoomID: m.RoomID, EventType: m.EventType}
}
