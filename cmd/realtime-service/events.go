package main

import (
	"encoding/json"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/hub"
)

// metaFromEvent decodes a fan-out envelope and returns the fields hub subscriptions
// filter on. Malformed messages are reported as not ok and dropped by the caller.
func metaFromEvent(payload []byte) (hub.Subscription, bool) {
	var event fanout.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		return hub.Subscription{}, false
	}
	roomID := event.RoomID
	if roomID == "" {
		if value, ok := event.Payload["room_id"].(string); ok {
			roomID = value
		}
	}
	return hub.Subscription{Day: event.Day, RoomID: roomID, EventType: event.Type}, true
}
