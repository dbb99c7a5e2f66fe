package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/hub"
)

func TestMetaFromEvent(t *testing.T) {
	meta, ok := metaFromEvent([]byte(`{"type":"room.assigned","entity_id":"R1","day":"2026-04-02","room_id":"R1","payload":{}}`))
	assert.True(t, ok)
	assert.Equal(t, hub.Subscription{Day: "2026-04-02", RoomID: "R1", EventType: "room.assigned"}, meta)

	meta, ok = metaFromEvent([]byte(`{"type":"patient.cancelled","entity_id":"p1","day":"2026-04-02","payload":{"room_id":"R2"}}`))
	assert.True(t, ok)
	assert.Equal(t, "R2", meta.RoomID)

	_, ok = metaFromEvent([]byte(`not json`))
	assert.False(t, ok)
	_, ok = metaFromEvent([]byte(`{"payload":{}}`))
	assert.False(t, ok)
}
