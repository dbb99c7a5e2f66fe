package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/messaging"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var issued = Event{
	Type:       EventQueueIssued,
	EntityID:   "p-1",
	Day:        "2026-04-02",
	Payload:    map[string]interface{}{"queue_number": 7, "patient_id": "p-1"},
	OccurredAt: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
}

type fakeRedis struct {
	channel string
	message []byte
	err     error
	closed  bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublisherSendsJSONEnvelope(t *testing.T) {
	client := &fakeRedis{}
	publisher := newRedisPublisher(client, "")

	require.NoError(t, publisher.Publish(context.Background(), issued))
	assert.Equal(t, DefaultChannel, client.channel)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(client.message, &decoded))
	assert.Equal(t, EventQueueIssued, decoded["type"])
	assert.Equal(t, "p-1", decoded["entity_id"])
	assert.Equal(t, float64(7), decoded["payload"].(map[string]interface{})["queue_number"])

	require.NoError(t, publisher.Close())
	assert.True(t, client.closed)
}

func TestRedisPublisherWrapsErrors(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}
	err := newRedisPublisher(client, "custom").Publish(context.Background(), issued)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.issued")
	assert.Equal(t, "custom", client.channel)
}

type fakeToken struct {
	err      error
	finished bool
}

func (t *fakeToken) Wait() bool                     { return t.finished }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.finished }
func (t *fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTT struct {
	topics []string
	token  *fakeToken
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.topics = append(f.topics, topic)
	return f.token
}

func (f *fakeMQTT) Disconnect(quiesce uint) {}

func TestMQTTPublisherTopics(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{finished: true}}
	publisher := newMQTTPublisher(client, "hospital/")

	require.NoError(t, publisher.Publish(context.Background(), Event{Type: EventRoomAssigned, EntityID: "R1"}))
	assert.Equal(t, []string{"hospital/room/assigned"}, client.topics)
	assert.Equal(t, "qms/queue/issued", newMQTTPublisher(client, "").Topic(EventQueueIssued))
}

func TestMQTTPublisherTimeoutAndError(t *testing.T) {
	slow := newMQTTPublisher(&fakeMQTT{token: &fakeToken{}}, "qms")
	require.Error(t, slow.Publish(context.Background(), issued))

	failing := newMQTTPublisher(&fakeMQTT{token: &fakeToken{finished: true, err: errors.New("not connected")}}, "qms")
	err := failing.Publish(context.Background(), issued)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

type fakeSender struct {
	messages []*messaging.Message
}

func (f *fakeSender) Send(ctx context.Context, message *messaging.Message) (string, error) {
	f.messages = append(f.messages, message)
	return "projects/qms/messages/1", nil
}

func TestFCMPublisherSendsTemplatedNotifications(t *testing.T) {
	sender := &fakeSender{}
	publisher := &FCMPublisher{client: sender, topic: "clinic"}

	require.NoError(t, publisher.Publish(context.Background(), Event{
		Type:     EventRoomAssigned,
		EntityID: "R2",
		RoomID:   "R2",
		Payload:  map[string]interface{}{"queue_number": 12, "room_number": 2},
	}))
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: EventRoomPaused, EntityID: "R2"}))

	require.Len(t, sender.messages, 1)
	message := sender.messages[0]
	assert.Equal(t, "clinic", message.Topic)
	assert.Equal(t, "Now serving", message.Notification.Title)
	assert.Equal(t, "Ticket 12, please proceed to room 2.", message.Notification.Body)
	assert.Equal(t, "R2", message.Data["room_id"])
}

func TestRenderTemplate(t *testing.T) {
	result := renderTemplate("Ticket {queue_number} to {room_id} with {doctor_name}", map[string]interface{}{
		"queue_number": 3,
		"room_id":      "R1",
	})
	assert.Equal(t, "Ticket 3 to R1 with ", result)
	assert.Equal(t, "", templateForEvent(EventResetCompleted))
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }
func (f failingPublisher) Close() error                         { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	multi := Multi{NewLogPublisher(zap.NewNop()), failingPublisher{err: boom}}

	err := multi.Publish(context.Background(), issued)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, multi.Close(), boom)
	require.NoError(t, Multi{NewLogPublisher(zap.NewNop())}.Publish(context.Background(), issued))
}
