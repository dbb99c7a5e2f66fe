package fanout

import (
	"context"
	"fmt"

	"firebase.google.com/go/messaging"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher sends a push notification to a topic for events that have a template;
// other events are ignored.
type FCMPublisher struct {
	client messageSender
	topic  string
}

func NewFCMPublisher(client *messaging.Client, topic string) *FCMPublisher {
	return &FCMPublisher{client: client, topic: topic}
}

func (p *FCMPublisher) Publish(ctx context.Context, event Event) error {
	templateID := templateForEvent(event.Type)
	if templateID == "" {
		return nil
	}
	body := renderTemplate(defaultTemplate(templateID), event.Payload)
	message := &messaging.Message{
		Topic: p.topic,
		Notification: &messaging.Notification{
			Title: titleForTemplate(templateID),
			Body:  body,
		},
		Data: map[string]string{
			"type":      event.Type,
			"entity_id": event.EntityID,
			"room_id":   event.RoomID,
		},
	}
	if _, err := p.client.Send(ctx, message); err != nil {
		return fmt.Errorf("fcm send %s: %w", event.Type, err)
	}
	return nil
}

func (p *FCMPublisher) Close() error { return nil }
