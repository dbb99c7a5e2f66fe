// Package fanout broadcasts state changes to dashboards, TV displays and phones after the
// owning transaction has committed. Delivery is best effort: observers treat an event as a
// hint to re-read the store, never as the state itself.
package fanout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	EventQueueIssued       = "queue.issued"
	EventPatientRegistered = "patient.registered"
	EventRoomAssigned      = "room.assigned"
	EventPatientCompleted  = "patient.completed"
	EventPatientCancelled  = "patient.cancelled"
	EventRoomPaused        = "room.paused"
	EventRoomResumed       = "room.resumed"
	EventRoomRepaired      = "room.repaired"
	EventResetCompleted    = "reset.completed"
)

type Event struct {
	Type       string                 `json:"type"`
	EntityID   string                 `json:"entity_id"`
	Day        string                 `json:"day,omitempty"`
	RoomID     string                 `json:"room_id,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Multi forwards every event to all publishers and reports every failure.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the log; used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Debug("fan-out event",
		zap.String("type", event.Type),
		zap.String("entity_id", event.EntityID),
		zap.String("room_id", event.RoomID),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
