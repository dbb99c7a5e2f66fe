package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

type Allocation struct {
	QueueNumber int       `json:"queue_number"`
	PatientID   string    `json:"patient_id"`
	Day         string    `json:"day"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Allocate claims the next queue number of the day and creates its unregistered patient.
func (s *Service) Allocate(ctx context.Context) (result Allocation, err error) {
	ctx, span := s.startSpan(ctx, "Allocate")
	defer func() { endSpan(span, err) }()

	now, day := s.instant()
	err = s.runTx(ctx, "allocate", func(ctx context.Context, tx store.Tx) error {
		counter, found, err := tx.GetCounter(ctx, day)
		if err != nil {
			return err
		}
		next := s.startNumber
		if found {
			next = counter.Value + 1
		}
		if next > s.maxNumber {
			return fmt.Errorf("%w: %s reached %d", store.ErrQueueFull, day, s.maxNumber)
		}

		counter = models.QueueCounter{Day: day, Value: next, UpdatedAt: now}
		if found {
			err = tx.UpdateCounter(ctx, counter)
		} else {
			err = tx.CreateCounter(ctx, counter)
		}
		if err != nil {
			return err
		}

		patient := models.Patient{
			PatientID:   uuid.NewString(),
			QueueNumber: next,
			Day:         day,
			Status:      models.StatusUnregistered,
			CreatedAt:   now,
		}
		if err := tx.CreatePatient(ctx, patient); err != nil {
			return err
		}
		result = Allocation{QueueNumber: next, PatientID: patient.PatientID, Day: day, IssuedAt: now}
		return nil
	})
	if err != nil {
		return Allocation{}, err
	}

	s.logger.Info("queue number issued",
		zap.String("day", result.Day),
		zap.Int("queue_number", result.QueueNumber),
		zap.String("patient_id", result.PatientID),
	)
	s.publish(ctx, fanout.Event{
		Type:     fanout.EventQueueIssued,
		EntityID: result.PatientID,
		Day:      result.Day,
		Payload: map[string]interface{}{
			"queue_number": result.QueueNumber,
			"issued_at":    result.IssuedAt,
			"patient_id":   result.PatientID,
		},
		OccurredAt: now,
	})
	return result, nil
}
