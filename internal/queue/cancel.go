package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

// Cancel ends a live ticket. A room still holding the patient is released in the same
// transaction.
func (s *Service) Cancel(ctx context.Context, patientID, reason string) (patient models.Patient, err error) {
	ctx, span := s.startSpan(ctx, "Cancel")
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	now := s.now()
	var releasedRoom string
	err = s.runTx(ctx, "cancel", func(ctx context.Context, tx store.Tx) error {
		releasedRoom = ""
		current, err := tx.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		if !store.ValidTransition("cancel", current.Status) {
			return fmt.Errorf("%w: patient %s is %s", store.ErrInvalidState, patientID, current.Status)
		}

		var room models.Room
		holdsRoom := false
		if current.Status == models.StatusAssigned && current.RoomID != nil {
			room, err = tx.GetRoom(ctx, *current.RoomID)
			switch {
			case errors.Is(err, store.ErrRoomNotFound):
			case err != nil:
				return err
			default:
				holdsRoom = room.CurrentPatient != nil && room.CurrentPatient.PatientID == patientID
			}
		}

		current.Status = models.StatusCancelled
		current.CancelledAt = &now
		current.Notes = appendNote(current.Notes, reason)
		if err := tx.UpdatePatient(ctx, current); err != nil {
			return err
		}
		if holdsRoom {
			if err := tx.UpdateRoom(ctx, room.Released(now)); err != nil {
				return err
			}
			releasedRoom = room.RoomID
		}
		patient = current
		return nil
	})
	if err != nil {
		return models.Patient{}, err
	}

	s.logger.Info("patient cancelled",
		zap.String("patient_id", patientID),
		zap.Int("queue_number", patient.QueueNumber),
		zap.String("released_room", releasedRoom),
	)
	s.publish(ctx, fanout.Event{
		Type:     fanout.EventPatientCancelled,
		EntityID: patientID,
		Day:      patient.Day,
		RoomID:   releasedRoom,
		Payload: map[string]interface{}{
			"patient_id":   patientID,
			"queue_number": patient.QueueNumber,
			"reason":       reason,
		},
		OccurredAt: now,
	})
	return patient, nil
}

func appendNote(notes *string, reason string) *string {
	if reason == "" {
		return notes
	}
	note := "cancelled: " + reason
	if notes != nil && *notes != "" {
		note = *notes + "; " + note
	}
	return &note
}
