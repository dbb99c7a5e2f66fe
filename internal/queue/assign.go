package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

type Assignment struct {
	Room    models.Room    `json:"room"`
	Patient models.Patient `json:"patient"`
}

// Assign places a registered patient in an available room.
func (s *Service) Assign(ctx context.Context, patientID, roomID string) (result Assignment, err error) {
	ctx, span := s.startSpan(ctx, "Assign")
	defer func() { endSpan(span, err) }()

	now := s.now()
	err = s.runTx(ctx, "assign", func(ctx context.Context, tx store.Tx) error {
		patient, err := tx.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		if !store.ValidTransition("assign", patient.Status) {
			return fmt.Errorf("%w: patient %s is %s", store.ErrPatientNotEligible, patientID, patient.Status)
		}
		result, err = occupy(ctx, tx, patient, roomID, now)
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	s.announceAssignment(ctx, result)
	return result, nil
}

// AssignNext places today's registered patient with the lowest queue number in roomID.
func (s *Service) AssignNext(ctx context.Context, roomID string) (result Assignment, err error) {
	ctx, span := s.startSpan(ctx, "AssignNext")
	defer func() { endSpan(span, err) }()

	now, day := s.instant()
	err = s.runTx(ctx, "assign_next", func(ctx context.Context, tx store.Tx) error {
		patient, found, err := tx.NextRegisteredPatient(ctx, day)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: no registered patient waiting on %s", store.ErrPatientNotEligible, day)
		}
		result, err = occupy(ctx, tx, patient, roomID, now)
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	s.announceAssignment(ctx, result)
	return result, nil
}

// occupy pairs an eligible patient with the room. The patient is written before the room.
func occupy(ctx context.Context, tx store.Tx, patient models.Patient, roomID string, now time.Time) (Assignment, error) {
	room, err := tx.GetRoom(ctx, roomID)
	if err != nil {
		return Assignment{}, err
	}
	if !store.ValidRoomTransition("occupy", room.Status) || room.CurrentPatient != nil {
		return Assignment{}, fmt.Errorf("%w: room %s is %s", store.ErrRoomNotAvailable, roomID, room.Status)
	}

	patient.Status = models.StatusAssigned
	patient.RoomID = &room.RoomID
	patient.AssignedAt = &now
	if err := tx.UpdatePatient(ctx, patient); err != nil {
		return Assignment{}, err
	}

	snapshot := patient.Snapshot()
	room.Status = models.RoomBusy
	room.CurrentPatient = &snapshot
	room.UpdatedAt = now
	if err := tx.UpdateRoom(ctx, room); err != nil {
		return Assignment{}, err
	}
	return Assignment{Room: room, Patient: patient}, nil
}

func (s *Service) announceAssignment(ctx context.Context, result Assignment) {
	s.logger.Info("patient assigned",
		zap.String("patient_id", result.Patient.PatientID),
		zap.Int("queue_number", result.Patient.QueueNumber),
		zap.String("room_id", result.Room.RoomID),
	)
	s.publish(ctx, fanout.Event{
		Type:     fanout.EventRoomAssigned,
		EntityID: result.Room.RoomID,
		Day:      result.Patient.Day,
		RoomID:   result.Room.RoomID,
		Payload: map[string]interface{}{
			"room_id":      result.Room.RoomID,
			"room_number":  result.Room.RoomNumber,
			"doctor_name":  result.Room.DoctorName,
			"patient_id":   result.Patient.PatientID,
			"queue_number": result.Patient.QueueNumber,
		},
		OccurredAt: result.Room.UpdatedAt,
	})
}

// Complete ends the consultation running in roomID and frees the room.
func (s *Service) Complete(ctx context.Context, roomID string) (result Assignment, err error) {
	ctx, span := s.startSpan(ctx, "Complete")
	defer func() { endSpan(span, err) }()

	now := s.now()
	err = s.runTx(ctx, "complete", func(ctx context.Context, tx store.Tx) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.CurrentPatient == nil {
			return fmt.Errorf("%w: %s", store.ErrEmptyRoom, roomID)
		}
		patient, err := tx.GetPatient(ctx, room.CurrentPatient.PatientID)
		if errors.Is(err, store.ErrPatientNotFound) {
			return fmt.Errorf("%w: room %s holds unknown patient %s", store.ErrInvalidState, roomID, room.CurrentPatient.PatientID)
		}
		if err != nil {
			return err
		}
		if !store.ValidTransition("complete", patient.Status) || patient.RoomID == nil || *patient.RoomID != roomID {
			return fmt.Errorf("%w: patient %s is %s and not in room %s", store.ErrInvalidState, patient.PatientID, patient.Status, roomID)
		}

		patient.Status = models.StatusCompleted
		patient.CompletedAt = &now
		if err := tx.UpdatePatient(ctx, patient); err != nil {
			return err
		}
		room = room.Released(now)
		if err := tx.UpdateRoom(ctx, room); err != nil {
			return err
		}
		result = Assignment{Room: room, Patient: patient}
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}

	s.logger.Info("consultation completed",
		zap.String("patient_id", result.Patient.PatientID),
		zap.String("room_id", roomID),
	)
	s.publish(ctx, fanout.Event{
		Type:     fanout.EventPatientCompleted,
		EntityID: result.Patient.PatientID,
		Day:      result.Patient.Day,
		RoomID:   roomID,
		Payload: map[string]interface{}{
			"patient_id":   result.Patient.PatientID,
			"queue_number": result.Patient.QueueNumber,
			"room_id":      roomID,
		},
		OccurredAt: now,
	})
	return result, nil
}

// TogglePause flips an empty room between available and paused and returns the new status.
func (s *Service) TogglePause(ctx context.Context, roomID string) (status string, err error) {
	ctx, span := s.startSpan(ctx, "TogglePause")
	defer func() { endSpan(span, err) }()

	now := s.now()
	var room models.Room
	err = s.runTx(ctx, "toggle_pause", func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if current.CurrentPatient != nil || current.Status == models.RoomBusy {
			return fmt.Errorf("%w: %s", store.ErrRoomBusy, roomID)
		}
		switch {
		case store.ValidRoomTransition("pause", current.Status):
			current.Status = models.RoomPaused
		case store.ValidRoomTransition("resume", current.Status):
			current.Status = models.RoomAvailable
		default:
			return fmt.Errorf("%w: room %s is %s", store.ErrInvalidState, roomID, current.Status)
		}
		current.UpdatedAt = now
		if err := tx.UpdateRoom(ctx, current); err != nil {
			return err
		}
		room = current
		return nil
	})
	if err != nil {
		return "", err
	}

	eventType := fanout.EventRoomResumed
	if room.Status == models.RoomPaused {
		eventType = fanout.EventRoomPaused
	}
	s.logger.Info("room status toggled", zap.String("room_id", roomID), zap.String("status", room.Status))
	s.publish(ctx, fanout.Event{
		Type:       eventType,
		EntityID:   roomID,
		RoomID:     roomID,
		Payload:    map[string]interface{}{"room_id": roomID, "status": room.Status},
		OccurredAt: now,
	})
	return room.Status, nil
}
