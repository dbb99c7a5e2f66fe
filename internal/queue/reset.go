package queue

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

type ResetResult struct {
	Day            string `json:"day"`
	ArchivedCount  int    `json:"archived_count"`
	ResetRoomCount int    `json:"reset_room_count"`
	// KeptRoomCount counts rooms left alone because today's patient is still inside.
	KeptRoomCount int `json:"kept_room_count"`
	// Skipped is set when a scheduled reset finds today's reset already recorded.
	Skipped bool `json:"skipped,omitempty"`
}

// RunDailyReset completes every live patient from a day before today and empties every
// room that does not hold one of today's consultations. Rooms already available and empty
// are left untouched, so a second run changes nothing.
func (s *Service) RunDailyReset(ctx context.Context) (ResetResult, error) {
	return s.reset(ctx, "RunDailyReset", false)
}

// RunScheduledReset is the scheduler's entry point: it does nothing when a reset has
// already been recorded for today, so restarts never repeat it.
func (s *Service) RunScheduledReset(ctx context.Context) (ResetResult, error) {
	return s.reset(ctx, "RunScheduledReset", true)
}

func (s *Service) reset(ctx context.Context, operation string, oncePerDay bool) (result ResetResult, err error) {
	ctx, span := s.startSpan(ctx, operation)
	defer func() { endSpan(span, err) }()

	now, day := s.instant()
	err = s.runTx(ctx, "daily_reset", func(ctx context.Context, tx store.Tx) error {
		result = ResetResult{Day: day}
		if oncePerDay {
			_, done, err := tx.GetReset(ctx, day)
			if err != nil {
				return err
			}
			if done {
				result.Skipped = true
				return nil
			}
		}

		stragglers, err := tx.ListOpenPatientsBefore(ctx, day)
		if err != nil {
			return err
		}
		rooms, err := tx.ListRooms(ctx)
		if err != nil {
			return err
		}
		occupants := make(map[string]models.Patient)
		for _, room := range rooms {
			if room.CurrentPatient == nil {
				continue
			}
			patient, err := tx.GetPatient(ctx, room.CurrentPatient.PatientID)
			if errors.Is(err, store.ErrPatientNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			occupants[room.RoomID] = patient
		}

		for _, patient := range stragglers {
			if !store.ValidTransition("archive", patient.Status) {
				continue
			}
			patient.Status = models.StatusCompleted
			patient.Archived = true
			patient.CompletedAt = &now
			if err := tx.UpdatePatient(ctx, patient); err != nil {
				return err
			}
			result.ArchivedCount++
		}
		for _, room := range rooms {
			if room.Status == models.RoomAvailable && room.CurrentPatient == nil {
				continue
			}
			if occupant, ok := occupants[room.RoomID]; ok && inConsultation(occupant, room.RoomID, day) {
				result.KeptRoomCount++
				continue
			}
			if err := tx.UpdateRoom(ctx, room.Released(now)); err != nil {
				return err
			}
			result.ResetRoomCount++
		}

		return tx.SaveReset(ctx, models.ResetRecord{
			Day:            day,
			ArchivedCount:  result.ArchivedCount,
			ResetRoomCount: result.ResetRoomCount,
			CompletedAt:    now,
		})
	})
	if err != nil {
		return ResetResult{}, err
	}

	if result.Skipped {
		s.logger.Debug("daily reset already done", zap.String("day", day))
		return result, nil
	}
	s.logger.Info("daily reset completed",
		zap.String("day", day),
		zap.Int("archived", result.ArchivedCount),
		zap.Int("rooms_reset", result.ResetRoomCount),
		zap.Int("rooms_kept", result.KeptRoomCount),
	)
	s.publish(ctx, fanout.Event{
		Type:     fanout.EventResetCompleted,
		EntityID: day,
		Day:      day,
		Payload: map[string]interface{}{
			"archived_count":   result.ArchivedCount,
			"reset_room_count": result.ResetRoomCount,
			"kept_room_count":  result.KeptRoomCount,
		},
		OccurredAt: now,
	})
	return result, nil
}

// inConsultation reports whether patient is one of today's assignments to roomID.
func inConsultation(patient models.Patient, roomID, day string) bool {
	return patient.Day == day &&
		patient.Status == models.StatusAssigned &&
		patient.RoomID != nil && *patient.RoomID == roomID
}
