package queue

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

const (
	RepairBusyWithoutPatient = "busy_without_patient"
	RepairPatientMissing     = "patient_missing"
	RepairPatientNotAssigned = "patient_not_assigned"
	RepairPatientElsewhere   = "patient_in_other_room"
	RepairStatusMismatch     = "status_mismatch"
)

type Repair struct {
	RoomID    string `json:"room_id"`
	PatientID string `json:"patient_id,omitempty"`
	Reason    string `json:"reason"`
	Status    string `json:"status"`
}

type ReconcileResult struct {
	Scanned  int      `json:"scanned"`
	Repaired []Repair `json:"repaired"`
}

// Reconcile repairs rooms left inconsistent by a partially applied pairing. Patients are
// the source of truth and are never modified.
func (s *Service) Reconcile(ctx context.Context) (result ReconcileResult, err error) {
	ctx, span := s.startSpan(ctx, "Reconcile")
	defer func() { endSpan(span, err) }()

	now := s.now()
	err = s.runTx(ctx, "reconcile", func(ctx context.Context, tx store.Tx) error {
		result = ReconcileResult{Repaired: []Repair{}}
		rooms, err := tx.ListRooms(ctx)
		if err != nil {
			return err
		}
		result.Scanned = len(rooms)

		var fixes []models.Room
		for _, room := range rooms {
			fixed, repair, err := inspectRoom(ctx, tx, room)
			if err != nil {
				return err
			}
			if repair == nil {
				continue
			}
			fixed.UpdatedAt = now
			fixes = append(fixes, fixed)
			result.Repaired = append(result.Repaired, *repair)
		}
		for _, room := range fixes {
			if err := tx.UpdateRoom(ctx, room); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	for _, repair := range result.Repaired {
		s.logger.Warn("room repaired",
			zap.String("room_id", repair.RoomID),
			zap.String("patient_id", repair.PatientID),
			zap.String("reason", repair.Reason),
		)
		s.publish(ctx, fanout.Event{
			Type:     fanout.EventRoomRepaired,
			EntityID: repair.RoomID,
			RoomID:   repair.RoomID,
			Payload: map[string]interface{}{
				"room_id":    repair.RoomID,
				"patient_id": repair.PatientID,
				"reason":     repair.Reason,
				"status":     repair.Status,
			},
			OccurredAt: now,
		})
	}
	return result, nil
}

// inspectRoom returns the corrected room and a repair record, or a nil repair when the
// room agrees with its patient.
func inspectRoom(ctx context.Context, tx store.Tx, room models.Room) (models.Room, *Repair, error) {
	if room.CurrentPatient == nil {
		if room.Validate() == nil {
			return room, nil, nil
		}
		reason := RepairStatusMismatch
		if room.Status == models.RoomBusy {
			reason = RepairBusyWithoutPatient
		}
		fixed := room.Released(room.UpdatedAt)
		return fixed, &Repair{RoomID: room.RoomID, Reason: reason, Status: fixed.Status}, nil
	}

	patientID := room.CurrentPatient.PatientID
	patient, err := tx.GetPatient(ctx, patientID)
	reason := ""
	switch {
	case errors.Is(err, store.ErrPatientNotFound):
		reason = RepairPatientMissing
	case err != nil:
		return room, nil, err
	case patient.Status != models.StatusAssigned:
		reason = RepairPatientNotAssigned
	case patient.RoomID == nil || *patient.RoomID != room.RoomID:
		reason = RepairPatientElsewhere
	}
	if reason != "" {
		fixed := room.Released(room.UpdatedAt)
		return fixed, &Repair{RoomID: room.RoomID, PatientID: patientID, Reason: reason, Status: fixed.Status}, nil
	}

	if room.Status != models.RoomBusy {
		room.Status = models.RoomBusy
		return room, &Repair{RoomID: room.RoomID, PatientID: patientID, Reason: RepairStatusMismatch, Status: room.Status}, nil
	}
	return room, nil, nil
}
