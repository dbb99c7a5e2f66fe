package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

// RoomID is the identifier of the n-th provisioned room.
func RoomID(n int) string {
	return fmt.Sprintf("R%d", n)
}

// ProvisionRooms makes sure rooms R1..Rcount exist. Existing rooms keep their state;
// doctors[i] names the doctor of room i+1 for new rooms.
func (s *Service) ProvisionRooms(ctx context.Context, count int, doctors []string) (rooms []models.Room, err error) {
	ctx, span := s.startSpan(ctx, "ProvisionRooms")
	defer func() { endSpan(span, err) }()

	if count <= 0 {
		return nil, fmt.Errorf("%w: room count must be positive", store.ErrInvalidInput)
	}
	now := s.now()
	created := 0
	err = s.runTx(ctx, "provision_rooms", func(ctx context.Context, tx store.Tx) error {
		created = 0
		var missing []models.Room
		for n := 1; n <= count; n++ {
			_, err := tx.GetRoom(ctx, RoomID(n))
			if err == nil {
				continue
			}
			if !errors.Is(err, store.ErrRoomNotFound) {
				return err
			}
			doctor := ""
			if n-1 < len(doctors) {
				doctor = strings.TrimSpace(doctors[n-1])
			}
			missing = append(missing, models.Room{
				RoomID:     RoomID(n),
				RoomNumber: n,
				DoctorName: doctor,
				Status:     models.RoomAvailable,
				UpdatedAt:  now,
			})
		}
		for _, room := range missing {
			if err := tx.CreateRoom(ctx, room); err != nil {
				return err
			}
		}
		created = len(missing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created > 0 {
		s.logger.Info("rooms provisioned", zap.Int("created", created), zap.Int("count", count))
	}
	return s.store.ListRooms(ctx)
}

func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	return s.store.ListRooms(ctx)
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	return s.store.GetRoom(ctx, roomID)
}
