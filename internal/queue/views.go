package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/clock"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

// Board is what reception dashboards and the TV display render.
type Board struct {
	Day        string           `json:"day"`
	Rooms      []models.Room    `json:"rooms"`
	Waiting    []models.Patient `json:"waiting"`
	Registered []models.Patient `json:"registered"`
}

type Stats struct {
	Day               string         `json:"day"`
	Issued            int            `json:"issued"`
	ByStatus          map[string]int `json:"by_status"`
	Archived          int            `json:"archived"`
	LastNumber        int            `json:"last_number"`
	AvgWaitSeconds    float64        `json:"avg_wait_seconds"`
	AvgConsultSeconds float64        `json:"avg_consult_seconds"`
}

func (s *Service) Board(ctx context.Context) (Board, error) {
	day := s.Today()
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return Board{}, err
	}
	patients, err := s.store.ListPatients(ctx, day)
	if err != nil {
		return Board{}, err
	}
	board := Board{Day: day, Rooms: rooms, Waiting: []models.Patient{}, Registered: []models.Patient{}}
	for _, patient := range patients {
		switch patient.Status {
		case models.StatusUnregistered:
			board.Waiting = append(board.Waiting, patient)
		case models.StatusRegistered:
			board.Registered = append(board.Registered, patient)
		}
	}
	return board, nil
}

func (s *Service) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	return s.store.GetPatient(ctx, patientID)
}

// ListPatients returns the tickets of day ordered by queue number; an empty day means today.
func (s *Service) ListPatients(ctx context.Context, day string) ([]models.Patient, error) {
	day, err := s.resolveDay(day)
	if err != nil {
		return nil, err
	}
	return s.store.ListPatients(ctx, day)
}

// Stats summarises one day. Archived stragglers count as completed but are left out of
// the consultation average.
func (s *Service) Stats(ctx context.Context, day string) (Stats, error) {
	day, err := s.resolveDay(day)
	if err != nil {
		return Stats{}, err
	}
	patients, err := s.store.ListPatients(ctx, day)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Day: day, ByStatus: map[string]int{
		models.StatusUnregistered: 0,
		models.StatusRegistered:   0,
		models.StatusAssigned:     0,
		models.StatusCompleted:    0,
		models.StatusCancelled:    0,
	}}
	var wait, consult time.Duration
	var waitCount, consultCount int
	for _, patient := range patients {
		stats.Issued++
		stats.ByStatus[patient.Status]++
		if patient.Archived {
			stats.Archived++
		}
		if patient.QueueNumber > stats.LastNumber {
			stats.LastNumber = patient.QueueNumber
		}
		if patient.RegisteredAt != nil && patient.AssignedAt != nil {
			wait += patient.AssignedAt.Sub(*patient.RegisteredAt)
			waitCount++
		}
		if !patient.Archived && patient.AssignedAt != nil && patient.CompletedAt != nil {
			consult += patient.CompletedAt.Sub(*patient.AssignedAt)
			consultCount++
		}
	}
	if waitCount > 0 {
		stats.AvgWaitSeconds = wait.Seconds() / float64(waitCount)
	}
	if consultCount > 0 {
		stats.AvgConsultSeconds = consult.Seconds() / float64(consultCount)
	}
	return stats, nil
}

func (s *Service) resolveDay(day string) (string, error) {
	if day == "" {
		return s.Today(), nil
	}
	if _, err := time.Parse(clock.DayLayout, day); err != nil {
		return "", fmt.Errorf("%w: day must be YYYY-MM-DD", store.ErrInvalidInput)
	}
	return day, nil
}
