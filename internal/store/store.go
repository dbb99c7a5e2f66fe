package store

import (
	"context"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
)

// Store persists the three collections the queue core works on: queue counters keyed by
// day, patients keyed by id and rooms keyed by id.
//
// Every mutation goes through RunInTx. Implementations must give the function at least
// snapshot isolation and either commit all of its writes or none of them. A lost race is
// reported as ErrConflict so the caller can rerun the function from scratch.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	ListPatients(ctx context.Context, day string) ([]models.Patient, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
}

// Tx is the view of the store inside one transaction. Reads must happen before writes
// in every unit of work; document stores reject reads after the first write.
type Tx interface {
	GetCounter(ctx context.Context, day string) (models.QueueCounter, bool, error)
	// CreateCounter fails with ErrConflict when the day already has a counter.
	CreateCounter(ctx context.Context, counter models.QueueCounter) error
	UpdateCounter(ctx context.Context, counter models.QueueCounter) error

	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	FindPatientByQueueNumber(ctx context.Context, day string, queueNumber int) (models.Patient, error)
	// NextRegisteredPatient returns the registered patient of day with the lowest queue number.
	NextRegisteredPatient(ctx context.Context, day string) (models.Patient, bool, error)
	// ListOpenPatientsBefore returns non-terminal patients whose day sorts before day.
	ListOpenPatientsBefore(ctx context.Context, day string) ([]models.Patient, error)
	// CreatePatient fails with ErrConflict when the queue number is already taken for the day.
	CreatePatient(ctx context.Context, patient models.Patient) error
	UpdatePatient(ctx context.Context, patient models.Patient) error

	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	CreateRoom(ctx context.Context, room models.Room) error
	UpdateRoom(ctx context.Context, room models.Room) error

	GetReset(ctx context.Context, day string) (models.ResetRecord, bool, error)
	// SaveReset creates or replaces the reset record of the record's day.
	SaveReset(ctx context.Context, record models.ResetRecord) error
}
