// Package memory provides the embedded transactional store. Transactions are serialised
// behind a single lock and buffer their writes until the function returns without error,
// so a failed unit of work leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

type state struct {
	counters map[string]models.QueueCounter
	patients map[string]models.Patient
	rooms    map[string]models.Room
	numbers  map[string]string
	resets   map[string]models.ResetRecord
}

type Store struct {
	mu    sync.RWMutex
	state state
}

func NewStore() *Store {
	return &Store{state: state{
		counters: map[string]models.QueueCounter{},
		patients: map[string]models.Patient{},
		rooms:    map[string]models.Room{},
		numbers:  map[string]string{},
		resets:   map[string]models.ResetRecord{},
	}}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		base:     &s.state,
		counters: map[string]models.QueueCounter{},
		patients: map[string]models.Patient{},
		rooms:    map[string]models.Room{},
		numbers:  map[string]string{},
		resets:   map[string]models.ResetRecord{},
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patient, ok := s.state.patients[patientID]
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return clonePatient(patient), nil
}

func (s *Store) ListPatients(ctx context.Context, day string) ([]models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var patients []models.Patient
	for _, patient := range s.state.patients {
		if day != "" && patient.Day != day {
			continue
		}
		patients = append(patients, clonePatient(patient))
	}
	store.SortPatients(patients)
	return patients, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.state.rooms[roomID]
	if !ok {
		return models.Room{}, store.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]models.Room, 0, len(s.state.rooms))
	for _, room := range s.state.rooms {
		rooms = append(rooms, cloneRoom(room))
	}
	store.SortRooms(rooms)
	return rooms, nil
}

// transaction overlays pending writes on the committed state.
type transaction struct {
	base     *state
	counters map[string]models.QueueCounter
	patients map[string]models.Patient
	rooms    map[string]models.Room
	numbers  map[string]string
	resets   map[string]models.ResetRecord
}

func (t *transaction) commit() {
	for day, counter := range t.counters {
		t.base.counters[day] = counter
	}
	for id, patient := range t.patients {
		t.base.patients[id] = patient
	}
	for id, room := range t.rooms {
		t.base.rooms[id] = room
	}
	for key, id := range t.numbers {
		t.base.numbers[key] = id
	}
	for day, record := range t.resets {
		t.base.resets[day] = record
	}
}

func (t *transaction) GetCounter(ctx context.Context, day string) (models.QueueCounter, bool, error) {
	if counter, ok := t.counters[day]; ok {
		return counter, true, nil
	}
	counter, ok := t.base.counters[day]
	return counter, ok, nil
}

func (t *transaction) CreateCounter(ctx context.Context, counter models.QueueCounter) error {
	if _, found, _ := t.GetCounter(ctx, counter.Day); found {
		return fmt.Errorf("counter %s: %w", counter.Day, store.ErrConflict)
	}
	t.counters[counter.Day] = counter
	return nil
}

func (t *transaction) UpdateCounter(ctx context.Context, counter models.QueueCounter) error {
	if _, found, _ := t.GetCounter(ctx, counter.Day); !found {
		return fmt.Errorf("counter %s: %w", counter.Day, store.ErrConflict)
	}
	t.counters[counter.Day] = counter
	return nil
}

func (t *transaction) patient(patientID string) (models.Patient, bool) {
	if patient, ok := t.patients[patientID]; ok {
		return patient, true
	}
	patient, ok := t.base.patients[patientID]
	return patient, ok
}

func (t *transaction) eachPatient(fn func(models.Patient)) {
	for id, patient := range t.base.patients {
		if pending, ok := t.patients[id]; ok {
			patient = pending
		}
		fn(patient)
	}
	for id, patient := range t.patients {
		if _, ok := t.base.patients[id]; !ok {
			fn(patient)
		}
	}
}

func (t *transaction) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	patient, ok := t.patient(patientID)
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return clonePatient(patient), nil
}

func (t *transaction) FindPatientByQueueNumber(ctx context.Context, day string, queueNumber int) (models.Patient, error) {
	key := numberKey(day, queueNumber)
	id, ok := t.numbers[key]
	if !ok {
		id, ok = t.base.numbers[key]
	}
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return t.GetPatient(ctx, id)
}

func (t *transaction) NextRegisteredPatient(ctx context.Context, day string) (models.Patient, bool, error) {
	var next models.Patient
	found := false
	t.eachPatient(func(patient models.Patient) {
		if patient.Day != day || patient.Status != models.StatusRegistered {
			return
		}
		if !found || patient.QueueNumber < next.QueueNumber {
			next = patient
			found = true
		}
	})
	if !found {
		return models.Patient{}, false, nil
	}
	return clonePatient(next), true, nil
}

func (t *transaction) ListOpenPatientsBefore(ctx context.Context, day string) ([]models.Patient, error) {
	var patients []models.Patient
	t.eachPatient(func(patient models.Patient) {
		if patient.Day < day && !patient.Terminal() {
			patients = append(patients, clonePatient(patient))
		}
	})
	store.SortPatients(patients)
	return patients, nil
}

func (t *transaction) CreatePatient(ctx context.Context, patient models.Patient) error {
	if _, exists := t.patient(patient.PatientID); exists {
		return fmt.Errorf("patient %s: %w", patient.PatientID, store.ErrConflict)
	}
	key := numberKey(patient.Day, patient.QueueNumber)
	_, taken := t.numbers[key]
	if !taken {
		_, taken = t.base.numbers[key]
	}
	if taken {
		return fmt.Errorf("queue number %d on %s: %w", patient.QueueNumber, patient.Day, store.ErrConflict)
	}
	t.patients[patient.PatientID] = clonePatient(patient)
	t.numbers[key] = patient.PatientID
	return nil
}

func (t *transaction) UpdatePatient(ctx context.Context, patient models.Patient) error {
	if _, exists := t.patient(patient.PatientID); !exists {
		return store.ErrPatientNotFound
	}
	t.patients[patient.PatientID] = clonePatient(patient)
	return nil
}

func (t *transaction) room(roomID string) (models.Room, bool) {
	if room, ok := t.rooms[roomID]; ok {
		return room, true
	}
	room, ok := t.base.rooms[roomID]
	return room, ok
}

func (t *transaction) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	room, ok := t.room(roomID)
	if !ok {
		return models.Room{}, store.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (t *transaction) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms := make([]models.Room, 0, len(t.base.rooms)+len(t.rooms))
	for id, room := range t.base.rooms {
		if pending, ok := t.rooms[id]; ok {
			room = pending
		}
		rooms = append(rooms, cloneRoom(room))
	}
	for id, room := range t.rooms {
		if _, ok := t.base.rooms[id]; !ok {
			rooms = append(rooms, cloneRoom(room))
		}
	}
	store.SortRooms(rooms)
	return rooms, nil
}

func (t *transaction) CreateRoom(ctx context.Context, room models.Room) error {
	if _, exists := t.room(room.RoomID); exists {
		return fmt.Errorf("room %s: %w", room.RoomID, store.ErrConflict)
	}
	t.rooms[room.RoomID] = cloneRoom(room)
	return nil
}

func (t *transaction) UpdateRoom(ctx context.Context, room models.Room) error {
	if _, exists := t.room(room.RoomID); !exists {
		return store.ErrRoomNotFound
	}
	t.rooms[room.RoomID] = cloneRoom(room)
	return nil
}

func (t *transaction) GetReset(ctx context.Context, day string) (models.ResetRecord, bool, error) {
	if record, ok := t.resets[day]; ok {
		return record, true, nil
	}
	record, ok := t.base.resets[day]
	return record, ok, nil
}

func (t *transaction) SaveReset(ctx context.Context, record models.ResetRecord) error {
	t.resets[record.Day] = record
	return nil
}

func numberKey(day string, queueNumber int) string {
	return fmt.Sprintf("%s#%d", day, queueNumber)
}

func clonePatient(p models.Patient) models.Patient {
	p.Name = cloneString(p.Name)
	p.Phone = cloneString(p.Phone)
	p.Gender = cloneString(p.Gender)
	p.Notes = cloneString(p.Notes)
	p.RoomID = cloneString(p.RoomID)
	if p.Age != nil {
		age := *p.Age
		p.Age = &age
	}
	return p
}

func cloneRoom(r models.Room) models.Room {
	if r.CurrentPatient != nil {
		snapshot := *r.CurrentPatient
		r.CurrentPatient = &snapshot
	}
	return r
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
