// Package firestore stores counters, patients and rooms in Cloud Firestore.
//
// Firestore rejects reads issued after the first write of a transaction, so the
// transaction wrapper buffers writes in memory, serves later reads from that buffer and
// hands the writes to Firestore only after the unit of work returns. Queue numbers are
// claimed through a marker document per (day, number) whose creation fails when the
// number is already taken.
package firestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

const (
	CollectionCounters     = "queueCounter"
	CollectionPatients     = "patients"
	CollectionRooms        = "rooms"
	CollectionQueueNumbers = "queueNumbers"
	CollectionResets       = "resets"
)

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

// RunInTx runs fn in a single Firestore transaction attempt. Contention surfaces as
// ErrConflict and the caller decides whether to run fn again.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		tx := newTransaction(s.client, ftx)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.flush()
	}, firestore.MaxAttempts(1))
	return mapError(err)
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	snap, err := s.client.Collection(CollectionPatients).Doc(patientID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.Patient{}, store.ErrPatientNotFound
	}
	if err != nil {
		return models.Patient{}, mapError(err)
	}
	return decodePatient(snap)
}

func (s *Store) ListPatients(ctx context.Context, day string) ([]models.Patient, error) {
	query := s.client.Collection(CollectionPatients).OrderBy("day", firestore.Asc).OrderBy("queueNumber", firestore.Asc)
	if day != "" {
		query = s.client.Collection(CollectionPatients).Where("day", "==", day).OrderBy("queueNumber", firestore.Asc)
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return decodePatients(snaps)
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	snap, err := s.client.Collection(CollectionRooms).Doc(roomID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.Room{}, store.ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, mapError(err)
	}
	return decodeRoom(snap)
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	snaps, err := s.client.Collection(CollectionRooms).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return decodeRooms(snaps)
}

type transaction struct {
	client *firestore.Client
	tx     *firestore.Transaction

	counters map[string]models.QueueCounter
	patients map[string]models.Patient
	rooms    map[string]models.Room
	resets   map[string]models.ResetRecord
	writes   []func(*firestore.Transaction) error
}

func newTransaction(client *firestore.Client, tx *firestore.Transaction) *transaction {
	return &transaction{
		client:   client,
		tx:       tx,
		counters: map[string]models.QueueCounter{},
		patients: map[string]models.Patient{},
		rooms:    map[string]models.Room{},
		resets:   map[string]models.ResetRecord{},
	}
}

func (t *transaction) flush() error {
	for _, write := range t.writes {
		if err := write(t.tx); err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) GetCounter(ctx context.Context, day string) (models.QueueCounter, bool, error) {
	if counter, ok := t.counters[day]; ok {
		return counter, true, nil
	}
	snap, err := t.tx.Get(t.client.Collection(CollectionCounters).Doc(day))
	if status.Code(err) == codes.NotFound {
		return models.QueueCounter{}, false, nil
	}
	if err != nil {
		return models.QueueCounter{}, false, mapError(err)
	}
	var doc counterDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.QueueCounter{}, false, fmt.Errorf("decode counter %s: %w", day, err)
	}
	return doc.model(), true, nil
}

func (t *transaction) CreateCounter(ctx context.Context, counter models.QueueCounter) error {
	t.counters[counter.Day] = counter
	ref := t.client.Collection(CollectionCounters).Doc(counter.Day)
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		return tx.Create(ref, newCounterDoc(counter))
	})
	return nil
}

func (t *transaction) UpdateCounter(ctx context.Context, counter models.QueueCounter) error {
	t.counters[counter.Day] = counter
	ref := t.client.Collection(CollectionCounters).Doc(counter.Day)
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		return tx.Set(ref, newCounterDoc(counter))
	})
	return nil
}

func (t *transaction) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	if patient, ok := t.patients[patientID]; ok {
		return patient, nil
	}
	snap, err := t.tx.Get(t.client.Collection(CollectionPatients).Doc(patientID))
	if status.Code(err) == codes.NotFound {
		return models.Patient{}, store.ErrPatientNotFound
	}
	if err != nil {
		return models.Patient{}, mapError(err)
	}
	return decodePatient(snap)
}

func (t *transaction) FindPatientByQueueNumber(ctx context.Context, day string, queueNumber int) (models.Patient, error) {
	for _, patient := range t.patients {
		if patient.Day == day && patient.QueueNumber == queueNumber {
			return patient, nil
		}
	}
	query := t.client.Collection(CollectionPatients).
		Where("day", "==", day).
		Where("queueNumber", "==", queueNumber).
		Limit(1)
	snaps, err := t.tx.Documents(query).GetAll()
	if err != nil {
		return models.Patient{}, mapError(err)
	}
	if len(snaps) == 0 {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return decodePatient(snaps[0])
}

func (t *transaction) NextRegisteredPatient(ctx context.Context, day string) (models.Patient, bool, error) {
	query := t.client.Collection(CollectionPatients).
		Where("day", "==", day).
		Where("status", "==", models.StatusRegistered).
		OrderBy("queueNumber", firestore.Asc)
	patients, err := t.queryPatients(query)
	if err != nil {
		return models.Patient{}, false, err
	}
	var next models.Patient
	found := false
	for _, patient := range t.overlay(patients) {
		if patient.Day != day || patient.Status != models.StatusRegistered {
			continue
		}
		if !found || patient.QueueNumber < next.QueueNumber {
			next = patient
			found = true
		}
	}
	return next, found, nil
}

func (t *transaction) ListOpenPatientsBefore(ctx context.Context, day string) ([]models.Patient, error) {
	query := t.client.Collection(CollectionPatients).
		Where("day", "<", day).
		Where("status", "in", []string{models.StatusUnregistered, models.StatusRegistered, models.StatusAssigned})
	patients, err := t.queryPatients(query)
	if err != nil {
		return nil, err
	}
	var open []models.Patient
	for _, patient := range t.overlay(patients) {
		if patient.Day < day && !patient.Terminal() {
			open = append(open, patient)
		}
	}
	store.SortPatients(open)
	return open, nil
}

func (t *transaction) CreatePatient(ctx context.Context, patient models.Patient) error {
	t.patients[patient.PatientID] = patient
	ref := t.client.Collection(CollectionPatients).Doc(patient.PatientID)
	marker := t.client.Collection(CollectionQueueNumbers).Doc(numberKey(patient.Day, patient.QueueNumber))
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		if err := tx.Create(marker, map[string]interface{}{"patientId": patient.PatientID}); err != nil {
			return err
		}
		return tx.Create(ref, newPatientDoc(patient))
	})
	return nil
}

func (t *transaction) UpdatePatient(ctx context.Context, patient models.Patient) error {
	t.patients[patient.PatientID] = patient
	ref := t.client.Collection(CollectionPatients).Doc(patient.PatientID)
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		return tx.Set(ref, newPatientDoc(patient))
	})
	return nil
}

func (t *transaction) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	if room, ok := t.rooms[roomID]; ok {
		return room, nil
	}
	snap, err := t.tx.Get(t.client.Collection(CollectionRooms).Doc(roomID))
	if status.Code(err) == codes.NotFound {
		return models.Room{}, store.ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, mapError(err)
	}
	return decodeRoom(snap)
}

func (t *transaction) ListRooms(ctx context.Context) ([]models.Room, error) {
	snaps, err := t.tx.Documents(t.client.Collection(CollectionRooms)).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	rooms, err := decodeRooms(snaps)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rooms))
	for i, room := range rooms {
		seen[room.RoomID] = true
		if pending, ok := t.rooms[room.RoomID]; ok {
			rooms[i] = pending
		}
	}
	for id, room := range t.rooms {
		if !seen[id] {
			rooms = append(rooms, room)
		}
	}
	store.SortRooms(rooms)
	return rooms, nil
}

func (t *transaction) CreateRoom(ctx context.Context, room models.Room) error {
	t.rooms[room.RoomID] = room
	ref := t.client.Collection(CollectionRooms).Doc(room.RoomID)
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		return tx.Create(ref, newRoomDoc(room))
	})
	return nil
}

func (t *transaction) UpdateRoom(ctx context.Context, room models.Room) error {
	t.rooms[room.RoomID] = room
	ref := t.client.Collection(CollectionRooms).Doc(room.RoomID)
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		return tx.Set(ref, newRoomDoc(room))
	})
	return nil
}

func (t *transaction) GetReset(ctx context.Context, day string) (models.ResetRecord, bool, error) {
	if record, ok := t.resets[day]; ok {
		return record, true, nil
	}
	snap, err := t.tx.Get(t.client.Collection(CollectionResets).Doc(day))
	if status.Code(err) == codes.NotFound {
		return models.ResetRecord{}, false, nil
	}
	if err != nil {
		return models.ResetRecord{}, false, mapError(err)
	}
	var doc resetDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.ResetRecord{}, false, fmt.Errorf("decode reset %s: %w", day, err)
	}
	return doc.model(day), true, nil
}

func (t *transaction) SaveReset(ctx context.Context, record models.ResetRecord) error {
	t.resets[record.Day] = record
	ref := t.client.Collection(CollectionResets).Doc(record.Day)
	t.writes = append(t.writes, func(tx *firestore.Transaction) error {
		return tx.Set(ref, newResetDoc(record))
	})
	return nil
}

func (t *transaction) queryPatients(query firestore.Query) ([]models.Patient, error) {
	snaps, err := t.tx.Documents(query).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return decodePatients(snaps)
}

// overlay replaces fetched patients with their pending versions and adds pending patients
// the query could not see.
func (t *transaction) overlay(fetched []models.Patient) []models.Patient {
	merged := make([]models.Patient, 0, len(fetched)+len(t.patients))
	seen := make(map[string]bool, len(fetched))
	for _, patient := range fetched {
		seen[patient.PatientID] = true
		if pending, ok := t.patients[patient.PatientID]; ok {
			patient = pending
		}
		merged = append(merged, patient)
	}
	for id, patient := range t.patients {
		if !seen[id] {
			merged = append(merged, patient)
		}
	}
	return merged
}

func numberKey(day string, queueNumber int) string {
	return day + "#" + strconv.Itoa(queueNumber)
}

func decodePatient(snap *firestore.DocumentSnapshot) (models.Patient, error) {
	var doc patientDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.Patient{}, fmt.Errorf("decode patient %s: %w", snap.Ref.ID, err)
	}
	return doc.model(snap.Ref.ID), nil
}

func decodePatients(snaps []*firestore.DocumentSnapshot) ([]models.Patient, error) {
	patients := make([]models.Patient, 0, len(snaps))
	for _, snap := range snaps {
		patient, err := decodePatient(snap)
		if err != nil {
			return nil, err
		}
		patients = append(patients, patient)
	}
	return patients, nil
}

func decodeRoom(snap *firestore.DocumentSnapshot) (models.Room, error) {
	var doc roomDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.Room{}, fmt.Errorf("decode room %s: %w", snap.Ref.ID, err)
	}
	return doc.model(snap.Ref.ID), nil
}

func decodeRooms(snaps []*firestore.DocumentSnapshot) ([]models.Room, error) {
	rooms := make([]models.Room, 0, len(snaps))
	for _, snap := range snaps {
		room, err := decodeRoom(snap)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	store.SortRooms(rooms)
	return rooms, nil
}

// mapError translates gRPC status codes into store sentinels. Errors that already carry a
// sentinel pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); !ok {
		return err
	}
	switch status.Code(err) {
	case codes.Aborted, codes.AlreadyExists:
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

type counterDoc struct {
	Day       string    `firestore:"day"`
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newCounterDoc(counter models.QueueCounter) counterDoc {
	return counterDoc{Day: counter.Day, Value: int64(counter.Value), UpdatedAt: counter.UpdatedAt}
}

func (d counterDoc) model() models.QueueCounter {
	return models.QueueCounter{Day: d.Day, Value: int(d.Value), UpdatedAt: d.UpdatedAt}
}

type patientDoc struct {
	QueueNumber  int64      `firestore:"queueNumber"`
	Day          string     `firestore:"day"`
	Status       string     `firestore:"status"`
	Name         *string    `firestore:"name"`
	Phone        *string    `firestore:"phone"`
	Age          *int64     `firestore:"age"`
	Gender       *string    `firestore:"gender"`
	Notes        *string    `firestore:"notes"`
	RoomID       *string    `firestore:"roomId"`
	Archived     bool       `firestore:"archived"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	RegisteredAt *time.Time `firestore:"registeredAt"`
	AssignedAt   *time.Time `firestore:"assignedAt"`
	CompletedAt  *time.Time `firestore:"completedAt"`
	CancelledAt  *time.Time `firestore:"cancelledAt"`
}

func newPatientDoc(p models.Patient) patientDoc {
	doc := patientDoc{
		QueueNumber:  int64(p.QueueNumber),
		Day:          p.Day,
		Status:       p.Status,
		Name:         p.Name,
		Phone:        p.Phone,
		Gender:       p.Gender,
		Notes:        p.Notes,
		RoomID:       p.RoomID,
		Archived:     p.Archived,
		CreatedAt:    p.CreatedAt,
		RegisteredAt: p.RegisteredAt,
		AssignedAt:   p.AssignedAt,
		CompletedAt:  p.CompletedAt,
		CancelledAt:  p.CancelledAt,
	}
	if p.Age != nil {
		age := int64(*p.Age)
		doc.Age = &age
	}
	return doc
}

func (d patientDoc) model(id string) models.Patient {
	p := models.Patient{
		PatientID:    id,
		QueueNumber:  int(d.QueueNumber),
		Day:          d.Day,
		Status:       d.Status,
		Name:         d.Name,
		Phone:        d.Phone,
		Gender:       d.Gender,
		Notes:        d.Notes,
		RoomID:       d.RoomID,
		Archived:     d.Archived,
		CreatedAt:    d.CreatedAt,
		RegisteredAt: d.RegisteredAt,
		AssignedAt:   d.AssignedAt,
		CompletedAt:  d.CompletedAt,
		CancelledAt:  d.CancelledAt,
	}
	if d.Age != nil {
		age := int(*d.Age)
		p.Age = &age
	}
	return p
}

type snapshotDoc struct {
	PatientID   string `firestore:"patientId"`
	QueueNumber int64  `firestore:"queueNumber"`
	Name        string `firestore:"name"`
	Age         int64  `firestore:"age"`
	Gender      string `firestore:"gender"`
	Notes       string `firestore:"notes"`
}

type roomDoc struct {
	RoomNumber     int64        `firestore:"roomNumber"`
	DoctorName     string       `firestore:"doctorName"`
	Status         string       `firestore:"status"`
	CurrentPatient *snapshotDoc `firestore:"currentPatient"`
	UpdatedAt      time.Time    `firestore:"updatedAt"`
}

func newRoomDoc(r models.Room) roomDoc {
	doc := roomDoc{
		RoomNumber: int64(r.RoomNumber),
		DoctorName: r.DoctorName,
		Status:     r.Status,
		UpdatedAt:  r.UpdatedAt,
	}
	if s := r.CurrentPatient; s != nil {
		doc.CurrentPatient = &snapshotDoc{
			PatientID:   s.PatientID,
			QueueNumber: int64(s.QueueNumber),
			Name:        s.Name,
			Age:         int64(s.Age),
			Gender:      s.Gender,
			Notes:       s.Notes,
		}
	}
	return doc
}

func (d roomDoc) model(id string) models.Room {
	room := models.Room{
		RoomID:     id,
		RoomNumber: int(d.RoomNumber),
		DoctorName: d.DoctorName,
		Status:     d.Status,
		UpdatedAt:  d.UpdatedAt,
	}
	if s := d.CurrentPatient; s != nil {
		room.CurrentPatient = &models.PatientSnapshot{
			PatientID:   s.PatientID,
			QueueNumber: int(s.QueueNumber),
			Name:        s.Name,
			Age:         int(s.Age),
			Gender:      s.Gender,
			Notes:       s.Notes,
		}
	}
	return room
}

type resetDoc struct {
	ArchivedCount  int64     `firestore:"archivedCount"`
	ResetRoomCount int64     `firestore:"resetRoomCount"`
	CompletedAt    time.Time `firestore:"completedAt"`
}

func newResetDoc(r models.ResetRecord) resetDoc {
	return resetDoc{ArchivedCount: int64(r.ArchivedCount), ResetRoomCount: int64(r.ResetRoomCount), CompletedAt: r.CompletedAt}
}

func (d resetDoc) model(day string) models.ResetRecord {
	return models.ResetRecord{Day: day, ArchivedCount: int(d.ArchivedCount), ResetRoomCount: int(d.ResetRoomCount), CompletedAt: d.CompletedAt}
}
