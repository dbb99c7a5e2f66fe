// Package postgres stores counters, patients and rooms in PostgreSQL. Transactions run at
// read committed and take row locks on everything they read, so every unit of work sees
// and holds the rows it is about to change.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

const patientColumns = `patient_id, queue_number, day, status, name, phone, age, gender, notes, room_id,
	archived, created_at, registered_at, assigned_at, completed_at, cancelled_at`

const roomColumns = `room_id, room_number, doctor_name, status, current_patient, updated_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			_ = pgxTx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &transaction{q: pgxTx}); err != nil {
		return err
	}
	if err = pgxTx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	return getPatient(ctx, s.pool, `WHERE patient_id = $1`, "", patientID)
}

func (s *Store) ListPatients(ctx context.Context, day string) ([]models.Patient, error) {
	if day == "" {
		return listPatients(ctx, s.pool, `ORDER BY day, queue_number`)
	}
	return listPatients(ctx, s.pool, `WHERE day = $1 ORDER BY queue_number`, day)
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	return getRoom(ctx, s.pool, roomID, "")
}

func (s *Store) ListRooms(ctx context.Context) ([]models.Room, error) {
	return listRooms(ctx, s.pool, "")
}

type transaction struct {
	q querier
}

func (t *transaction) GetCounter(ctx context.Context, day string) (models.QueueCounter, bool, error) {
	var counter models.QueueCounter
	err := t.q.QueryRow(ctx, `
		SELECT day, value, updated_at FROM queue_counters WHERE day = $1 FOR UPDATE
	`, day).Scan(&counter.Day, &counter.Value, &counter.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueCounter{}, false, nil
	}
	if err != nil {
		return models.QueueCounter{}, false, mapError(err)
	}
	return counter, true, nil
}

// CreateCounter relies on the primary key: two allocators racing on a new day both miss
// the row, and the loser's insert fails with a unique violation.
func (t *transaction) CreateCounter(ctx context.Context, counter models.QueueCounter) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO queue_counters (day, value, updated_at) VALUES ($1, $2, $3)
	`, counter.Day, counter.Value, counter.UpdatedAt)
	return mapError(err)
}

func (t *transaction) UpdateCounter(ctx context.Context, counter models.QueueCounter) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE queue_counters SET value = $2, updated_at = $3 WHERE day = $1
	`, counter.Day, counter.Value, counter.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("counter %s: %w", counter.Day, store.ErrConflict)
	}
	return nil
}

func (t *transaction) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	return getPatient(ctx, t.q, `WHERE patient_id = $1`, "FOR UPDATE", patientID)
}

func (t *transaction) FindPatientByQueueNumber(ctx context.Context, day string, queueNumber int) (models.Patient, error) {
	return getPatient(ctx, t.q, `WHERE day = $1 AND queue_number = $2`, "FOR UPDATE", day, queueNumber)
}

// NextRegisteredPatient skips rows locked by a concurrent assignment, so two rooms calling
// at once never wait on the same patient.
func (t *transaction) NextRegisteredPatient(ctx context.Context, day string) (models.Patient, bool, error) {
	patient, err := getPatient(ctx, t.q, `WHERE day = $1 AND status = $2 ORDER BY queue_number LIMIT 1`, "FOR UPDATE SKIP LOCKED", day, models.StatusRegistered)
	if errors.Is(err, store.ErrPatientNotFound) {
		return models.Patient{}, false, nil
	}
	if err != nil {
		return models.Patient{}, false, err
	}
	return patient, true, nil
}

func (t *transaction) ListOpenPatientsBefore(ctx context.Context, day string) ([]models.Patient, error) {
	return listPatients(ctx, t.q, `WHERE day < $1 AND status NOT IN ($2, $3) ORDER BY day, queue_number FOR UPDATE`,
		day, models.StatusCompleted, models.StatusCancelled)
}

func (t *transaction) CreatePatient(ctx context.Context, patient models.Patient) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, patient.PatientID, patient.QueueNumber, patient.Day, patient.Status, patient.Name, patient.Phone,
		patient.Age, patient.Gender, patient.Notes, patient.RoomID, patient.Archived, patient.CreatedAt,
		patient.RegisteredAt, patient.AssignedAt, patient.CompletedAt, patient.CancelledAt)
	return mapError(err)
}

func (t *transaction) UpdatePatient(ctx context.Context, patient models.Patient) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE patients SET
			status = $2, name = $3, phone = $4, age = $5, gender = $6, notes = $7, room_id = $8,
			archived = $9, registered_at = $10, assigned_at = $11, completed_at = $12, cancelled_at = $13
		WHERE patient_id = $1
	`, patient.PatientID, patient.Status, patient.Name, patient.Phone, patient.Age, patient.Gender,
		patient.Notes, patient.RoomID, patient.Archived, patient.RegisteredAt, patient.AssignedAt,
		patient.CompletedAt, patient.CancelledAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPatientNotFound
	}
	return nil
}

func (t *transaction) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	return getRoom(ctx, t.q, roomID, "FOR UPDATE")
}

func (t *transaction) ListRooms(ctx context.Context) ([]models.Room, error) {
	return listRooms(ctx, t.q, "FOR UPDATE")
}

func (t *transaction) CreateRoom(ctx context.Context, room models.Room) error {
	snapshot, err := encodeSnapshot(room.CurrentPatient)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO rooms (`+roomColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
	`, room.RoomID, room.RoomNumber, room.DoctorName, room.Status, snapshot, room.UpdatedAt)
	return mapError(err)
}

func (t *transaction) UpdateRoom(ctx context.Context, room models.Room) error {
	snapshot, err := encodeSnapshot(room.CurrentPatient)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `
		UPDATE rooms SET room_number = $2, doctor_name = $3, status = $4, current_patient = $5, updated_at = $6
		WHERE room_id = $1
	`, room.RoomID, room.RoomNumber, room.DoctorName, room.Status, snapshot, room.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRoomNotFound
	}
	return nil
}

func (t *transaction) GetReset(ctx context.Context, day string) (models.ResetRecord, bool, error) {
	var record models.ResetRecord
	err := t.q.QueryRow(ctx, `
		SELECT day, archived_count, reset_room_count, completed_at FROM daily_resets WHERE day = $1 FOR UPDATE
	`, day).Scan(&record.Day, &record.ArchivedCount, &record.ResetRoomCount, &record.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ResetRecord{}, false, nil
	}
	if err != nil {
		return models.ResetRecord{}, false, mapError(err)
	}
	return record, true, nil
}

func (t *transaction) SaveReset(ctx context.Context, record models.ResetRecord) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO daily_resets (day, archived_count, reset_room_count, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (day) DO UPDATE SET
			archived_count = EXCLUDED.archived_count,
			reset_room_count = EXCLUDED.reset_room_count,
			completed_at = EXCLUDED.completed_at
	`, record.Day, record.ArchivedCount, record.ResetRoomCount, record.CompletedAt)
	return mapError(err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPatient(row scanner) (models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.PatientID, &p.QueueNumber, &p.Day, &p.Status, &p.Name, &p.Phone, &p.Age, &p.Gender,
		&p.Notes, &p.RoomID, &p.Archived, &p.CreatedAt, &p.RegisteredAt, &p.AssignedAt, &p.CompletedAt, &p.CancelledAt)
	return p, err
}

func getPatient(ctx context.Context, q querier, where, lock string, args ...any) (models.Patient, error) {
	patient, err := scanPatient(q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients `+where+` `+lock, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Patient{}, store.ErrPatientNotFound
	}
	if err != nil {
		return models.Patient{}, mapError(err)
	}
	return patient, nil
}

func listPatients(ctx context.Context, q querier, clause string, args ...any) ([]models.Patient, error) {
	rows, err := q.Query(ctx, `SELECT `+patientColumns+` FROM patients `+clause, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, mapError(err)
		}
		patients = append(patients, patient)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return patients, nil
}

func scanRoom(row scanner) (models.Room, error) {
	var room models.Room
	var snapshot []byte
	if err := row.Scan(&room.RoomID, &room.RoomNumber, &room.DoctorName, &room.Status, &snapshot, &room.UpdatedAt); err != nil {
		return models.Room{}, err
	}
	if len(snapshot) > 0 && string(snapshot) != "null" {
		var current models.PatientSnapshot
		if err := json.Unmarshal(snapshot, &current); err != nil {
			return models.Room{}, fmt.Errorf("decode current patient of room %s: %w", room.RoomID, err)
		}
		room.CurrentPatient = &current
	}
	return room, nil
}

func getRoom(ctx context.Context, q querier, roomID, lock string) (models.Room, error) {
	room, err := scanRoom(q.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1 `+lock, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Room{}, store.ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, mapError(err)
	}
	return room, nil
}

func listRooms(ctx context.Context, q querier, lock string) ([]models.Room, error) {
	rows, err := q.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY room_number, room_id `+lock)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	rooms := []models.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, mapError(err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return rooms, nil
}

func encodeSnapshot(snapshot *models.PatientSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

// mapError translates lost races into store.ErrConflict and connection failures into
// store.ErrUnavailable; anything else is returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
		return err
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
