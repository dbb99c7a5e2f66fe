package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/models"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

var createdAt = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

func TestRunInTxDiscardsWritesOnError(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.CreateCounter(ctx, models.QueueCounter{Day: "2026-04-02", Value: 1}))
		require.NoError(t, tx.CreatePatient(ctx, models.Patient{PatientID: "p1", Day: "2026-04-02", QueueNumber: 1, Status: models.StatusUnregistered, CreatedAt: createdAt}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.GetPatient(ctx, "p1")
	assert.ErrorIs(t, err, store.ErrPatientNotFound)
	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, found, err := tx.GetCounter(ctx, "2026-04-02")
		assert.False(t, found)
		return err
	})
	require.NoError(t, err)
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.CreateRoom(ctx, models.Room{RoomID: "R1", RoomNumber: 1, Status: models.RoomAvailable}))
		room, err := tx.GetRoom(ctx, "R1")
		require.NoError(t, err)
		assert.Equal(t, models.RoomAvailable, room.Status)

		require.NoError(t, tx.CreatePatient(ctx, models.Patient{PatientID: "p1", Day: "2026-04-02", QueueNumber: 4, Status: models.StatusRegistered}))
		found, err := tx.FindPatientByQueueNumber(ctx, "2026-04-02", 4)
		require.NoError(t, err)
		assert.Equal(t, "p1", found.PatientID)
		return nil
	})
	require.NoError(t, err)

	rooms, err := st.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

func TestCreatePatientRejectsDuplicateQueueNumber(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	seed(t, st, models.Patient{PatientID: "p1", Day: "2026-04-02", QueueNumber: 1, Status: models.StatusUnregistered})

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreatePatient(ctx, models.Patient{PatientID: "p2", Day: "2026-04-02", QueueNumber: 1, Status: models.StatusUnregistered})
	})
	require.ErrorIs(t, err, store.ErrConflict)

	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreatePatient(ctx, models.Patient{PatientID: "p3", Day: "2026-04-03", QueueNumber: 1, Status: models.StatusUnregistered})
	})
	require.NoError(t, err)
}

func TestCreateCounterTwiceConflicts(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	require.NoError(t, st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateCounter(ctx, models.QueueCounter{Day: "2026-04-02", Value: 1})
	}))
	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateCounter(ctx, models.QueueCounter{Day: "2026-04-02", Value: 1})
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestNextRegisteredPatientLowestNumber(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	seed(t, st,
		models.Patient{PatientID: "p5", Day: "2026-04-02", QueueNumber: 5, Status: models.StatusRegistered},
		models.Patient{PatientID: "p2", Day: "2026-04-02", QueueNumber: 2, Status: models.StatusRegistered},
		models.Patient{PatientID: "p1", Day: "2026-04-02", QueueNumber: 1, Status: models.StatusUnregistered},
		models.Patient{PatientID: "old", Day: "2026-04-01", QueueNumber: 1, Status: models.StatusRegistered},
	)

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		next, found, err := tx.NextRegisteredPatient(ctx, "2026-04-02")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "p2", next.PatientID)

		_, found, err = tx.NextRegisteredPatient(ctx, "2026-04-05")
		require.NoError(t, err)
		assert.False(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestListOpenPatientsBefore(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	seed(t, st,
		models.Patient{PatientID: "a", Day: "2026-03-30", QueueNumber: 9, Status: models.StatusAssigned},
		models.Patient{PatientID: "b", Day: "2026-04-01", QueueNumber: 1, Status: models.StatusRegistered},
		models.Patient{PatientID: "c", Day: "2026-04-01", QueueNumber: 2, Status: models.StatusCompleted},
		models.Patient{PatientID: "d", Day: "2026-04-02", QueueNumber: 1, Status: models.StatusUnregistered},
	)

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		open, err := tx.ListOpenPatientsBefore(ctx, "2026-04-02")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "a", open[0].PatientID)
		assert.Equal(t, "b", open[1].PatientID)
		return nil
	})
	require.NoError(t, err)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	notes := "allergy"
	seed(t, st, models.Patient{PatientID: "p1", Day: "2026-04-02", QueueNumber: 1, Status: models.StatusRegistered, Notes: &notes})

	patient, err := st.GetPatient(ctx, "p1")
	require.NoError(t, err)
	*patient.Notes = "changed"

	again, err := st.GetPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "allergy", *again.Notes)
}

func seed(t *testing.T, st *Store, patients ...models.Patient) {
	t.Helper()
	err := st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, patient := range patients {
			if err := tx.CreatePatient(ctx, patient); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestResetRecordCommittedWithTransaction(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	record := models.ResetRecord{Day: "2026-04-02", ArchivedCount: 2, CompletedAt: createdAt}

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SaveReset(ctx, record))
		return errors.New("abort")
	})
	require.Error(t, err)

	require.NoError(t, st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, found, err := tx.GetReset(ctx, "2026-04-02")
		assert.False(t, found)
		if err != nil {
			return err
		}
		return tx.SaveReset(ctx, record)
	}))

	require.NoError(t, st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, found, err := tx.GetReset(ctx, "2026-04-02")
		assert.True(t, found)
		assert.Equal(t, record, got)
		return err
	}))
}
