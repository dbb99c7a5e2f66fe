package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "QUEUE_START_NUMBER", "MAX_QUEUE_NUMBER", "DAILY_RESET_HOUR", "ROOM_COUNT", "QUEUE_TIMEZONE", "RECONCILE_INTERVAL_SECONDS", "ROOM_DOCTORS"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 1, cfg.QueueStartNumber)
	assert.Equal(t, 999, cfg.MaxQueueNumber)
	assert.Equal(t, 0, cfg.DailyResetHour)
	assert.Equal(t, 5, cfg.RoomCount)
	assert.True(t, cfg.ProvisionRooms)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	assert.Nil(t, cfg.RoomDoctors)
}

func TestLoadCorrectsInvalidValues(t *testing.T) {
	t.Setenv("QUEUE_START_NUMBER", "50")
	t.Setenv("MAX_QUEUE_NUMBER", "10")
	t.Setenv("DAILY_RESET_HOUR", "24")
	t.Setenv("ROOM_COUNT", "-2")
	t.Setenv("QUEUE_TIMEZONE", "Mars/Olympus")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "0")

	cfg := Load()
	assert.Equal(t, 50, cfg.QueueStartNumber)
	assert.Equal(t, 50, cfg.MaxQueueNumber)
	assert.Equal(t, 0, cfg.DailyResetHour)
	assert.Equal(t, 5, cfg.RoomCount)
	assert.True(t, cfg.TimezoneInvalid)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Zero(t, cfg.ReconcileInterval)
}

func TestLoadParsesValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DAILY_RESET_HOUR", "5")
	t.Setenv("ROOM_DOCTORS", "dr. Sari, dr. Budi ,")
	t.Setenv("QUEUE_TIMEZONE", "UTC")
	t.Setenv("PROVISION_ROOMS", "false")
	t.Setenv("ROOM_COUNT", "abc")

	cfg := Load()
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5, cfg.DailyResetHour)
	assert.Equal(t, []string{"dr. Sari", "dr. Budi", ""}, cfg.RoomDoctors)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.False(t, cfg.ProvisionRooms)
	assert.Equal(t, 5, cfg.RoomCount)
}
