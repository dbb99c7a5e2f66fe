package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/clock"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/queue"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store/memory"
)

func memoryOpener(t *testing.T) opener {
	t.Helper()
	svc := queue.NewService(memory.NewStore(), queue.Options{
		Location: time.UTC,
		Clock:    clock.NewFixed(time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)),
	})
	return func(ctx context.Context) (*queue.Service, func(), error) {
		return svc, func() {}, nil
	}
}

func TestRunProvisionAllocateRegisterAssign(t *testing.T) {
	ctx := context.Background()
	open := memoryOpener(t)

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"provision", "--count", "2", "--doctors", "dr. Sari,dr. Budi"}, &out, open))
	var rooms []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "dr. Budi", rooms[1]["doctor_name"])

	out.Reset()
	require.NoError(t, run(ctx, []string{"allocate"}, &out, open))
	var allocation queue.Allocation
	require.NoError(t, json.Unmarshal(out.Bytes(), &allocation))
	assert.Equal(t, 1, allocation.QueueNumber)

	out.Reset()
	require.NoError(t, run(ctx, []string{"register", "--number", "1", "--name", "Ani", "--phone", "081234567890", "--age", "30", "--gender", "female"}, &out, open))

	out.Reset()
	require.NoError(t, run(ctx, []string{"assign", "--room", "R2"}, &out, open))
	assert.Contains(t, out.String(), `"status": "busy"`)

	out.Reset()
	require.NoError(t, run(ctx, []string{"stats"}, &out, open))
	assert.Contains(t, out.String(), `"issued": 1`)
}

func TestRunReportsServiceErrors(t *testing.T) {
	ctx := context.Background()
	open := memoryOpener(t)

	err := run(ctx, []string{"complete", "--room", "R9"}, &bytes.Buffer{}, open)
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestRunUsageErrors(t *testing.T) {
	ctx := context.Background()
	open := func(ctx context.Context) (*queue.Service, func(), error) {
		return nil, nil, errors.New("should not open")
	}

	for _, args := range [][]string{
		nil,
		{"launch"},
		{"assign"},
		{"cancel"},
		{"allocate", "extra"},
		{"stats", "--bogus"},
	} {
		err := run(ctx, args, &bytes.Buffer{}, open)
		assert.ErrorIs(t, err, errUsage, "args %v", args)
	}
}
