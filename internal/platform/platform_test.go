package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/config"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store/memory"
)

func TestOpenMemoryStoreWithLogPublisherOnly(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{StoreDriver: config.DriverMemory}

	res, err := Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer res.Close()
	assert.IsType(t, &memory.Store{}, res.Store)

	res.AttachPublishers(ctx, cfg, zap.NewNop())
	multi, ok := res.Publisher.(fanout.Multi)
	require.True(t, ok)
	require.Len(t, multi, 1)
	assert.IsType(t, &fanout.LogPublisher{}, multi[0])
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "sqlite"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: config.DriverPostgres}, zap.NewNop())
	assert.ErrorContains(t, err, "DB_DSN")
}
