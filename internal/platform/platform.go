// Package platform opens the external resources the binaries share: the configured store,
// the Firebase app and the fan-out publishers.
package platform

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/config"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
	firestorestore "github.com/ameliapapa/queue-manager-v2-sub000/internal/store/firestore"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store/memory"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store/postgres"
)

// Resources owns everything opened for one process. Close releases them in reverse order.
type Resources struct {
	Store     store.Store
	Publisher fanout.Publisher

	firebase *firebase.App
	closers  []func()
}

func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Open connects the store selected by cfg.StoreDriver. Publishers are attached separately
// so command-line tools can run without a broker.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Resources, error) {
	res := &Resources{}
	switch cfg.StoreDriver {
	case config.DriverMemory:
		res.Store = memory.NewStore()
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DB_DSN is required for the %s driver", config.DriverPostgres)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		res.closers = append(res.closers, pool.Close)
		res.Store = postgres.NewStore(pool)
	case config.DriverFirestore:
		app, err := res.firebaseApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("firestore client: %w", err)
		}
		res.closers = append(res.closers, func() { _ = client.Close() })
		res.Store = firestorestore.NewStore(client)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	logger.Info("store opened", zap.String("driver", cfg.StoreDriver))
	return res, nil
}

// AttachPublishers builds the fan-out chain: the log publisher always, Redis, MQTT and FCM
// when configured. A broker that cannot be reached is logged and skipped.
func (r *Resources) AttachPublishers(ctx context.Context, cfg config.Config, logger *zap.Logger) {
	publishers := fanout.Multi{fanout.NewLogPublisher(logger)}

	if cfg.RedisAddr != "" {
		client := NewRedisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, skipping publisher", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = client.Close()
		} else {
			publishers = append(publishers, fanout.NewRedisPublisher(client, cfg.RedisChannel))
		}
	}

	if cfg.MQTTBroker != "" {
		publisher, err := fanout.NewMQTTPublisher(fanout.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		})
		if err != nil {
			logger.Warn("mqtt unavailable, skipping publisher", zap.String("broker", cfg.MQTTBroker), zap.Error(err))
		} else {
			publishers = append(publishers, publisher)
		}
	}

	if cfg.FCMTopic != "" {
		if publisher, err := r.fcmPublisher(ctx, cfg); err != nil {
			logger.Warn("fcm unavailable, skipping publisher", zap.Error(err))
		} else {
			publishers = append(publishers, publisher)
		}
	}

	r.Publisher = publishers
	r.closers = append(r.closers, func() {
		if err := publishers.Close(); err != nil {
			logger.Warn("close publishers", zap.Error(err))
		}
	})
}

func (r *Resources) fcmPublisher(ctx context.Context, cfg config.Config) (*fanout.FCMPublisher, error) {
	app, err := r.firebaseApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	return fanout.NewFCMPublisher(client, cfg.FCMTopic), nil
}

// firebaseApp initialises the app once. Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
func (r *Resources) firebaseApp(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	if r.firebase != nil {
		return r.firebase, nil
	}
	var fbConfig *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	r.firebase = app
	return app, nil
}

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
