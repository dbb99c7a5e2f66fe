package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const DefaultChannel = "qms:events"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes JSON events on a pub/sub channel consumed by the realtime relay.
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return newRedisPublisher(client, channel)
}

func newRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
