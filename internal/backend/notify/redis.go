package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on
const DefaultChannel = "bedready:events"

// RedisNotifier publishes events as JSON on a redis channel and keeps the
// most recent payload of each kind under "<channel>:last:<event>".
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// RedisConfig holds the connection settings for RedisNotifier
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func NewRedisNotifier(cfg RedisConfig) *RedisNotifier {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisNotifier{client: client, channel: channel}
}

// Ping checks that the redis server is reachable
func (r *RedisNotifier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisNotifier) Notify(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Name(), err)
	}

	if err := r.client.Set(ctx, r.lastKey(event.Name()), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store %s event: %w", event.Name(), err)
	}
	receivers, err := r.client.Publish(ctx, r.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Name(), err)
	}

	slog.Debug("published event", "channel", r.channel, "event", event.Name(), "receivers", receivers)
	return nil
}

func (r *RedisNotifier) lastKey(eventName string) string {
	return r.channel + ":last:" + eventName
}

func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
