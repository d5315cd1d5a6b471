package broker

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lostfound/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const subscriberBuffer = 100

// RedisNotificationBroker publishes notifications over Redis pub/sub and
// lets websocket clients subscribe to their channels.
type RedisNotificationBroker struct {
	client *redis.Client
}

func NewRedisNotificationBroker(ctx context.Context, redisURL string) (*RedisNotificationBroker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisNotificationBroker{client: client}, nil
}

// Client exposes the underlying connection so the rate limiter can share it.
func (r *RedisNotificationBroker) Client() *redis.Client {
	return r.client
}

func (r *RedisNotificationBroker) Name() string { return "redis" }

// Deliver implements Sink.
func (r *RedisNotificationBroker) Deliver(ctx context.Context, n Notification) error {
	return r.Publish(ctx, n)
}

func (r *RedisNotificationBroker) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, n.Channel(), data).Err()
}

// Subscribe waits for the subscription to be confirmed before returning, so
// anything published afterwards is guaranteed to be received.
func (r *RedisNotificationBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Notification, func(), error) {
	pubsub := r.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	out := make(chan Notification, subscriberBuffer)

	go func() {
		defer close(out)

		for msg := range pubsub.Channel() {
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				logger.Log.Warn("Dropping malformed notification payload",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}

			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func (r *RedisNotificationBroker) Close() error {
	return r.client.Close()
}
