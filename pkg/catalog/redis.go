package catalog

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisListener refreshes the catalog whenever a message arrives on the
// refresh channel, so every replica picks up a schema change together.
type RedisListener struct {
	client  *redis.Client
	channel string
	target  Refreshable
	logger  *zap.Logger
}

// NewRedisListener creates a listener. If logger is nil, a no-op logger is used.
func NewRedisListener(client *redis.Client, channel string, target Refreshable, logger *zap.Logger) *RedisListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisListener{
		client:  client,
		channel: channel,
		target:  target,
		logger:  logger.Named("catalog-listener"),
	}
}

// Run subscribes and blocks until ctx is cancelled or the subscription closes.
func (l *RedisListener) Run(ctx context.Context) error {
	pubsub := l.client.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so a broken Redis fails fast.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", l.channel, err)
	}
	l.logger.Info("Listening for catalog refresh requests", zap.String("channel", l.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.logger.Info("Catalog refresh requested", zap.String("reason", msg.Payload))
			_ = l.target.Refresh(ctx)
		}
	}
}

// RedisBroadcaster asks every replica to refresh by publishing to the
// refresh channel. The publishing replica refreshes through its own listener.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, channel: channel}
}

func (b *RedisBroadcaster) RequestRefresh(ctx context.Context) error {
	return PublishRefresh(ctx, b.client, b.channel, "api")
}

// PublishRefresh publishes a refresh request with reason as the payload.
func PublishRefresh(ctx context.Context, client *redis.Client, channel, reason string) error {
	if err := client.Publish(ctx, channel, reason).Err(); err != nil {
		return fmt.Errorf("publish catalog refresh: %w", err)
	}
	return nil
}
