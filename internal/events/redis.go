package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accountledger/internal/ledger"
)

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
}

// NewRedisPublisher builds a publisher writing to channel.
func NewRedisPublisher(client redis.Cmdable, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the event to the configured channel.
func (p *RedisPublisher) Publish(ctx context.Context, e ledger.Event) error {
	_, body, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
