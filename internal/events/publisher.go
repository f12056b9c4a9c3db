package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	// Channel carries events to live subscribers (webhook forwarders).
	Channel = "ledger:events"
	// Queue buffers events for the notification worker.
	Queue = "ledger:events:queue"
)

// RedisPublisher fans events out on a pub/sub channel and pushes them
// onto a work queue for the notification consumer.
type RedisPublisher struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.client.RPush(ctx, Queue, data).Err(); err != nil {
		return fmt.Errorf("queue event: %w", err)
	}

	if err := p.client.Publish(ctx, Channel, data).Err(); err != nil {
		// Queued delivery already succeeded; live subscribers just miss one.
		p.log.Warn().Err(err).Str("type", event.Type).Str("reference", event.Reference).
			Msg("event broadcast failed")
	}

	return nil
}

// NopPublisher discards events. Used when Redis is unavailable and in
// tests that do not assert on events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
