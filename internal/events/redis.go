package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	StreamFieldType  = "type"
	StreamFieldEvent = "event"
)

// RedisStreamPublisher appends events to a capped Redis stream read by the
// notify worker.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			StreamFieldType:  string(ev.Type),
			StreamFieldEvent: data,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (p *RedisStreamPublisher) Close() error { return nil }
