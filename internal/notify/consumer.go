package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/events"
)

const (
	readBatch             = 32
	defaultReplayInterval = 30 * time.Second

	cursorPending = "0"
	cursorNew     = ">"
)

// StreamConsumer reads booking events from a Redis stream as part of a
// consumer group and dispatches them. Messages are acked only after a
// successful dispatch. Failed ones stay pending and are read again on the
// next replay, which runs at start and then every replay interval.
type StreamConsumer struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	block      time.Duration
	replay     time.Duration
	dispatcher Dispatcher
	log        *zap.Logger
}

func NewStreamConsumer(client *redis.Client, stream, group, consumer string, block, replay time.Duration, d Dispatcher, log *zap.Logger) *StreamConsumer {
	if replay <= 0 {
		replay = defaultReplayInterval
	}
	return &StreamConsumer{
		client:     client,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		block:      block,
		replay:     replay,
		dispatcher: d,
		log:        log,
	}
}

// readCursor picks the XREADGROUP id. It starts on the pending list, moves to
// new entries once a replay batch is empty or made no progress, and returns
// to the pending list every interval.
type readCursor struct {
	id         string
	interval   time.Duration
	lastReplay time.Time
}

func newReadCursor(interval time.Duration) *readCursor {
	return &readCursor{id: cursorPending, interval: interval}
}

func (c *readCursor) next(now time.Time) string {
	if c.id == cursorNew && now.Sub(c.lastReplay) >= c.interval {
		c.id = cursorPending
	}
	return c.id
}

// done records the outcome of a batch read with the current id.
func (c *readCursor) done(now time.Time, handled, acked int) {
	if c.id != cursorPending {
		return
	}
	if handled == 0 || acked == 0 {
		c.id = cursorNew
		c.lastReplay = now
	}
}

// EnsureGroup creates the stream and the consumer group if missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.group, err)
	}
	return nil
}

// Run consumes until ctx is canceled. Pending messages of this consumer are
// replayed first.
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	cursor := newReadCursor(c.replay)

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, cursor.next(time.Now())},
			Count:    readBatch,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				cursor.done(time.Now(), 0, 0)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("stream read failed", zap.String("stream", c.stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		handled, acked := 0, 0
		for _, s := range streams {
			for _, m := range s.Messages {
				if c.handle(ctx, m) {
					acked++
				}
				handled++
			}
		}
		if handled > 0 && acked == 0 {
			c.log.Warn("no message in batch could be dispatched",
				zap.Int("messages", handled),
				zap.Duration("retry_in", c.replay),
			)
		}
		cursor.done(time.Now(), handled, acked)
	}
}

// handle reports whether m was acked.
func (c *StreamConsumer) handle(ctx context.Context, m redis.XMessage) bool {
	ev, err := DecodeMessage(m)
	if err != nil {
		// Poison message: ack so it does not block the group forever.
		c.log.Error("dropping undecodable message", zap.String("id", m.ID), zap.Error(err))
		return c.ack(ctx, m.ID)
	}

	if err := c.dispatcher.Dispatch(ctx, ev, Render(ev)); err != nil {
		c.log.Warn("dispatch failed; will retry",
			zap.String("id", m.ID),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
		return false
	}
	return c.ack(ctx, m.ID)
}

func (c *StreamConsumer) ack(ctx context.Context, id string) bool {
	if err := c.client.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		c.log.Warn("ack failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return true
}

// DecodeMessage extracts the event carried by a stream entry.
func DecodeMessage(m redis.XMessage) (events.Event, error) {
	raw, ok := m.Values[events.StreamFieldEvent]
	if !ok {
		return events.Event{}, fmt.Errorf("message %s has no %q field", m.ID, events.StreamFieldEvent)
	}

	var b []byte
	switch v := raw.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return events.Event{}, fmt.Errorf("message %s: unexpected payload type %T", m.ID, raw)
	}
	return events.Decode(b)
}
