package stream

import (
	"context"
	"errors"
	"fmt"
	"groundwatch/internal/metrics"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Handler processes one envelope. Returning an error leaves the message
// pending so it is retried the next time the consumer starts.
type Handler func(ctx context.Context, e Envelope) error

// Consumer reads a stream as a member of a consumer group
type Consumer struct {
	client    redis.Cmdable
	stream    string
	group     string
	name      string
	batchSize int64
	block     time.Duration
	retryWait time.Duration
}

func NewConsumer(client redis.Cmdable, stream, group, name string, batchSize int64, block time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = 10
	}
	if block <= 0 {
		block = 5 * time.Second
	}
	return &Consumer{
		client:    client,
		stream:    stream,
		group:     group,
		name:      name,
		batchSize: batchSize,
		block:     block,
		retryWait: time.Second,
	}
}

// EnsureGroup creates the consumer group, and the stream if needed
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}
	return nil
}

// Run delivers messages to handler until ctx is cancelled. Messages left
// pending by an earlier run of this consumer are delivered first.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	if err := c.poll(ctx, "0", handler); err != nil && ctx.Err() == nil {
		log.Printf("Error reading pending messages: %v", err)
	}

	for ctx.Err() == nil {
		if err := c.poll(ctx, ">", handler); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("Error reading from Redis: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.retryWait):
			}
		}
	}

	return nil
}

// poll reads one batch starting after id and handles it
func (c *Consumer) poll(ctx context.Context, id string, handler Handler) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, id},
		Count:    c.batchSize,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			if ctx.Err() != nil {
				return nil
			}
			c.handle(ctx, m, handler)
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, m redis.XMessage, handler Handler) {
	envelope, err := decode(m.Values)
	if err != nil {
		// a malformed message never decodes, so it is acknowledged and dropped
		log.Printf("Dropping message %s: %v", m.ID, err)
		metrics.RecordStreamMessage("consume", err)
		c.ack(ctx, m.ID)
		return
	}

	if err := handler(ctx, envelope); err != nil {
		log.Printf("Failed to handle forecast %s for %s: %v", envelope.JobID, envelope.StationID, err)
		metrics.RecordStreamMessage("consume", err)
		return
	}

	metrics.RecordStreamMessage("consume", nil)
	c.ack(ctx, m.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	// acknowledge even if ctx was cancelled mid-batch
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.client.XAck(ackCtx, c.stream, c.group, id).Err(); err != nil {
		log.Printf("Failed to acknowledge message %s: %v", id, err)
	}
}
