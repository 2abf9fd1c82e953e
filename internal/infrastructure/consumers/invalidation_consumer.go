// Package consumers contains Kafka consumers for background processing tasks.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/apikeyd/internal/config"
	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// Evictor drops one cached verification record.
type Evictor interface {
	Remove(hash string)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// InvalidationConsumer listens for key change events published by the key
// management side and evicts the matching verification record from the local
// cache, so a disabled or deleted key stops verifying before its cache entry
// would go stale.
//
// Every instance must see every event, so each instance should be configured
// with its own consumer group id.
type InvalidationConsumer struct {
	reader  messageReader
	evictor Evictor
	logger  logger.Logger
	backoff time.Duration
}

// NewInvalidationConsumer creates a new consumer for key change events.
func NewInvalidationConsumer(cfg *config.InvalidationConfig, evictor Evictor, log logger.Logger) *InvalidationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1e6, // 1MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	return newInvalidationConsumer(reader, evictor, log)
}

func newInvalidationConsumer(reader messageReader, evictor Evictor, log logger.Logger) *InvalidationConsumer {
	return &InvalidationConsumer{
		reader:  reader,
		evictor: evictor,
		logger:  log.WithComponent("InvalidationConsumer"),
		backoff: time.Second,
	}
}

// Run consumes events until ctx is done. It blocks and should be run in a goroutine.
func (c *InvalidationConsumer) Run(ctx context.Context) {
	c.logger.Info(ctx, "Starting key invalidation consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info(context.Background(), "Stopping key invalidation consumer")
				return
			}
			c.logger.Error(ctx, "Failed to fetch key change event", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "Failed to commit key change event", logger.Error(err), logger.Int64("offset", msg.Offset))
		}
	}
}

// handle evicts the record named by msg. Malformed events are logged and
// skipped; eviction itself cannot fail.
func (c *InvalidationConsumer) handle(ctx context.Context, msg kafka.Message) {
	var event models.KeyChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Warn(ctx, "Skipping malformed key change event", logger.Error(err), logger.Int64("offset", msg.Offset))
		return
	}
	if event.KeyHash == "" {
		c.logger.Warn(ctx, "Skipping key change event without a hash", logger.String("key_id", event.KeyID))
		return
	}

	c.evictor.Remove(event.KeyHash)
	c.logger.Debug(ctx, "Evicted cached verification record",
		logger.String("key_id", event.KeyID),
		logger.String("key_hash", event.KeyHash),
	)
}

// Close closes the underlying reader.
func (c *InvalidationConsumer) Close() error {
	return c.reader.Close()
}
