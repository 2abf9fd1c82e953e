// Package analytics emits verification events to Kafka or to the log.
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"github.com/turtacn/apikeyd/internal/config"
	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/service"
	"github.com/turtacn/apikeyd/pkg/logger"
)

// DropRecorder counts events that never reached the sink.
type DropRecorder interface {
	RecordAnalyticsDropped()
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer is a Kafka-backed implementation of the AnalyticsSink.
type KafkaProducer struct {
	writer   messageWriter
	logger   logger.Logger
	drops    DropRecorder
	warnings *rate.Sometimes
}

var _ service.AnalyticsSink = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new KafkaProducer. The writer is asynchronous:
// LogEvent returns once the message is queued and delivery failures are
// reported through the completion callback.
func NewKafkaProducer(cfg *config.AnalyticsConfig, drops DropRecorder, log logger.Logger) *KafkaProducer {
	p := newKafkaProducerWithWriter(nil, drops, log)
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.Timeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.dropped(context.Background(), len(messages), err)
			}
		},
	}
	return p
}

func newKafkaProducerWithWriter(w messageWriter, drops DropRecorder, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer:   w,
		logger:   log.WithComponent("KafkaProducer"),
		drops:    drops,
		warnings: &rate.Sometimes{Interval: 10 * time.Second},
	}
}

// LogEvent sends a verification event to the Kafka topic, keyed by key id.
func (p *KafkaProducer) LogEvent(ctx context.Context, event *models.VerificationEvent) error {
	ensureEventID(event)
	bytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal verification event", err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.KeyID),
		Value: bytes,
	})
	if err != nil {
		p.dropped(ctx, 1, err)
	}
	return err
}

// Close flushes pending messages and closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

func (p *KafkaProducer) dropped(ctx context.Context, n int, err error) {
	if p.drops != nil {
		for i := 0; i < n; i++ {
			p.drops.RecordAnalyticsDropped()
		}
	}
	p.warnings.Do(func() {
		p.logger.Warn(ctx, "Dropping verification events", logger.Int("count", n), logger.Error(err))
	})
}

func ensureEventID(event *models.VerificationEvent) {
	if event.EventID == "" {
		event.EventID = ulid.Make().String()
	}
}
