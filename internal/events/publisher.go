// Package events publishes search lifecycle events to Kafka for downstream
// consumers. Publishing is optional; when disabled a no-op publisher is used.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// SearchCompletedEvent is emitted when a search job finishes successfully.
type SearchCompletedEvent struct {
	JobID         string    `json:"job_id"`
	SearchID      int64     `json:"search_id"`
	UserTopic     string    `json:"user_topic"`
	FinalQuery    string    `json:"final_query"`
	TotalFound    int       `json:"total_found"`
	FilteredCount int       `json:"filtered_count"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher emits search lifecycle events.
type Publisher interface {
	// PublishSearchCompleted emits a completion event for a finished job.
	PublishSearchCompleted(ctx context.Context, event SearchCompletedEvent) error

	// Close releases publisher resources.
	Close() error
}

// Config holds Kafka publisher settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic search events are published to.
	Topic string
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
}

// Compile-time interface verification.
var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*NoopPublisher)(nil)
)

// KafkaPublisher publishes search events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to the configured topic.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger) *KafkaPublisher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// PublishSearchCompleted emits a completion event keyed by job ID.
func (p *KafkaPublisher) PublishSearchCompleted(ctx context.Context, event SearchCompletedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal search event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.JobID),
		Value: value,
		Time:  event.CompletedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish search event: %w", err)
	}

	p.logger.Debug().
		Str("job_id", event.JobID).
		Int64("search_id", event.SearchID).
		Msg("published search completed event")

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards all events. Used when Kafka publishing is disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that discards all events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// PublishSearchCompleted discards the event.
func (p *NoopPublisher) PublishSearchCompleted(context.Context, SearchCompletedEvent) error {
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}
