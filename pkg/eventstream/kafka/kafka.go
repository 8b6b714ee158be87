// Package kafka carries record events over Kafka topics using kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/eventstream"
)

// Config configures a Publisher or Subscriber.
type Config struct {
	Brokers []string
	Topic   string

	// GroupID is the consumer group of a Subscriber.
	GroupID string

	// Logger is the provided zap logger
	Logger *zap.Logger
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("at least one kafka broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes record events keyed by record so that a partition keeps
// the events of one record in order.
type Publisher struct {
	writer messageWriter
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(c Config) (*Publisher, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(c.Brokers...),
			Topic:        c.Topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}, nil
}

// Publish validates and writes one event.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.RecordEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.SchemaVersion == 0 {
		event.SchemaVersion = eventstream.SchemaVersionV1
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding record event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafkago.Message{Key: []byte(event.Key()), Value: value}); err != nil {
		return fmt.Errorf("writing record event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Subscriber reads record events from a consumer group.
type Subscriber struct {
	reader messageReader
	logger *zap.Logger
}

// NewSubscriber creates a Kafka subscriber.
func NewSubscriber(c Config) (*Subscriber, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.GroupID == "" {
		return nil, errors.New("kafka consumer group is required")
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Subscriber{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  c.Brokers,
			GroupID:  c.GroupID,
			Topic:    c.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		logger: logger,
	}, nil
}

// Subscribe hands every event to handle and commits its offset afterwards.
// Undecodable or invalid messages and handler failures are logged and
// committed so one bad message cannot stall the partition. It returns nil
// once ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, handle eventstream.Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetching record event: %w", err)
		}

		log := s.logger.With(
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)

		var event eventstream.RecordEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn("dropping undecodable record event", zap.Error(err))
		} else if err := event.Validate(); err != nil {
			log.Warn("dropping invalid record event", zap.Error(err))
		} else if err := handle(ctx, &event); err != nil {
			log.Warn("record event failed",
				zap.String("event_type", event.EventType),
				zap.String("entity_id", event.EntityID),
				zap.String("record_id", event.RecordID),
				zap.Error(err),
			)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing record event: %w", err)
		}
	}
}

// Close closes the reader.
func (s *Subscriber) Close() error {
	return s.reader.Close()
}

var (
	_ eventstream.Publisher  = (*Publisher)(nil)
	_ eventstream.Subscriber = (*Subscriber)(nil)
)
