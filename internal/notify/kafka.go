package notify

import (
	"context"
	"fmt"
	"time"

	"busticket/internal/config"
	"busticket/internal/events"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every event to one topic keyed by booking id.
type KafkaSink struct {
	writer MessageWriter
	topic  string
	logger *zerolog.Logger
}

func NewKafkaSink(cfg config.KafkaConfig, logger *zerolog.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaSink(writer, cfg.Topic, logger)
}

func newKafkaSink(writer MessageWriter, topic string, logger *zerolog.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic, logger: logger}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Deliver(ctx context.Context, event *events.Event) error {
	body, err := encodeEvent(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(bookingKey(event)),
		Value: body,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka topic %s: %w", s.topic, err)
	}
	s.logger.Debug().Str("topic", s.topic).Str("event_id", event.ID).Msg("Event published to kafka")
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
