package notify

import (
	"context"
	"fmt"
	"io"

	"busticket/internal/config"
	"busticket/internal/events"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// Publisher is the part of *amqp.Channel the sink uses.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes events to a durable fanout exchange. The routing key is
// the event type so topic-style bindings keep working if the exchange changes.
type AMQPSink struct {
	channel  Publisher
	conn     io.Closer
	exchange string
	logger   *zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(cfg config.AMQPConfig, logger *zerolog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	sink := newAMQPSink(ch, cfg.Exchange, logger)
	sink.conn = conn
	return sink, nil
}

func newAMQPSink(channel Publisher, exchange string, logger *zerolog.Logger) *AMQPSink {
	return &AMQPSink{channel: channel, exchange: exchange, logger: logger}
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Deliver(ctx context.Context, event *events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encodeEvent(event)
	if err != nil {
		return err
	}
	err = s.channel.Publish(s.exchange, event.Type, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.CreatedAt,
		Body:         body,
		Headers: amqp.Table{
			"booking_id": bookingKey(event),
		},
	})
	if err != nil {
		return fmt.Errorf("publish to exchange %s: %w", s.exchange, err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	err := s.channel.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
