package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"busticket/internal/events"
	"busticket/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DeadLetterKey is the Redis list holding events that exhausted their retries.
const DeadLetterKey = "busticket:events:deadletter"

// ErrQueueFull is returned by Enqueue when the dispatcher cannot keep up.
var ErrQueueFull = errors.New("event queue is full")

// Sink receives lifecycle events. Deliver must be safe to retry.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event *events.Event) error
}

type deadLetter struct {
	Sink     string        `json:"sink"`
	Error    string        `json:"error"`
	FailedAt time.Time     `json:"failed_at"`
	Event    *events.Event `json:"event"`
}

// Dispatcher fans bus events out to sinks on a single background goroutine,
// retrying each sink with backoff. Publishers never block on a slow sink.
type Dispatcher struct {
	sinks       []Sink
	queue       chan *events.Event
	retryPolicy RetryPolicy
	redis       *redis.Client
	dropped     atomic.Int64
	logger      *zerolog.Logger
}

// NewDispatcher builds a dispatcher with sane defaults. redisClient is
// optional and only used for the dead-letter list.
func NewDispatcher(sinks []Sink, queueSize int, retry RetryPolicy, redisClient *redis.Client, logger *zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &Dispatcher{
		sinks:       sinks,
		queue:       make(chan *events.Event, queueSize),
		retryPolicy: retry,
		redis:       redisClient,
		logger:      logger,
	}
}

// Attach subscribes the dispatcher to every lifecycle event on bus.
func (d *Dispatcher) Attach(bus *events.EventBus) {
	bus.SubscribeAll(d.Enqueue)
}

// Enqueue schedules event for delivery without blocking.
func (d *Dispatcher) Enqueue(event *events.Event) error {
	if len(d.sinks) == 0 {
		return nil
	}
	select {
	case d.queue <- event:
		return nil
	default:
		d.dropped.Add(1)
		for _, sink := range d.sinks {
			metrics.IncEventDelivery(sink.Name(), "dropped")
		}
		d.logger.Warn().Str("event_id", event.ID).Str("type", event.Type).Msg("Event queue full, event dropped")
		return ErrQueueFull
	}
}

// Dropped is the number of events rejected because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Pending is the number of queued events not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Start delivers queued events until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Int("sinks", len(d.sinks)).Msg("Event dispatcher started")
	defer func() {
		d.logger.Info().Int("pending", len(d.queue)).Msg("Event dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			d.dispatch(ctx, event)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event *events.Event) {
	for _, sink := range d.sinks {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, sink, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, event *events.Event) {
	for attempt := 1; ; attempt++ {
		err := sink.Deliver(ctx, event)
		if err == nil {
			metrics.IncEventDelivery(sink.Name(), "delivered")
			return
		}

		if d.retryPolicy.Exhausted(attempt) {
			metrics.IncEventDelivery(sink.Name(), "failed")
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("event_id", event.ID).
				Str("type", event.Type).
				Int("attempts", attempt).
				Msg("Event delivery failed")
			d.pushDeadLetter(ctx, sink, event, err)
			return
		}

		metrics.IncEventDelivery(sink.Name(), "retry")
		d.logger.Warn().Err(err).Str("sink", sink.Name()).Str("event_id", event.ID).Int("attempt", attempt).Msg("Event delivery retry")
		if d.retryPolicy.Wait(ctx, attempt) != nil {
			return
		}
	}
}

func (d *Dispatcher) pushDeadLetter(ctx context.Context, sink Sink, event *events.Event, cause error) {
	if d.redis == nil {
		return
	}
	data, err := json.Marshal(deadLetter{
		Sink:     sink.Name(),
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
		Event:    event,
	})
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", event.ID).Msg("Encode dead letter")
		return
	}
	if err := d.redis.LPush(ctx, DeadLetterKey, data).Err(); err != nil {
		d.logger.Error().Err(err).Str("event_id", event.ID).Msg("Dead letter push failed")
	}
}
