package events

import (
	"encoding/json"
	"sync"
	"time"

	"busticket/internal/models"

	"github.com/google/uuid"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingCancelled = "booking.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventPaymentRefunded  = "payment.refunded"
)

// AllEventTypes lists every lifecycle event published by the services.
var AllEventTypes = []string{
	EventBookingCreated,
	EventBookingCancelled,
	EventPaymentCompleted,
	EventPaymentRefunded,
}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     string               `json:"bookingId"`
	TicketNumber  string               `json:"ticketNumber"`
	VehicleID     string               `json:"vehicleId"`
	VehicleNumber string               `json:"vehicleNumber,omitempty"`
	Route         string               `json:"route,omitempty"`
	TravelDate    string               `json:"travelDate"`
	Seats         []string             `json:"seats"`
	TotalFare     float64              `json:"totalFare"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Status        models.BookingStatus `json:"bookingStatus"`
	PassengerName string               `json:"passengerName"`
	PassengerMail string               `json:"passengerEmail"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// NewBookingEventPayload snapshots b. vehicle may be nil.
func NewBookingEventPayload(b *models.Booking, vehicle *models.Vehicle, at time.Time) BookingEventPayload {
	p := BookingEventPayload{
		BookingID:     b.ID,
		TicketNumber:  b.TicketNumber,
		VehicleID:     b.VehicleID,
		TravelDate:    models.DateKey(b.TravelDate),
		Seats:         append([]string(nil), b.Seats...),
		TotalFare:     b.TotalFare,
		PaymentMethod: b.PaymentMethod,
		PaymentStatus: b.PaymentStatus,
		Status:        b.Status,
		PassengerName: b.Passenger.Name,
		PassengerMail: b.Passenger.Email,
		OccurredAt:    at.UTC(),
	}
	if vehicle != nil {
		p.VehicleNumber = vehicle.Number
		p.Route = vehicle.From + " - " + vehicle.To
	}
	return p
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every lifecycle event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range AllEventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously
// and must not block; slow consumers queue the event themselves.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
