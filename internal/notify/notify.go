// Package notify delivers booking lifecycle events to external systems.
package notify

import (
	"encoding/json"
	"fmt"

	"busticket/internal/events"
)

// encodeEvent renders the wire form shared by the broker sinks.
func encodeEvent(event *events.Event) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return body, nil
}

// bookingKey partitions events by booking so one booking's events stay ordered.
func bookingKey(event *events.Event) string {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil || payload.BookingID == "" {
		return event.ID
	}
	return payload.BookingID
}
