package domain

import (
	"errors"
	"fmt"
	"strings"

	"busticket/internal/models"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrValidation                = errors.New("validation failed")
	ErrInvalidSeat               = errors.New("invalid seat")
	ErrSeatConflict              = errors.New("seats already booked")
	ErrCancellationWindowClosed  = errors.New("cancellation window closed")
	ErrAlreadyCancelled          = errors.New("booking is already cancelled")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrPaymentNotConfigured      = errors.New("online payment is not configured")
	ErrUpstreamGateway           = errors.New("payment gateway error")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrForbidden                 = errors.New("forbidden")
	ErrDuplicateTicket           = errors.New("duplicate ticket number")
	ErrDuplicateEmail            = errors.New("email already registered")
	ErrVehicleInUse              = errors.New("vehicle has active future bookings")
)

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

type ValidationError struct {
	Fields []models.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	if len(msgs) == 0 {
		return ErrValidation.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid wraps field errors, returning nil when there are none.
func Invalid(fields []models.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// InvalidField builds a single-field validation error.
func InvalidField(field, msg string) error {
	return &ValidationError{Fields: []models.FieldError{{Field: field, Message: msg}}}
}

type InvalidSeatError struct {
	Seats []string
}

func (e *InvalidSeatError) Error() string {
	return fmt.Sprintf("invalid seat(s) for this vehicle: %s", strings.Join(e.Seats, ", "))
}

func (e *InvalidSeatError) Unwrap() error { return ErrInvalidSeat }

type SeatConflictError struct {
	Seats []string
}

func (e *SeatConflictError) Error() string {
	return fmt.Sprintf("seats %s are already booked", strings.Join(e.Seats, ", "))
}

func (e *SeatConflictError) Unwrap() error { return ErrSeatConflict }

// GatewayError reports a failed checkout call for a booking that was persisted as pending.
type GatewayError struct {
	Booking *models.Booking
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("initiate online payment for %s: %v", e.Booking.TicketNumber, e.Err)
}

func (e *GatewayError) Unwrap() []error { return []error{ErrUpstreamGateway, e.Err} }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsSeatConflict(err error) bool { return errors.Is(err, ErrSeatConflict) }
