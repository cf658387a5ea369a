package domain

import (
	"context"
	"time"

	"busticket/internal/models"
)

// Store is the persistence contract shared by the SQLite store and the JSON
// file fallback. Update callbacks run while the store holds its write lock
// and must not call back into the store.
type Store interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]*models.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	CountVehicles(ctx context.Context) (int, error)

	FindBookingsByVehicleAndDate(ctx context.Context, vehicleID string, travelDate time.Time) ([]*models.Booking, error)
	CountActiveBookingsFrom(ctx context.Context, vehicleID string, from time.Time) (int, error)
	// CreateBooking persists the booking and its seats atomically. It returns a
	// *SeatConflictError if any seat is held by an active booking for the same
	// vehicle and date, and ErrDuplicateTicket on a ticket number collision.
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByTicket(ctx context.Context, ticketNumber string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, id string, apply func(b *models.Booking) error) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	BookingStats(ctx context.Context, dayStart, dayEnd time.Time) (*models.BookingStats, error)

	FindPassengerByEmail(ctx context.Context, email string) (*models.Passenger, error)
	// CreatePassenger returns ErrDuplicateEmail when the email is taken.
	CreatePassenger(ctx context.Context, passenger *models.Passenger) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error)
	UpdatePaymentByBooking(ctx context.Context, bookingID string, apply func(p *models.Payment)) (*models.Payment, error)

	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetAdminByID(ctx context.Context, id string) (*models.Admin, error)
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	TouchAdminLogin(ctx context.Context, id string, at time.Time) error
}

// SeatLocker serializes booking writes for one vehicle on one travel date.
type SeatLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// CheckoutGateway starts an online payment for a persisted booking. It is
// constructed once at startup and shared by every request.
type CheckoutGateway interface {
	Name() string
	CreateCheckout(ctx context.Context, booking *models.Booking) (*models.CheckoutOrder, error)
}

// EventPublisher is the outbound side of the in-process event bus.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SeatLockKey names the inventory pool of a vehicle on a travel date.
func SeatLockKey(vehicleID string, travelDate time.Time) string {
	return "seats:" + vehicleID + ":" + models.DateKey(travelDate)
}
