package service

import (
	"context"
	"time"

	"busticket/internal/domain"
	"busticket/internal/models"
)

// AvailabilityResolver computes seat availability against the active bookings
// of a vehicle on one travel date.
type AvailabilityResolver struct {
	store domain.Store
	loc   *time.Location
}

func NewAvailabilityResolver(store domain.Store, loc *time.Location) *AvailabilityResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityResolver{store: store, loc: loc}
}

// CheckAvailability reports nil when every requested seat is free. Seats outside
// the layout fail with *domain.InvalidSeatError before any booking is read;
// taken seats fail with *domain.SeatConflictError in request order.
func (r *AvailabilityResolver) CheckAvailability(ctx context.Context, vehicleID string, travelDate time.Time, seats []string) error {
	vehicle, err := r.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	return r.check(ctx, vehicle, travelDate, seats)
}

func (r *AvailabilityResolver) check(ctx context.Context, vehicle *models.Vehicle, travelDate time.Time, seats []string) error {
	if len(seats) == 0 {
		return domain.InvalidField("seats", "at least one seat is required")
	}
	if invalid := models.OutsideLayout(vehicle.SeatLayout, seats); len(invalid) > 0 {
		return &domain.InvalidSeatError{Seats: invalid}
	}

	bookings, err := r.store.FindBookingsByVehicleAndDate(ctx, vehicle.ID, models.TravelDay(travelDate, r.loc))
	if err != nil {
		return err
	}
	if conflicts := models.ConflictingSeats(seats, models.TakenSeats(bookings)); len(conflicts) > 0 {
		return &domain.SeatConflictError{Seats: conflicts}
	}
	return nil
}

// BookedSeats lists the taken seats of vehicle on travelDate in layout order.
func (r *AvailabilityResolver) BookedSeats(ctx context.Context, vehicle *models.Vehicle, travelDate time.Time) ([]string, error) {
	bookings, err := r.store.FindBookingsByVehicleAndDate(ctx, vehicle.ID, models.TravelDay(travelDate, r.loc))
	if err != nil {
		return nil, err
	}
	taken := models.TakenSeats(bookings)

	booked := make([]string, 0, len(taken))
	for _, seat := range vehicle.SeatLayout.SeatIDs() {
		if _, ok := taken[seat]; ok {
			booked = append(booked, seat)
		}
	}
	return booked, nil
}

// SeatMap describes the vehicle and its booked seats for one date.
func (r *AvailabilityResolver) SeatMap(ctx context.Context, vehicle *models.Vehicle, travelDate time.Time) (*models.SeatMap, error) {
	booked, err := r.BookedSeats(ctx, vehicle, travelDate)
	if err != nil {
		return nil, err
	}
	return &models.SeatMap{
		Vehicle:        vehicle.Summary(),
		BookedSeats:    booked,
		AvailableSeats: vehicle.TotalSeats - len(booked),
	}, nil
}

// Annotate attaches booked/available counts for travelDate to each vehicle.
func (r *AvailabilityResolver) Annotate(ctx context.Context, vehicles []*models.Vehicle, travelDate time.Time) ([]*models.VehicleListing, error) {
	listings := make([]*models.VehicleListing, 0, len(vehicles))
	for _, v := range vehicles {
		booked, err := r.BookedSeats(ctx, v, travelDate)
		if err != nil {
			return nil, err
		}
		bookedCount := len(booked)
		available := v.TotalSeats - bookedCount
		listings = append(listings, &models.VehicleListing{
			Vehicle:        v,
			BookedSeats:    &bookedCount,
			AvailableSeats: &available,
		})
	}
	return listings, nil
}
