package filestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/google/uuid"
)

func (s *Store) ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]*models.Vehicle, error) {
	var out []*models.Vehicle
	err := s.view(ctx, func(doc *document) error {
		for _, v := range doc.Vehicles {
			if filter.Matches(v) {
				out = append(out, v)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DepartureTime != out[j].DepartureTime {
			return out[i].DepartureTime < out[j].DepartureTime
		}
		return out[i].Number < out[j].Number
	})
	return out, err
}

func (s *Store) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	var found *models.Vehicle
	err := s.view(ctx, func(doc *document) error {
		for _, v := range doc.Vehicles {
			if v.ID == id {
				found = v
				return nil
			}
		}
		return domain.NotFound("vehicle", id)
	})
	return found, err
}

func numberTaken(doc *document, number, exceptID string) bool {
	for _, v := range doc.Vehicles {
		if v.ID != exceptID && strings.EqualFold(v.Number, number) {
			return true
		}
	}
	return false
}

func (s *Store) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	return s.update(ctx, func(doc *document) error {
		if numberTaken(doc, v.Number, "") {
			return domain.InvalidField("number", fmt.Sprintf("vehicle number %s already exists", v.Number))
		}
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		v.CreatedAt, v.UpdatedAt = now, now
		doc.Vehicles = append(doc.Vehicles, v)
		return nil
	})
}

func (s *Store) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	return s.update(ctx, func(doc *document) error {
		if numberTaken(doc, v.Number, v.ID) {
			return domain.InvalidField("number", fmt.Sprintf("vehicle number %s already exists", v.Number))
		}
		for i, existing := range doc.Vehicles {
			if existing.ID == v.ID {
				v.CreatedAt = existing.CreatedAt
				v.UpdatedAt = time.Now().UTC()
				doc.Vehicles[i] = v
				return nil
			}
		}
		return domain.NotFound("vehicle", v.ID)
	})
}

func (s *Store) CountVehicles(ctx context.Context) (int, error) {
	var n int
	err := s.view(ctx, func(doc *document) error {
		n = len(doc.Vehicles)
		return nil
	})
	return n, err
}

func activeOn(doc *document, vehicleID, dateKey string) []*models.Booking {
	var out []*models.Booking
	for _, b := range doc.Bookings {
		if b.VehicleID == vehicleID && models.DateKey(b.TravelDate) == dateKey && b.IsActive() {
			out = append(out, b)
		}
	}
	return out
}

func (s *Store) FindBookingsByVehicleAndDate(ctx context.Context, vehicleID string, travelDate time.Time) ([]*models.Booking, error) {
	var out []*models.Booking
	err := s.view(ctx, func(doc *document) error {
		out = activeOn(doc, vehicleID, models.DateKey(travelDate))
		return nil
	})
	return out, err
}

func (s *Store) CountActiveBookingsFrom(ctx context.Context, vehicleID string, from time.Time) (int, error) {
	fromKey := models.DateKey(from)
	var n int
	err := s.view(ctx, func(doc *document) error {
		for _, b := range doc.Bookings {
			if b.VehicleID == vehicleID && b.Status == models.BookingConfirmed && models.DateKey(b.TravelDate) >= fromKey {
				n++
			}
		}
		return nil
	})
	return n, err
}

// CreateBooking re-checks seat availability under the store lock before appending.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	return s.update(ctx, func(doc *document) error {
		for _, existing := range doc.Bookings {
			if existing.TicketNumber == b.TicketNumber {
				return domain.ErrDuplicateTicket
			}
		}
		if b.IsActive() {
			taken := models.TakenSeats(activeOn(doc, b.VehicleID, models.DateKey(b.TravelDate)))
			if conflicts := models.ConflictingSeats(b.Seats, taken); len(conflicts) > 0 {
				return &domain.SeatConflictError{Seats: conflicts}
			}
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		b.CreatedAt, b.UpdatedAt = now, now
		doc.Bookings = append(doc.Bookings, b)
		return nil
	})
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.findBooking(ctx, id, func(b *models.Booking) bool { return b.ID == id })
}

func (s *Store) GetBookingByTicket(ctx context.Context, ticketNumber string) (*models.Booking, error) {
	return s.findBooking(ctx, ticketNumber, func(b *models.Booking) bool { return b.TicketNumber == ticketNumber })
}

func (s *Store) findBooking(ctx context.Context, key string, match func(*models.Booking) bool) (*models.Booking, error) {
	var found *models.Booking
	err := s.view(ctx, func(doc *document) error {
		for _, b := range doc.Bookings {
			if match(b) {
				found = b
				return nil
			}
		}
		return domain.NotFound("booking", key)
	})
	return found, err
}

func (s *Store) UpdateBooking(ctx context.Context, id string, apply func(b *models.Booking) error) (*models.Booking, error) {
	var updated *models.Booking
	err := s.update(ctx, func(doc *document) error {
		for _, b := range doc.Bookings {
			if b.ID != id {
				continue
			}
			if err := apply(b); err != nil {
				return err
			}
			b.UpdatedAt = time.Now().UTC()
			updated = b
			return nil
		}
		return domain.NotFound("booking", id)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	filter.Normalize()
	var matched []*models.Booking
	err := s.view(ctx, func(doc *document) error {
		for _, b := range doc.Bookings {
			if filter.Matches(b) {
				matched = append(matched, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) BookingStats(ctx context.Context, dayStart, dayEnd time.Time) (*models.BookingStats, error) {
	var stats models.BookingStats
	err := s.view(ctx, func(doc *document) error {
		for _, b := range doc.Bookings {
			today := !b.CreatedAt.Before(dayStart) && b.CreatedAt.Before(dayEnd)
			stats.Add(b, today)
		}
		return nil
	})
	return &stats, err
}

func (s *Store) FindPassengerByEmail(ctx context.Context, email string) (*models.Passenger, error) {
	var found *models.Passenger
	err := s.view(ctx, func(doc *document) error {
		for _, p := range doc.Passengers {
			if p.Email == email {
				found = p
				return nil
			}
		}
		return domain.NotFound("passenger", email)
	})
	return found, err
}

func (s *Store) CreatePassenger(ctx context.Context, p *models.Passenger) error {
	return s.update(ctx, func(doc *document) error {
		for _, existing := range doc.Passengers {
			if existing.Email == p.Email {
				return domain.ErrDuplicateEmail
			}
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = time.Now().UTC()
		doc.Passengers = append(doc.Passengers, p)
		return nil
	})
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.update(ctx, func(doc *document) error {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		p.CreatedAt, p.UpdatedAt = now, now
		doc.Payments = append(doc.Payments, p)
		return nil
	})
}

func (s *Store) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	var found *models.Payment
	err := s.view(ctx, func(doc *document) error {
		for _, p := range doc.Payments {
			if p.BookingID == bookingID {
				found = p
				return nil
			}
		}
		return domain.NotFound("payment", bookingID)
	})
	return found, err
}

func (s *Store) UpdatePaymentByBooking(ctx context.Context, bookingID string, apply func(p *models.Payment)) (*models.Payment, error) {
	var updated *models.Payment
	err := s.update(ctx, func(doc *document) error {
		for _, p := range doc.Payments {
			if p.BookingID == bookingID {
				apply(p)
				p.UpdatedAt = time.Now().UTC()
				updated = p
				return nil
			}
		}
		return domain.NotFound("payment", bookingID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) findAdmin(ctx context.Context, key string, match func(*storedAdmin) bool) (*models.Admin, error) {
	var found *models.Admin
	err := s.view(ctx, func(doc *document) error {
		for _, a := range doc.Admins {
			if match(a) {
				admin := a.Admin
				admin.PasswordHash = a.PasswordHash
				found = &admin
				return nil
			}
		}
		return domain.NotFound("admin", key)
	})
	return found, err
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return s.findAdmin(ctx, email, func(a *storedAdmin) bool { return a.Email == email })
}

func (s *Store) GetAdminByID(ctx context.Context, id string) (*models.Admin, error) {
	return s.findAdmin(ctx, id, func(a *storedAdmin) bool { return a.ID == id })
}

func (s *Store) CreateAdmin(ctx context.Context, a *models.Admin) error {
	return s.update(ctx, func(doc *document) error {
		for _, existing := range doc.Admins {
			if existing.Email == a.Email {
				return domain.ErrDuplicateEmail
			}
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.CreatedAt = time.Now().UTC()
		doc.Admins = append(doc.Admins, &storedAdmin{Admin: *a, PasswordHash: a.PasswordHash})
		return nil
	})
}

func (s *Store) TouchAdminLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, func(doc *document) error {
		for _, a := range doc.Admins {
			if a.ID == id {
				t := at.UTC()
				a.LastLogin = &t
				return nil
			}
		}
		return domain.NotFound("admin", id)
	})
}
