package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"busticket/internal/config"
	"busticket/internal/domain"
	"busticket/internal/events"
	"busticket/internal/metrics"
	"busticket/internal/models"

	"github.com/rs/zerolog"
)

const maxTicketAttempts = 5

// CreateBookingInput is a validated-at-the-edge booking request.
type CreateBookingInput struct {
	VehicleID     string
	TravelDate    time.Time
	Seats         []string
	Passenger     models.PassengerDetails
	PaymentMethod models.PaymentMethod
}

// BookingResult is a created or re-priced booking with its optional checkout.
type BookingResult struct {
	Booking  *models.Booking
	Vehicle  *models.Vehicle
	Checkout *models.CheckoutOrder
}

type BookingServiceDeps struct {
	Store    domain.Store
	Locker   domain.SeatLocker
	Gateway  domain.CheckoutGateway
	Events   domain.EventPublisher
	Config   config.BookingConfig
	Currency string
	Location *time.Location
	Logger   *zerolog.Logger
}

type BookingService struct {
	store        domain.Store
	locker       domain.SeatLocker
	gateway      domain.CheckoutGateway
	eventBus     domain.EventPublisher
	availability *AvailabilityResolver
	tickets      *TicketGenerator
	window       time.Duration
	lockWait     time.Duration
	currency     string
	loc          *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewBookingService(deps BookingServiceDeps) *BookingService {
	window := deps.Config.CancellationWindow
	if window <= 0 {
		window = 2 * time.Hour
	}
	lockWait := deps.Config.LockWait
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &BookingService{
		store:        deps.Store,
		locker:       deps.Locker,
		gateway:      deps.Gateway,
		eventBus:     deps.Events,
		availability: NewAvailabilityResolver(deps.Store, loc),
		tickets:      NewTicketGenerator(),
		window:       window,
		lockWait:     lockWait,
		currency:     deps.Currency,
		loc:          loc,
		now:          time.Now,
		logger:       deps.Logger,
	}
}

// OnlinePaymentEnabled reports whether a checkout gateway is configured.
func (s *BookingService) OnlinePaymentEnabled() bool {
	return s.gateway != nil
}

func (s *BookingService) validate(in *CreateBookingInput) error {
	var fields []models.FieldError
	add := func(field, msg string) { fields = append(fields, models.FieldError{Field: field, Message: msg}) }

	in.VehicleID = strings.TrimSpace(in.VehicleID)
	if in.VehicleID == "" {
		add("vehicleId", "vehicle is required")
	}
	if in.TravelDate.IsZero() {
		add("travelDate", "travel date is required")
	} else {
		in.TravelDate = models.TravelDay(in.TravelDate, s.loc)
		if in.TravelDate.Before(models.CalendarDay(s.now(), s.loc)) {
			add("travelDate", "travel date cannot be in the past")
		}
	}

	if len(in.Seats) == 0 {
		add("seats", "at least one seat is required")
	}
	in.Seats = append([]string(nil), in.Seats...)
	seen := make(map[string]struct{}, len(in.Seats))
	for i, seat := range in.Seats {
		seat = models.NormalizeSeat(seat)
		in.Seats[i] = seat
		if seat == "" {
			add("seats", "seat number is required")
			continue
		}
		if _, dup := seen[seat]; dup {
			add("seats", fmt.Sprintf("seat %s is listed more than once", seat))
		}
		seen[seat] = struct{}{}
	}

	if !in.PaymentMethod.Valid() {
		add("paymentMethod", "payment method must be online or cash")
	}
	in.Passenger = in.Passenger.Normalize()
	fields = append(fields, in.Passenger.Validate()...)

	return domain.Invalid(fields)
}

// CreateBooking reserves seats and records a pending payment. When the online
// checkout call fails the persisted booking is returned together with a
// *domain.GatewayError so the caller can retry payment or switch to cash.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*BookingResult, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	if in.PaymentMethod == models.PaymentOnline && s.gateway == nil {
		return nil, domain.ErrPaymentNotConfigured
	}

	vehicle, err := s.store.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return nil, err
	}
	if !vehicle.IsActive {
		return nil, domain.InvalidField("vehicleId", "vehicle is not accepting bookings")
	}

	passenger, err := s.findOrCreatePassenger(ctx, in.Passenger)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		VehicleID:     vehicle.ID,
		PassengerID:   passenger.ID,
		TravelDate:    in.TravelDate,
		Seats:         in.Seats,
		SeatCount:     len(in.Seats),
		TotalFare:     models.TotalFare(vehicle.Fare, len(in.Seats)),
		PaymentMethod: in.PaymentMethod,
		PaymentStatus: models.PaymentPending,
		Status:        models.BookingConfirmed,
		Passenger:     in.Passenger,
	}

	if err := s.reserve(ctx, vehicle, booking); err != nil {
		if domain.IsSeatConflict(err) {
			metrics.IncSeatConflict()
		}
		return nil, err
	}

	if err := s.store.CreatePayment(ctx, &models.Payment{
		BookingID: booking.ID,
		Amount:    booking.TotalFare,
		Currency:  s.currency,
		Method:    booking.PaymentMethod,
		Status:    models.PaymentPending,
	}); err != nil {
		return nil, fmt.Errorf("record payment for %s: %w", booking.TicketNumber, err)
	}

	metrics.IncBookingCreated(string(booking.PaymentMethod))
	s.publishEvent(events.EventBookingCreated, booking, vehicle)
	s.logger.Info().
		Str("ticket", booking.TicketNumber).
		Str("vehicle_id", vehicle.ID).
		Str("travel_date", models.DateKey(booking.TravelDate)).
		Strs("seats", booking.Seats).
		Msg("Booking created")

	result := &BookingResult{Booking: booking, Vehicle: vehicle}
	if booking.PaymentMethod != models.PaymentOnline {
		return result, nil
	}
	return s.startCheckout(ctx, result)
}

// reserve runs the availability check and the insert under the seat lock.
func (s *BookingService) reserve(ctx context.Context, vehicle *models.Vehicle, booking *models.Booking) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	unlock, err := s.locker.Lock(lockCtx, domain.SeatLockKey(vehicle.ID, booking.TravelDate))
	cancel()
	if err != nil {
		return fmt.Errorf("acquire seat inventory for %s: %w", vehicle.ID, err)
	}
	defer unlock()

	if err := s.availability.check(ctx, vehicle, booking.TravelDate, booking.Seats); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		ticket, err := s.tickets.Next()
		if err != nil {
			return err
		}
		booking.TicketNumber = ticket
		err = s.store.CreateBooking(ctx, booking)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateTicket) || attempt >= maxTicketAttempts {
			return err
		}
		s.logger.Warn().Str("ticket", booking.TicketNumber).Int("attempt", attempt).Msg("Ticket number collision, regenerating")
	}
}

func (s *BookingService) findOrCreatePassenger(ctx context.Context, details models.PassengerDetails) (*models.Passenger, error) {
	p, err := s.store.FindPassengerByEmail(ctx, details.Email)
	if err == nil {
		return p, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	p = &models.Passenger{Name: details.Name, Email: details.Email, Phone: details.Phone}
	err = s.store.CreatePassenger(ctx, p)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		return s.store.FindPassengerByEmail(ctx, details.Email)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *BookingService) startCheckout(ctx context.Context, result *BookingResult) (*BookingResult, error) {
	booking := result.Booking
	order, err := s.gateway.CreateCheckout(ctx, booking)
	if err != nil {
		metrics.IncPayment(s.gateway.Name(), "error")
		s.logger.Error().Err(err).Str("ticket", booking.TicketNumber).Msg("Failed to initiate online payment")
		return result, &domain.GatewayError{Booking: booking, Err: err}
	}
	metrics.IncPayment(s.gateway.Name(), "initiated")

	updated, err := s.store.UpdateBooking(ctx, booking.ID, func(b *models.Booking) error {
		b.Payment.OrderID = order.OrderID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UpdatePaymentByBooking(ctx, booking.ID, func(p *models.Payment) {
		p.GatewayOrderID = order.OrderID
	}); err != nil {
		return nil, err
	}

	result.Booking = updated
	result.Checkout = order
	return result, nil
}

// RetryPayment re-initiates online checkout for an unpaid booking, or moves it to cash.
func (s *BookingService) RetryPayment(ctx context.Context, id string, method models.PaymentMethod) (*BookingResult, error) {
	if !method.Valid() {
		return nil, domain.InvalidField("paymentMethod", "payment method must be online or cash")
	}
	if method == models.PaymentOnline && s.gateway == nil {
		return nil, domain.ErrPaymentNotConfigured
	}

	booking, err := s.store.UpdateBooking(ctx, id, func(b *models.Booking) error {
		if !b.IsActive() {
			return domain.ErrAlreadyCancelled
		}
		if b.PaymentStatus == models.PaymentCompleted || b.PaymentStatus == models.PaymentRefunded {
			return domain.InvalidField("paymentStatus", "booking is already paid")
		}
		b.PaymentMethod = method
		b.PaymentStatus = models.PaymentPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UpdatePaymentByBooking(ctx, id, func(p *models.Payment) {
		p.Method = method
		p.Status = models.PaymentPending
	}); err != nil {
		return nil, err
	}

	vehicle, err := s.store.GetVehicle(ctx, booking.VehicleID)
	if err != nil {
		return nil, err
	}
	result := &BookingResult{Booking: booking, Vehicle: vehicle}
	if method == models.PaymentCash {
		return result, nil
	}
	return s.startCheckout(ctx, result)
}

// CancelBooking cancels a booking that departs more than the cancellation
// window from now. Completed online payments are marked refunded.
func (s *BookingService) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, domain.ErrAlreadyCancelled
	}

	vehicle, err := s.store.GetVehicle(ctx, current.VehicleID)
	if err != nil {
		return nil, err
	}
	departure, err := vehicle.DepartureAt(current.TravelDate, s.loc)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if departure.Sub(now) <= s.window {
		return nil, domain.ErrCancellationWindowClosed
	}

	refund := false
	booking, err := s.store.UpdateBooking(ctx, id, func(b *models.Booking) error {
		if !b.IsActive() {
			return domain.ErrAlreadyCancelled
		}
		b.Status = models.BookingCancelled
		if b.PaymentStatus == models.PaymentCompleted && b.PaymentMethod == models.PaymentOnline {
			b.PaymentStatus = models.PaymentRefunded
			refund = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refund {
		refundedAt := now.UTC()
		if _, err := s.store.UpdatePaymentByBooking(ctx, id, func(p *models.Payment) {
			p.Status = models.PaymentRefunded
			p.RefundedAt = &refundedAt
			p.RefundAmount = p.Amount
		}); err != nil {
			return nil, err
		}
	}

	metrics.IncBookingCancelled()
	s.publishEvent(events.EventBookingCancelled, booking, vehicle)
	if refund {
		s.publishEvent(events.EventPaymentRefunded, booking, vehicle)
	}
	s.logger.Info().Str("ticket", booking.TicketNumber).Bool("refunded", refund).Msg("Booking cancelled")
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.BookingDetails, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withVehicle(ctx, b), nil
}

func (s *BookingService) GetBookingByTicket(ctx context.Context, ticketNumber string) (*models.BookingDetails, error) {
	b, err := s.store.GetBookingByTicket(ctx, strings.ToUpper(strings.TrimSpace(ticketNumber)))
	if err != nil {
		return nil, err
	}
	return s.withVehicle(ctx, b), nil
}

func (s *BookingService) withVehicle(ctx context.Context, b *models.Booking) *models.BookingDetails {
	details := &models.BookingDetails{Booking: b}
	if v, err := s.store.GetVehicle(ctx, b.VehicleID); err == nil {
		summary := v.Summary()
		details.Vehicle = &summary
	}
	return details
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.InvalidField("status", "unknown booking status")
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, domain.InvalidField("paymentStatus", "unknown payment status")
	}
	filter.Normalize()

	bookings, total, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	return models.NewBookingPage(bookings, total, filter), nil
}

// AllBookings walks every page of the filter, newest first.
func (s *BookingService) AllBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	filter.Page, filter.Limit = 1, models.MaxPageSize
	var all []*models.Booking
	for {
		page, err := s.ListBookings(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Bookings...)
		if filter.Page >= page.TotalPages {
			return all, nil
		}
		filter.Page++
	}
}

// GetStatistics aggregates every booking; "today" is the current calendar day
// in the operating time zone.
func (s *BookingService) GetStatistics(ctx context.Context) (*models.BookingStats, error) {
	y, m, d := s.now().In(s.loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return s.store.BookingStats(ctx, dayStart, dayStart.AddDate(0, 0, 1))
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, vehicle *models.Vehicle) {
	if s.eventBus == nil {
		return
	}
	payload := events.NewBookingEventPayload(booking, vehicle, s.now())
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}
