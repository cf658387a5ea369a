package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"busticket/internal/config"
	"busticket/internal/database"
	"busticket/internal/domain"
	"busticket/internal/filestore"
	"busticket/internal/models"
	"busticket/internal/payment"
	"busticket/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// lkt is Sri Lanka time without depending on the host tz database.
var lkt = time.FixedZone("LKT", 5*3600+30*60)

const testRazorpaySecret = "rzp_secret"

type storeFactory func(t *testing.T) domain.Store

func newFileStore(t *testing.T) domain.Store {
	t.Helper()
	logger := zerolog.New(io.Discard)
	s, err := filestore.Open(filepath.Join(t.TempDir(), "localdb.json"), &logger)
	require.NoError(t, err)
	return s
}

func newSQLiteStore(t *testing.T) domain.Store {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var storeFactories = map[string]storeFactory{
	"file":   newFileStore,
	"sqlite": newSQLiteStore,
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishJSON(eventType string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func (p *recordingPublisher) Count(eventType string) int {
	n := 0
	for _, t := range p.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string {
	return "payhere"
}

func (m *mockGateway) CreateCheckout(ctx context.Context, b *models.Booking) (*models.CheckoutOrder, error) {
	args := m.Called(ctx, b)
	switch v := args.Get(0).(type) {
	case func(context.Context, *models.Booking) *models.CheckoutOrder:
		return v(ctx, b), args.Error(1)
	case *models.CheckoutOrder:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

// countingStore records how often bookings were read for availability.
type countingStore struct {
	domain.Store
	finds atomic.Int32
}

func (s *countingStore) FindBookingsByVehicleAndDate(ctx context.Context, vehicleID string, day time.Time) ([]*models.Booking, error) {
	s.finds.Add(1)
	return s.Store.FindBookingsByVehicleAndDate(ctx, vehicleID, day)
}

// collidingStore fails the first n booking inserts with a ticket collision.
type collidingStore struct {
	domain.Store
	remaining int
	tickets   []string
}

func (s *collidingStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.tickets = append(s.tickets, b.TicketNumber)
	if s.remaining > 0 {
		s.remaining--
		return domain.ErrDuplicateTicket
	}
	return s.Store.CreateBooking(ctx, b)
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type testEnv struct {
	store      domain.Store
	bus        *recordingPublisher
	bookings   *BookingService
	payments   *PaymentService
	vehicles   *VehicleService
	vehicle    *models.Vehicle
	travelDate time.Time
	now        time.Time
}

type envOption func(*BookingServiceDeps)

func withGateway(gw domain.CheckoutGateway) envOption {
	return func(d *BookingServiceDeps) { d.Gateway = gw }
}

func withLocker(l domain.SeatLocker) envOption {
	return func(d *BookingServiceDeps) { d.Locker = l }
}

func newTestEnv(t *testing.T, store domain.Store, opts ...envOption) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	env := &testEnv{
		store: store,
		bus:   &recordingPublisher{},
		now:   time.Now(),
	}
	env.travelDate = models.CalendarDay(env.now, lkt).AddDate(0, 0, 3)

	deps := BookingServiceDeps{
		Store:    store,
		Locker:   repository.NewMemorySeatLocker(),
		Events:   env.bus,
		Config:   config.BookingConfig{CancellationWindow: 2 * time.Hour, LockWait: 2 * time.Second},
		Currency: "LKR",
		Location: lkt,
		Logger:   &logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.bookings = NewBookingService(deps)
	env.bookings.now = func() time.Time { return env.now }
	env.payments = NewPaymentService(store, payment.NewSignatureVerifier(testRazorpaySecret), "payhere_secret", env.bus, &logger)
	env.payments.now = func() time.Time { return env.now }
	env.vehicles = NewVehicleService(store, lkt, &logger)
	env.vehicles.now = func() time.Time { return env.now }

	var err error
	env.vehicle, err = env.vehicles.CreateVehicle(context.Background(), testVehicle("NB-1234"))
	require.NoError(t, err)
	return env
}

func testVehicle(number string) *models.Vehicle {
	return &models.Vehicle{
		Number:        number,
		Name:          "Colombo Express",
		Type:          models.VehicleAC,
		From:          "Colombo",
		To:            "Kandy",
		DepartureTime: "10:00",
		ArrivalTime:   "13:30",
		Duration:      "3h 30m",
		TotalSeats:    40,
		SeatLayout:    models.SeatLayout{Rows: 10, SeatsPerRow: 4},
		Fare:          1500,
		Amenities:     []string{"WiFi"},
		IsActive:      true,
	}
}

func (e *testEnv) input(email string, method models.PaymentMethod, seats ...string) CreateBookingInput {
	return CreateBookingInput{
		VehicleID:     e.vehicle.ID,
		TravelDate:    e.travelDate,
		Seats:         seats,
		Passenger:     models.PassengerDetails{Name: "Nimal Perera", Email: email, Phone: "0771234567"},
		PaymentMethod: method,
	}
}

func (e *testEnv) book(t *testing.T, method models.PaymentMethod, seats ...string) *models.Booking {
	t.Helper()
	res, err := e.bookings.CreateBooking(context.Background(), e.input("nimal@example.com", method, seats...))
	require.NoError(t, err)
	return res.Booking
}

// departure is the scheduled departure of the test vehicle on the travel date.
func (e *testEnv) departure(t *testing.T) time.Time {
	t.Helper()
	d, err := e.vehicle.DepartureAt(e.travelDate, lkt)
	require.NoError(t, err)
	return d
}

func (e *testEnv) markPaid(t *testing.T, b *models.Booking) {
	t.Helper()
	v := payment.NewSignatureVerifier(testRazorpaySecret)
	orderID := b.Payment.OrderID
	if orderID == "" {
		orderID = "order_" + b.TicketNumber
	}
	_, err := e.payments.VerifyCallback(context.Background(), VerifyPaymentInput{
		BookingID: b.ID,
		OrderID:   orderID,
		PaymentID: "pay_" + b.TicketNumber,
		Signature: v.Sign(orderID, "pay_"+b.TicketNumber),
	})
	require.NoError(t, err)
}
