package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"busticket/internal/domain"
	"busticket/internal/events"
	"busticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Cash(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()

			res, err := env.bookings.CreateBooking(ctx, env.input(" Nimal@Example.com ", models.PaymentCash, "1a", "1B"))
			require.NoError(t, err)
			b := res.Booking

			assert.True(t, strings.HasPrefix(b.TicketNumber, models.TicketPrefix))
			assert.Equal(t, []string{"1A", "1B"}, b.Seats)
			assert.Equal(t, 2, b.SeatCount)
			assert.Equal(t, 3000.0, b.TotalFare)
			assert.Equal(t, models.BookingConfirmed, b.Status)
			assert.Equal(t, models.PaymentPending, b.PaymentStatus)
			assert.Equal(t, "nimal@example.com", b.Passenger.Email)
			assert.Nil(t, res.Checkout)

			p, err := env.store.GetPaymentByBooking(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentPending, p.Status)
			assert.Equal(t, models.PaymentCash, p.Method)
			assert.Equal(t, 3000.0, p.Amount)
			assert.Equal(t, "LKR", p.Currency)

			passenger, err := env.store.FindPassengerByEmail(ctx, "nimal@example.com")
			require.NoError(t, err)
			assert.Equal(t, passenger.ID, b.PassengerID)

			assert.Equal(t, []string{events.EventBookingCreated}, env.bus.Types())
		})
	}
}

func TestCreateBooking_SameDayDifferentTimes(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()
			y, m, d := env.travelDate.Date()

			morning := env.input("first@example.com", models.PaymentCash, "1A")
			morning.TravelDate = time.Date(y, m, d, 1, 0, 0, 0, lkt)
			res, err := env.bookings.CreateBooking(ctx, morning)
			require.NoError(t, err)
			assert.Equal(t, env.travelDate, res.Booking.TravelDate)

			evening := env.input("second@example.com", models.PaymentCash, "1A", "1B")
			evening.TravelDate = time.Date(y, m, d, 18, 0, 0, 0, lkt)
			_, err = env.bookings.CreateBooking(ctx, evening)
			var conflict *domain.SeatConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, []string{"1A"}, conflict.Seats)

			seatMap, err := env.vehicles.SeatMap(ctx, env.vehicle.ID, time.Date(y, m, d, 23, 30, 0, 0, lkt))
			require.NoError(t, err)
			assert.Equal(t, []string{"1A"}, seatMap.BookedSeats)

			assert.Error(t, env.vehicles.CheckAvailability(ctx, env.vehicle.ID, time.Date(y, m, d, 12, 0, 0, 0, lkt), []string{"1A"}))
		})
	}
}

func TestCreateBooking_FareCorrectness(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	seats := env.vehicle.SeatLayout.SeatIDs()

	offset := 0
	for n := 1; n <= 5; n++ {
		b := env.book(t, models.PaymentCash, seats[offset:offset+n]...)
		offset += n
		assert.Equal(t, n, b.SeatCount)
		assert.Equal(t, float64(n)*env.vehicle.Fare, b.TotalFare)
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(in *CreateBookingInput)
		check  func(t *testing.T, err error)
	}{
		{"NoSeats", func(in *CreateBookingInput) { in.Seats = nil }, isValidation},
		{"DuplicateSeat", func(in *CreateBookingInput) { in.Seats = []string{"1A", "1a"} }, isValidation},
		{"BadPhone", func(in *CreateBookingInput) { in.Passenger.Phone = "12345" }, isValidation},
		{"BadEmail", func(in *CreateBookingInput) { in.Passenger.Email = "nope" }, isValidation},
		{"BadMethod", func(in *CreateBookingInput) { in.PaymentMethod = "card" }, isValidation},
		{"PastDate", func(in *CreateBookingInput) { in.TravelDate = in.TravelDate.AddDate(0, 0, -10) }, isValidation},
		{"UnknownVehicle", func(in *CreateBookingInput) { in.VehicleID = "missing" }, func(t *testing.T, err error) {
			assert.True(t, domain.IsNotFound(err), err)
		}},
		{"OnlineWithoutGateway", func(in *CreateBookingInput) { in.PaymentMethod = models.PaymentOnline }, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, domain.ErrPaymentNotConfigured)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := env.input("nimal@example.com", models.PaymentCash, "5A")
			tt.mutate(&in)
			res, err := env.bookings.CreateBooking(ctx, in)
			assert.Nil(t, res)
			tt.check(t, err)
		})
	}

	stored, total, err := env.store.ListBookings(ctx, models.BookingFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Zero(t, total)
}

func isValidation(t *testing.T, err error) {
	t.Helper()
	assert.True(t, domain.IsValidation(err), "expected validation error, got %v", err)
}

func TestCreateBooking_InactiveVehicle(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	require.NoError(t, env.vehicles.DeleteVehicle(context.Background(), env.vehicle.ID))

	_, err := env.bookings.CreateBooking(context.Background(), env.input("a@example.com", models.PaymentCash, "1A"))
	assert.True(t, domain.IsValidation(err))
}

func TestCreateBooking_InvalidSeatBeforeConflictCheck(t *testing.T) {
	store := &countingStore{Store: newFileStore(t)}
	env := newTestEnv(t, store)

	_, err := env.bookings.CreateBooking(context.Background(), env.input("a@example.com", models.PaymentCash, "1A", "99Z"))

	var invalid *domain.InvalidSeatError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"99Z"}, invalid.Seats)
	assert.ErrorIs(t, err, domain.ErrInvalidSeat)
	assert.Zero(t, store.finds.Load())
}

func TestCreateBooking_SeatConflict(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	env.book(t, models.PaymentCash, "1A", "1B")

	_, err := env.bookings.CreateBooking(ctx, env.input("b@example.com", models.PaymentCash, "1C", "1B", "1A"))
	var conflict *domain.SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"1B", "1A"}, conflict.Seats)

	// Another date is a separate inventory pool.
	in := env.input("b@example.com", models.PaymentCash, "1A")
	in.TravelDate = in.TravelDate.AddDate(0, 0, 1)
	_, err = env.bookings.CreateBooking(ctx, in)
	assert.NoError(t, err)
}

func TestCreateBooking_CancelledSeatsAreReleased(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			env.now = env.departure(t).Add(-24 * time.Hour)
			b := env.book(t, models.PaymentCash, "2A")

			_, err := env.bookings.CancelBooking(context.Background(), b.ID)
			require.NoError(t, err)

			again := env.book(t, models.PaymentCash, "2A")
			assert.NotEqual(t, b.TicketNumber, again.TicketNumber)
		})
	}
}

func TestCreateBooking_ReusesPassengerByEmail(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	first := env.book(t, models.PaymentCash, "1A")
	second := env.book(t, models.PaymentCash, "1B")
	assert.Equal(t, first.PassengerID, second.PassengerID)
}

func TestCreateBooking_NoDoubleAllocation(t *testing.T) {
	lockers := map[string]envOption{
		"memory-lock": func(*BookingServiceDeps) {},
		"storage-only": withLocker(noopLocker{}),
	}

	for storeName, factory := range storeFactories {
		for lockName, lockOpt := range lockers {
			t.Run(storeName+"/"+lockName, func(t *testing.T) {
				env := newTestEnv(t, factory(t), lockOpt)
				ctx := context.Background()

				const workers = 8
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					successes int
					conflicts [][]string
					others    []error
				)
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						in := env.input(fmt.Sprintf("p%d@example.com", i), models.PaymentCash, "2B", fmt.Sprintf("%dA", i+3))
						_, err := env.bookings.CreateBooking(ctx, in)

						mu.Lock()
						defer mu.Unlock()
						var conflict *domain.SeatConflictError
						switch {
						case err == nil:
							successes++
						case errors.As(err, &conflict):
							conflicts = append(conflicts, conflict.Seats)
						default:
							others = append(others, err)
						}
					}(i)
				}
				wg.Wait()

				assert.Empty(t, others)
				assert.Equal(t, 1, successes)
				require.Len(t, conflicts, workers-1)
				for _, seats := range conflicts {
					assert.Equal(t, []string{"2B"}, seats)
				}

				booked, err := env.store.FindBookingsByVehicleAndDate(ctx, env.vehicle.ID, env.travelDate)
				require.NoError(t, err)
				assert.Len(t, booked, 1)
			})
		}
	}
}

func TestCreateBooking_RetriesTicketCollision(t *testing.T) {
	store := &collidingStore{Store: newFileStore(t), remaining: 2}
	env := newTestEnv(t, store)

	b := env.book(t, models.PaymentCash, "1A")
	require.Len(t, store.tickets, 3)
	assert.Equal(t, store.tickets[2], b.TicketNumber)
	assert.NotEqual(t, store.tickets[0], store.tickets[1])

	store.remaining = maxTicketAttempts
	_, err := env.bookings.CreateBooking(context.Background(), env.input("x@example.com", models.PaymentCash, "1B"))
	assert.ErrorIs(t, err, domain.ErrDuplicateTicket)
}

func TestCreateBooking_OnlineCheckout(t *testing.T) {
	gw := new(mockGateway)
	env := newTestEnv(t, newSQLiteStore(t), withGateway(gw))
	ctx := context.Background()

	gw.On("CreateCheckout", mock.Anything, mock.AnythingOfType("*models.Booking")).
		Return(func(_ context.Context, b *models.Booking) *models.CheckoutOrder {
			return &models.CheckoutOrder{Gateway: "payhere", OrderID: b.TicketNumber, PaymentURL: "https://pay.example/x"}
		}, nil).Once()

	res, err := env.bookings.CreateBooking(ctx, env.input("a@example.com", models.PaymentOnline, "4D"))
	require.NoError(t, err)
	require.NotNil(t, res.Checkout)
	assert.Equal(t, "https://pay.example/x", res.Checkout.PaymentURL)
	assert.Equal(t, res.Booking.TicketNumber, res.Booking.Payment.OrderID)

	p, err := env.store.GetPaymentByBooking(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.TicketNumber, p.GatewayOrderID)
	gw.AssertExpectations(t)
}

func TestCreateBooking_GatewayFailureKeepsPendingBooking(t *testing.T) {
	gw := new(mockGateway)
	env := newTestEnv(t, newFileStore(t), withGateway(gw))
	ctx := context.Background()

	gw.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	res, err := env.bookings.CreateBooking(ctx, env.input("a@example.com", models.PaymentOnline, "3C"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamGateway)
	var gwErr *domain.GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.NotNil(t, res)

	stored, err := env.store.GetBooking(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Equal(t, models.BookingConfirmed, stored.Status)

	// The user switches to cash.
	retry, err := env.bookings.RetryPayment(ctx, stored.ID, models.PaymentCash)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCash, retry.Booking.PaymentMethod)
	p, err := env.store.GetPaymentByBooking(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCash, p.Method)

	// And back to online once the gateway recovers.
	gw.On("CreateCheckout", mock.Anything, mock.Anything).
		Return(&models.CheckoutOrder{OrderID: stored.TicketNumber}, nil).Once()
	retry, err = env.bookings.RetryPayment(ctx, stored.ID, models.PaymentOnline)
	require.NoError(t, err)
	assert.NotNil(t, retry.Checkout)
	assert.Equal(t, models.PaymentOnline, retry.Booking.PaymentMethod)
}

func TestRetryPayment_Rejections(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	b := env.book(t, models.PaymentCash, "1A")

	_, err := env.bookings.RetryPayment(ctx, b.ID, models.PaymentOnline)
	assert.ErrorIs(t, err, domain.ErrPaymentNotConfigured)

	env.markPaid(t, b)
	_, err = env.bookings.RetryPayment(ctx, b.ID, models.PaymentCash)
	assert.True(t, domain.IsValidation(err))

	_, err = env.bookings.RetryPayment(ctx, "missing", models.PaymentCash)
	assert.True(t, domain.IsNotFound(err))
}

func TestCancelBooking_Window(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	departure := env.departure(t)

	t.Run("ThreeHoursBefore", func(t *testing.T) {
		b := env.book(t, models.PaymentCash, "6A")
		env.now = departure.Add(-3 * time.Hour)
		cancelled, err := env.bookings.CancelBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, cancelled.Status)
	})

	t.Run("OneHourBefore", func(t *testing.T) {
		b := env.book(t, models.PaymentCash, "6B")
		env.now = departure.Add(-1 * time.Hour)
		_, err := env.bookings.CancelBooking(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrCancellationWindowClosed)

		stored, err := env.store.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingConfirmed, stored.Status)
	})

	t.Run("ExactlyTwoHoursBefore", func(t *testing.T) {
		env.now = departure.Add(-4 * time.Hour)
		b := env.book(t, models.PaymentCash, "6C")
		env.now = departure.Add(-2 * time.Hour)
		_, err := env.bookings.CancelBooking(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrCancellationWindowClosed)
	})
}

func TestCancelBooking_RefundCascade(t *testing.T) {
	gw := new(mockGateway)
	gw.On("CreateCheckout", mock.Anything, mock.Anything).Return(&models.CheckoutOrder{OrderID: "x"}, nil)
	env := newTestEnv(t, newSQLiteStore(t), withGateway(gw))
	ctx := context.Background()
	env.now = env.departure(t).Add(-48 * time.Hour)

	t.Run("OnlineCompletedIsRefunded", func(t *testing.T) {
		b := env.book(t, models.PaymentOnline, "7A")
		env.markPaid(t, b)

		cancelled, err := env.bookings.CancelBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)

		p, err := env.store.GetPaymentByBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentRefunded, p.Status)
		require.NotNil(t, p.RefundedAt)
		assert.Equal(t, p.Amount, p.RefundAmount)
		assert.Equal(t, 1, env.bus.Count(events.EventPaymentRefunded))
	})

	t.Run("CashCompletedIsUnchanged", func(t *testing.T) {
		b := env.book(t, models.PaymentCash, "7B")
		env.markPaid(t, b)

		cancelled, err := env.bookings.CancelBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingCancelled, cancelled.Status)
		assert.Equal(t, models.PaymentCompleted, cancelled.PaymentStatus)

		p, err := env.store.GetPaymentByBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCompleted, p.Status)
		assert.Nil(t, p.RefundedAt)
	})

	t.Run("OnlinePendingIsUnchanged", func(t *testing.T) {
		b := env.book(t, models.PaymentOnline, "7C")
		cancelled, err := env.bookings.CancelBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPending, cancelled.PaymentStatus)
	})

	assert.Equal(t, 1, env.bus.Count(events.EventPaymentRefunded))
	assert.Equal(t, 3, env.bus.Count(events.EventBookingCancelled))
}

func TestCancelBooking_Twice(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	env.now = env.departure(t).Add(-24 * time.Hour)
	b := env.book(t, models.PaymentCash, "1A")

	_, err := env.bookings.CancelBooking(context.Background(), b.ID)
	require.NoError(t, err)
	_, err = env.bookings.CancelBooking(context.Background(), b.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)

	_, err = env.bookings.CancelBooking(context.Background(), "missing")
	assert.True(t, domain.IsNotFound(err))
}

func TestGetBookingByTicket(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	b := env.book(t, models.PaymentCash, "1A")

	details, err := env.bookings.GetBookingByTicket(context.Background(), strings.ToLower(b.TicketNumber))
	require.NoError(t, err)
	assert.Equal(t, b.ID, details.ID)
	require.NotNil(t, details.Vehicle)
	assert.Equal(t, env.vehicle.Number, details.Vehicle.Number)

	_, err = env.bookings.GetBookingByTicket(context.Background(), "BKTNOPE")
	assert.True(t, domain.IsNotFound(err))
}

func TestListBookings(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()
			env.now = env.departure(t).Add(-24 * time.Hour)

			seats := env.vehicle.SeatLayout.SeatIDs()
			var ids []string
			for i := 0; i < 12; i++ {
				ids = append(ids, env.book(t, models.PaymentCash, seats[i]).ID)
			}
			_, err := env.bookings.CancelBooking(ctx, ids[0])
			require.NoError(t, err)

			page, err := env.bookings.ListBookings(ctx, models.BookingFilter{Page: 2, Limit: 5})
			require.NoError(t, err)
			assert.Equal(t, 12, page.Total)
			assert.Equal(t, 3, page.TotalPages)
			assert.Equal(t, 2, page.CurrentPage)
			assert.Len(t, page.Bookings, 5)

			page, err = env.bookings.ListBookings(ctx, models.BookingFilter{Status: models.BookingCancelled})
			require.NoError(t, err)
			assert.Equal(t, 1, page.Total)
			assert.Equal(t, models.DefaultPageSize, page.Limit)

			all, err := env.bookings.AllBookings(ctx, models.BookingFilter{Status: models.BookingConfirmed})
			require.NoError(t, err)
			assert.Len(t, all, 11)

			_, err = env.bookings.ListBookings(ctx, models.BookingFilter{Status: "lost"})
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestGetStatistics(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()

			a := env.book(t, models.PaymentCash, "1A", "1B")
			b := env.book(t, models.PaymentCash, "2A")
			env.book(t, models.PaymentCash, "3A")

			env.markPaid(t, a)
			_, err := env.bookings.CancelBooking(ctx, b.ID)
			require.NoError(t, err)

			stats, err := env.bookings.GetStatistics(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.TotalBookings)
			assert.Equal(t, 2, stats.ConfirmedCount)
			assert.Equal(t, 1, stats.CancelledCount)
			assert.Equal(t, 1, stats.CompletedPaymentCount)
			assert.Equal(t, 3000.0, stats.TotalRevenue)
			assert.Equal(t, 3, stats.TodayBookingCount)

			env.now = env.now.AddDate(0, 0, 2)
			stats, err = env.bookings.GetStatistics(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.TodayBookingCount)
		})
	}
}

func TestTicketGenerator(t *testing.T) {
	t.Run("UniqueUnderConcurrency", func(t *testing.T) {
		g := NewTicketGenerator()
		const n = 2000
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			seen = make(map[string]struct{}, n)
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				code, err := g.Next()
				assert.NoError(t, err)
				mu.Lock()
				seen[code] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Len(t, seen, n)
	})

	t.Run("MonotonicWithFrozenClock", func(t *testing.T) {
		g := NewTicketGenerator()
		frozen := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		g.now = func() time.Time { return frozen }

		first, second := g.tick(), g.tick()
		assert.Equal(t, first+1, second)
	})

	t.Run("Format", func(t *testing.T) {
		code, err := NewTicketGenerator().Next()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(code, "BKT"))
		assert.Equal(t, strings.ToUpper(code), code)
		for _, r := range code {
			assert.Contains(t, ticketAlphabet, string(r))
		}
	})

	t.Run("SuffixDiscardsBiasedBytes", func(t *testing.T) {
		g := NewTicketGenerator()
		// 252..255 would fold onto 0..3 under a plain modulo
		g.entropy = bytes.NewReader([]byte{255, 252, 0, 35, 36, 251, 1, 2})
		suffix, err := g.suffix(4)
		require.NoError(t, err)
		assert.Equal(t, "0Z0Z", suffix)
	})

	t.Run("EntropyFailureSurfaces", func(t *testing.T) {
		g := NewTicketGenerator()
		g.entropy = iotest.ErrReader(errors.New("entropy exhausted"))
		code, err := g.Next()
		require.Error(t, err)
		assert.Empty(t, code)
	})
}
