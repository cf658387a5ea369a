package service

import (
	"context"
	"testing"

	"busticket/internal/domain"
	"busticket/internal/events"
	"busticket/internal/models"
	"busticket/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func signedNotification(ticket, status string) payment.Notification {
	n := payment.Notification{
		MerchantID: "1211149",
		OrderID:    ticket,
		PaymentID:  "320025071278",
		Amount:     "1500.00",
		Currency:   "LKR",
		StatusCode: status,
	}
	n.MD5Sig = payment.NotifySignature("payhere_secret", n)
	return n
}

func TestVerifyCallback(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()
			b := env.book(t, models.PaymentCash, "1A")
			verifier := payment.NewSignatureVerifier(testRazorpaySecret)

			in := VerifyPaymentInput{
				BookingID: b.ID,
				OrderID:   "order_1",
				PaymentID: "pay_1",
				Signature: verifier.Sign("order_1", "pay_1"),
			}

			tampered := in
			tampered.PaymentID = "pay_2"
			_, err := env.payments.VerifyCallback(ctx, tampered)
			assert.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)

			unchanged, err := env.store.GetBooking(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentPending, unchanged.PaymentStatus)

			paid, err := env.payments.VerifyCallback(ctx, in)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentCompleted, paid.PaymentStatus)
			assert.Equal(t, "order_1", paid.Payment.OrderID)
			assert.Equal(t, "pay_1", paid.Payment.PaymentID)
			require.NotNil(t, paid.Payment.PaidAt)

			p, err := env.store.GetPaymentByBooking(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentCompleted, p.Status)
			assert.Equal(t, "pay_1", p.TransactionID)
			assert.Equal(t, "order_1", p.GatewayOrderID)

			again, err := env.payments.VerifyCallback(ctx, in)
			require.NoError(t, err)
			assert.Equal(t, models.PaymentCompleted, again.PaymentStatus)
			assert.Equal(t, 1, env.bus.Count(events.EventPaymentCompleted))
		})
	}
}

func TestVerifyCallback_OrderMustMatchCheckout(t *testing.T) {
	gw := new(mockGateway)
	gw.On("CreateCheckout", mock.Anything, mock.AnythingOfType("*models.Booking")).
		Return(func(_ context.Context, b *models.Booking) *models.CheckoutOrder {
			return &models.CheckoutOrder{Gateway: "payhere", OrderID: b.TicketNumber}
		}, nil)
	env := newTestEnv(t, newFileStore(t), withGateway(gw))
	ctx := context.Background()
	b := env.book(t, models.PaymentOnline, "2A")
	verifier := payment.NewSignatureVerifier(testRazorpaySecret)

	// a valid proof issued for another order
	_, err := env.payments.VerifyCallback(ctx, VerifyPaymentInput{
		BookingID: b.ID,
		OrderID:   "order_elsewhere",
		PaymentID: "pay_1",
		Signature: verifier.Sign("order_elsewhere", "pay_1"),
	})
	assert.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)

	stored, err := env.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Zero(t, env.bus.Count(events.EventPaymentCompleted))

	paid, err := env.payments.VerifyCallback(ctx, VerifyPaymentInput{
		BookingID: b.ID,
		OrderID:   b.TicketNumber,
		PaymentID: "pay_1",
		Signature: verifier.Sign(b.TicketNumber, "pay_1"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, paid.PaymentStatus)
}

func TestVerifyCallback_UnknownBooking(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	verifier := payment.NewSignatureVerifier(testRazorpaySecret)

	_, err := env.payments.VerifyCallback(context.Background(), VerifyPaymentInput{
		BookingID: "missing",
		OrderID:   "o",
		PaymentID: "p",
		Signature: verifier.Sign("o", "p"),
	})
	assert.True(t, domain.IsNotFound(err))
}

func TestVerifyCallback_CancelledBooking(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	b := env.book(t, models.PaymentCash, "1A")
	_, err := env.bookings.CancelBooking(ctx, b.ID)
	require.NoError(t, err)

	verifier := payment.NewSignatureVerifier(testRazorpaySecret)
	_, err = env.payments.VerifyCallback(ctx, VerifyPaymentInput{
		BookingID: b.ID,
		OrderID:   "o",
		PaymentID: "p",
		Signature: verifier.Sign("o", "p"),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.Zero(t, env.bus.Count(events.EventPaymentCompleted))
}

func TestHandleNotification(t *testing.T) {
	env := newTestEnv(t, newSQLiteStore(t))
	ctx := context.Background()
	b := env.book(t, models.PaymentCash, "3C")

	paid, err := env.payments.HandleNotification(ctx, signedNotification(b.TicketNumber, payment.StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, b.ID, paid.ID)
	assert.Equal(t, models.PaymentCompleted, paid.PaymentStatus)
	assert.Equal(t, "320025071278", paid.Payment.PaymentID)
	assert.Equal(t, 1, env.bus.Count(events.EventPaymentCompleted))
}

func TestHandleNotification_Failures(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	b := env.book(t, models.PaymentCash, "3C")

	t.Run("NotSuccessful", func(t *testing.T) {
		n := signedNotification(b.TicketNumber, "-2")
		n.StatusMessage = "Card declined"
		n.MD5Sig = payment.NotifySignature("payhere_secret", n)

		_, err := env.payments.HandleNotification(ctx, n)
		require.True(t, domain.IsValidation(err))
		assert.Contains(t, err.Error(), "Card declined")
	})

	t.Run("BadSignature", func(t *testing.T) {
		n := signedNotification(b.TicketNumber, payment.StatusSuccess)
		n.Amount = "1.00"
		_, err := env.payments.HandleNotification(ctx, n)
		assert.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)
	})

	t.Run("Unsigned", func(t *testing.T) {
		n := signedNotification(b.TicketNumber, payment.StatusSuccess)
		n.MD5Sig = ""
		_, err := env.payments.HandleNotification(ctx, n)
		assert.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)
	})

	t.Run("UnknownTicket", func(t *testing.T) {
		_, err := env.payments.HandleNotification(ctx, signedNotification("BKTNOPE", payment.StatusSuccess))
		assert.True(t, domain.IsNotFound(err))
	})

	stored, err := env.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
	assert.Zero(t, env.bus.Count(events.EventPaymentCompleted))
}
