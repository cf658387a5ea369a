package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"busticket/internal/domain"
	"busticket/internal/events"
	"busticket/internal/metrics"
	"busticket/internal/models"
	"busticket/internal/payment"

	"github.com/rs/zerolog"
)

const gatewayRazorpay = "razorpay"

// VerifyPaymentInput is the proof returned by the checkout widget.
type VerifyPaymentInput struct {
	BookingID string
	OrderID   string
	PaymentID string
	Signature string
}

// PaymentService moves bookings to a completed payment once the gateway
// proves the payment.
type PaymentService struct {
	store          domain.Store
	verifier       *payment.SignatureVerifier
	merchantSecret string
	eventBus       domain.EventPublisher
	now            func() time.Time
	logger         *zerolog.Logger
}

func NewPaymentService(store domain.Store, verifier *payment.SignatureVerifier, merchantSecret string,
	eventBus domain.EventPublisher, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{
		store:          store,
		verifier:       verifier,
		merchantSecret: merchantSecret,
		eventBus:       eventBus,
		now:            time.Now,
		logger:         logger,
	}
}

// VerifyCallback checks HMAC-SHA256(secret, orderId|paymentId) and, on a
// match, marks the booking paid. A mismatch changes nothing.
func (s *PaymentService) VerifyCallback(ctx context.Context, in VerifyPaymentInput) (*models.Booking, error) {
	if !s.verifier.Verify(in.OrderID, in.PaymentID, in.Signature) {
		metrics.IncPayment(gatewayRazorpay, "rejected")
		s.logger.Warn().Str("booking_id", in.BookingID).Str("order_id", in.OrderID).Msg("Payment signature mismatch")
		return nil, domain.ErrPaymentVerificationFailed
	}

	return s.complete(ctx, gatewayRazorpay, in.BookingID, models.PaymentDetails{
		OrderID:   in.OrderID,
		PaymentID: in.PaymentID,
		Signature: in.Signature,
	})
}

// HandleNotification applies a server-to-server PayHere notification. The
// gateway only knows the ticket number, which is used as its order id.
func (s *PaymentService) HandleNotification(ctx context.Context, n payment.Notification) (*models.Booking, error) {
	if !payment.VerifyNotification(s.merchantSecret, n) {
		metrics.IncPayment(payment.GatewayPayHere, "rejected")
		s.logger.Warn().Str("order_id", n.OrderID).Msg("PayHere notification signature mismatch")
		return nil, domain.ErrPaymentVerificationFailed
	}
	if !n.Succeeded() {
		metrics.IncPayment(payment.GatewayPayHere, "failed")
		msg := strings.TrimSpace(n.StatusMessage)
		if msg == "" {
			msg = "payment was not successful"
		}
		return nil, domain.InvalidField("status_code", msg)
	}

	booking, err := s.store.GetBookingByTicket(ctx, n.OrderID)
	if err != nil {
		return nil, err
	}
	return s.complete(ctx, payment.GatewayPayHere, booking.ID, models.PaymentDetails{
		OrderID:   n.OrderID,
		PaymentID: n.PaymentID,
		Signature: n.MD5Sig,
	})
}

// complete is idempotent: a booking that is already paid is returned unchanged.
func (s *PaymentService) complete(ctx context.Context, gateway, bookingID string, details models.PaymentDetails) (*models.Booking, error) {
	paidAt := s.now().UTC()
	details.PaidAt = &paidAt

	changed := false
	booking, err := s.store.UpdateBooking(ctx, bookingID, func(b *models.Booking) error {
		// the proof must belong to the order this booking was checked out with
		if b.Payment.OrderID != "" && b.Payment.OrderID != details.OrderID {
			return domain.ErrPaymentVerificationFailed
		}
		if b.PaymentStatus == models.PaymentCompleted {
			return nil
		}
		if !b.IsActive() {
			return domain.ErrAlreadyCancelled
		}
		b.PaymentStatus = models.PaymentCompleted
		b.Payment = details
		changed = true
		return nil
	})
	if errors.Is(err, domain.ErrPaymentVerificationFailed) {
		metrics.IncPayment(gateway, "rejected")
		s.logger.Warn().Str("booking_id", bookingID).Str("order_id", details.OrderID).Msg("Payment order does not match booking")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return booking, nil
	}

	if _, err := s.store.UpdatePaymentByBooking(ctx, bookingID, func(p *models.Payment) {
		p.Status = models.PaymentCompleted
		p.GatewayOrderID = details.OrderID
		p.GatewayPaymentID = details.PaymentID
		p.GatewaySignature = details.Signature
		p.TransactionID = details.PaymentID
		p.PaidAt = &paidAt
	}); err != nil {
		return nil, err
	}

	metrics.IncPayment(gateway, "completed")
	s.logger.Info().Str("ticket", booking.TicketNumber).Str("gateway", gateway).Msg("Payment completed")

	if s.eventBus != nil {
		vehicle, _ := s.store.GetVehicle(ctx, booking.VehicleID)
		payload := events.NewBookingEventPayload(booking, vehicle, paidAt)
		if err := s.eventBus.PublishJSON(events.EventPaymentCompleted, payload); err != nil {
			s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("publish event error")
		}
	}
	return booking, nil
}
