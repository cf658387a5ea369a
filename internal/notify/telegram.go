package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"busticket/internal/config"
	"busticket/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// MessageSender is the part of *tgbotapi.BotAPI the sink uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts a short alert to the admin chats for every event.
type TelegramSink struct {
	bot      MessageSender
	chatIDs  []int64
	currency string
	logger   *zerolog.Logger
}

func NewTelegramSink(cfg config.TelegramConfig, currency string, logger *zerolog.Logger) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	logger.Info().Str("bot", bot.Self.UserName).Int("chats", len(cfg.AdminChatIDs)).Msg("Telegram alerts enabled")
	return newTelegramSink(bot, cfg.AdminChatIDs, currency, logger), nil
}

func newTelegramSink(bot MessageSender, chatIDs []int64, currency string, logger *zerolog.Logger) *TelegramSink {
	return &TelegramSink{bot: bot, chatIDs: chatIDs, currency: currency, logger: logger}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Deliver(ctx context.Context, event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	text := s.render(event.Type, payload)

	var errs []error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

var eventTitles = map[string]string{
	events.EventBookingCreated:   "🆕 New booking",
	events.EventBookingCancelled: "❌ Booking cancelled",
	events.EventPaymentCompleted: "✅ Payment received",
	events.EventPaymentRefunded:  "↩️ Payment refunded",
}

func (s *TelegramSink) render(eventType string, p events.BookingEventPayload) string {
	title, ok := eventTitles[eventType]
	if !ok {
		title = eventType
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", title, p.TicketNumber)
	if p.Route != "" {
		fmt.Fprintf(&b, "Route: %s (%s)\n", p.Route, p.VehicleNumber)
	}
	fmt.Fprintf(&b, "Date: %s\n", p.TravelDate)
	fmt.Fprintf(&b, "Seats: %s\n", strings.Join(p.Seats, ", "))
	fmt.Fprintf(&b, "Fare: %s %.2f\n", s.currency, p.TotalFare)
	fmt.Fprintf(&b, "Passenger: %s <%s>\n", p.PassengerName, p.PassengerMail)
	fmt.Fprintf(&b, "Payment: %s / %s", p.PaymentMethod, p.PaymentStatus)
	return b.String()
}
