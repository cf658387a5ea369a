package payment

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"busticket/internal/config"
	"busticket/internal/models"

	"github.com/rs/zerolog"
)

const GatewayPayHere = "payhere"

// StatusSuccess is the PayHere status_code of a settled payment.
const StatusSuccess = "2"

// PayHereClient initiates checkouts against the PayHere API.
type PayHereClient struct {
	cfg        config.PayHereConfig
	currency   string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewPayHereClient(cfg config.PayHereConfig, currency string, logger *zerolog.Logger) *PayHereClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PayHereClient{
		cfg:        cfg,
		currency:   currency,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *PayHereClient) Name() string { return GatewayPayHere }

type checkoutRequest struct {
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Country    string `json:"country"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Currency   string `json:"currency"`
	Amount     int64  `json:"amount"`
	Hash       string `json:"hash"`
}

type checkoutResponse struct {
	Data struct {
		PaymentURL string `json:"payment_url"`
	} `json:"data"`
}

// CreateCheckout posts a signed checkout request. The ticket number is the order id.
func (c *PayHereClient) CreateCheckout(ctx context.Context, b *models.Booking) (*models.CheckoutOrder, error) {
	amount := models.MinorUnits(b.TotalFare)
	first, last := splitName(b.Passenger.Name)
	body := checkoutRequest{
		MerchantID: c.cfg.MerchantID,
		ReturnURL:  c.cfg.ReturnURL,
		CancelURL:  c.cfg.CancelURL,
		NotifyURL:  c.cfg.NotifyURL,
		FirstName:  first,
		LastName:   last,
		Email:      b.Passenger.Email,
		Phone:      b.Passenger.Phone,
		Country:    "Sri Lanka",
		OrderID:    b.TicketNumber,
		Items:      fmt.Sprintf("Bus Ticket %s x%d", b.TicketNumber, b.SeatCount),
		Currency:   c.currency,
		Amount:     amount,
		Hash:       CheckoutHash(c.cfg.MerchantSecret, b.TicketNumber, amount, c.currency),
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CheckoutURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payhere checkout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("payhere checkout: http %d", resp.StatusCode)
	}
	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("payhere checkout: decode response: %w", err)
	}
	if out.Data.PaymentURL == "" {
		return nil, errors.New("payhere checkout: empty payment url")
	}

	c.logger.Debug().Str("order_id", b.TicketNumber).Int64("amount", amount).Msg("PayHere checkout created")

	return &models.CheckoutOrder{
		Gateway:    GatewayPayHere,
		OrderID:    b.TicketNumber,
		Amount:     b.TotalFare,
		Currency:   c.currency,
		PaymentURL: out.Data.PaymentURL,
		Hash:       body.Hash,
	}, nil
}

// CheckoutHash is md5 hex of secret + orderID + amountMinor + currency.
func CheckoutHash(secret, orderID string, amountMinor int64, currency string) string {
	return md5Hex(secret + orderID + strconv.FormatInt(amountMinor, 10) + currency)
}

// Notification is the form PayHere posts to the notify URL.
type Notification struct {
	MerchantID    string `form:"merchant_id" json:"merchant_id"`
	OrderID       string `form:"order_id" json:"order_id" binding:"required"`
	PaymentID     string `form:"payment_id" json:"payment_id"`
	Amount        string `form:"payhere_amount" json:"payhere_amount"`
	Currency      string `form:"payhere_currency" json:"payhere_currency"`
	StatusCode    string `form:"status_code" json:"status_code" binding:"required"`
	StatusMessage string `form:"status_message" json:"status_message"`
	MD5Sig        string `form:"md5sig" json:"md5sig"`
}

// Succeeded reports whether the gateway settled the payment.
func (n Notification) Succeeded() bool {
	return n.StatusCode == StatusSuccess
}

// NotifySignature computes UPPER(MD5(merchant_id + order_id + amount + currency + status_code + UPPER(MD5(secret)))).
func NotifySignature(secret string, n Notification) string {
	inner := strings.ToUpper(md5Hex(secret))
	return strings.ToUpper(md5Hex(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCode + inner))
}

// VerifyNotification checks md5sig against the merchant secret. With a secret
// configured an unsigned notification is rejected; without one nothing can be
// checked and every notification passes.
func VerifyNotification(secret string, n Notification) bool {
	if secret == "" {
		return true
	}
	if n.MD5Sig == "" {
		return false
	}
	return strings.EqualFold(NotifySignature(secret, n), n.MD5Sig)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
