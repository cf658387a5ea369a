package models

import "time"

// Passenger is created implicitly on the first booking made with an email.
type Passenger struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Age       *int      `json:"age,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payment mirrors a booking's payment state with gateway correlation data.
type Payment struct {
	ID               string        `json:"id"`
	BookingID        string        `json:"bookingId"`
	Amount           float64       `json:"amount"`
	Currency         string        `json:"currency"`
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	GatewayOrderID   string        `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string        `json:"gatewayPaymentId,omitempty"`
	GatewaySignature string        `json:"gatewaySignature,omitempty"`
	TransactionID    string        `json:"transactionId,omitempty"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
	RefundedAt       *time.Time    `json:"refundedAt,omitempty"`
	RefundAmount     float64       `json:"refundAmount,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

type Admin struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         AdminRole  `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CheckoutOrder is what the client needs to complete an online payment.
type CheckoutOrder struct {
	Gateway    string  `json:"gateway"`
	OrderID    string  `json:"orderId"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	PaymentURL string  `json:"paymentUrl,omitempty"`
	Hash       string  `json:"hash,omitempty"`
}
