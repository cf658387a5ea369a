package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/google/uuid"
)

const paymentColumns = `id, booking_id, amount, currency, method, status, gateway_order_id, gateway_payment_id,
    gateway_signature, transaction_id, paid_at, refunded_at, refund_amount, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                                    models.Payment
		orderID, paymentID, signature, txnID sql.NullString
		paidAt, refundedAt                   sql.NullTime
	)
	err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Method, &p.Status, &orderID, &paymentID,
		&signature, &txnID, &paidAt, &refundedAt, &p.RefundAmount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.GatewayOrderID = orderID.String
	p.GatewayPaymentID = paymentID.String
	p.GatewaySignature = signature.String
	p.TransactionID = txnID.String
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		p.RefundedAt = &t
	}
	return &p, nil
}

func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := db.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BookingID, p.Amount, p.Currency, p.Method, p.Status, nullString(p.GatewayOrderID),
		nullString(p.GatewayPaymentID), nullString(p.GatewaySignature), nullString(p.TransactionID),
		nullTime(p.PaidAt), nullTime(p.RefundedAt), p.RefundAmount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (db *DB) GetPaymentByBooking(ctx context.Context, bookingID string) (*models.Payment, error) {
	p, err := scanPayment(db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (db *DB) UpdatePaymentByBooking(ctx context.Context, bookingID string, apply func(p *models.Payment)) (*models.Payment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("payment", bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment in tx: %w", err)
	}

	apply(p)
	p.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `UPDATE payments SET amount = ?, method = ?, status = ?, gateway_order_id = ?,
        gateway_payment_id = ?, gateway_signature = ?, transaction_id = ?, paid_at = ?, refunded_at = ?,
        refund_amount = ?, updated_at = ? WHERE id = ?`,
		p.Amount, p.Method, p.Status, nullString(p.GatewayOrderID), nullString(p.GatewayPaymentID),
		nullString(p.GatewaySignature), nullString(p.TransactionID), nullTime(p.PaidAt),
		nullTime(p.RefundedAt), p.RefundAmount, p.UpdatedAt, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment update: %w", err)
	}
	return p, nil
}
