package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, ticket_number, vehicle_id, passenger_id, travel_date, seats, seat_count, total_fare,
    payment_method, payment_status, booking_status, passenger_name, passenger_email, passenger_phone,
    gateway_order_id, gateway_payment_id, gateway_signature, paid_at, created_at, updated_at`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                             models.Booking
		travelDate, seats             string
		orderID, paymentID, signature sql.NullString
		paidAt                        sql.NullTime
	)
	err := row.Scan(&b.ID, &b.TicketNumber, &b.VehicleID, &b.PassengerID, &travelDate, &seats, &b.SeatCount,
		&b.TotalFare, &b.PaymentMethod, &b.PaymentStatus, &b.Status, &b.Passenger.Name, &b.Passenger.Email,
		&b.Passenger.Phone, &orderID, &paymentID, &signature, &paidAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.TravelDate, err = time.Parse(models.DateLayout, travelDate); err != nil {
		return nil, fmt.Errorf("parse travel date of booking %s: %w", b.ID, err)
	}
	if b.Seats, err = decodeList(seats); err != nil {
		return nil, fmt.Errorf("decode seats of booking %s: %w", b.ID, err)
	}
	b.Payment = models.PaymentDetails{
		OrderID:   orderID.String,
		PaymentID: paymentID.String,
		Signature: signature.String,
	}
	if paidAt.Valid {
		t := paidAt.Time
		b.Payment.PaidAt = &t
	}
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) FindBookingsByVehicleAndDate(ctx context.Context, vehicleID string, travelDate time.Time) ([]*models.Booking, error) {
	bookings, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE vehicle_id = ? AND travel_date = ? AND booking_status != ?
         ORDER BY created_at`,
		vehicleID, models.DateKey(travelDate), models.BookingCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) CountActiveBookingsFrom(ctx context.Context, vehicleID string, from time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE vehicle_id = ? AND travel_date >= ? AND booking_status = ?`,
		vehicleID, models.DateKey(from), models.BookingConfirmed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return n, nil
}

// CreateBooking checks and claims the seats inside one transaction.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	dateKey := models.DateKey(b.TravelDate)

	seats, err := encodeList(b.Seats)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	args := []any{b.VehicleID, dateKey}
	for _, s := range b.Seats {
		args = append(args, s)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_number FROM booking_seats WHERE vehicle_id = ? AND travel_date = ? AND seat_number IN (`+
			placeholders(len(b.Seats))+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to check seats in tx: %w", err)
	}
	taken := make(map[string]struct{})
	for rows.Next() {
		var seat string
		if err := rows.Scan(&seat); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan taken seat: %w", err)
		}
		taken[seat] = struct{}{}
	}
	rows.Close()
	if conflicts := models.ConflictingSeats(b.Seats, taken); len(conflicts) > 0 {
		return &domain.SeatConflictError{Seats: conflicts}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO bookings (`+bookingColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TicketNumber, b.VehicleID, b.PassengerID, dateKey, seats, b.SeatCount, b.TotalFare,
		b.PaymentMethod, b.PaymentStatus, b.Status, b.Passenger.Name, b.Passenger.Email, b.Passenger.Phone,
		nullString(b.Payment.OrderID), nullString(b.Payment.PaymentID), nullString(b.Payment.Signature),
		nullTime(b.Payment.PaidAt), b.CreatedAt, b.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateTicket
	}
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	if b.IsActive() {
		for _, seat := range b.Seats {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO booking_seats (booking_id, vehicle_id, travel_date, seat_number) VALUES (?, ?, ?, ?)`,
				b.ID, b.VehicleID, dateKey, seat)
			if isUniqueViolation(err) {
				return &domain.SeatConflictError{Seats: []string{seat}}
			}
			if err != nil {
				return fmt.Errorf("failed to claim seat %s: %w", seat, err)
			}
		}
	}

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return db.getBookingBy(ctx, "id", id)
}

func (db *DB) GetBookingByTicket(ctx context.Context, ticketNumber string) (*models.Booking, error) {
	return db.getBookingBy(ctx, "ticket_number", ticketNumber)
}

func (db *DB) getBookingBy(ctx context.Context, column, value string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+column+` = ?`, value)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("booking", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// UpdateBooking applies fn to the stored booking and writes it back. Seats of a
// booking that becomes cancelled are released.
func (db *DB) UpdateBooking(ctx context.Context, id string, apply func(b *models.Booking) error) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("booking", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking in tx: %w", err)
	}

	wasActive := b.IsActive()
	if err := apply(b); err != nil {
		return nil, err
	}
	b.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `UPDATE bookings SET payment_method = ?, payment_status = ?, booking_status = ?,
        gateway_order_id = ?, gateway_payment_id = ?, gateway_signature = ?, paid_at = ?, updated_at = ?
        WHERE id = ?`,
		b.PaymentMethod, b.PaymentStatus, b.Status, nullString(b.Payment.OrderID),
		nullString(b.Payment.PaymentID), nullString(b.Payment.Signature), nullTime(b.Payment.PaidAt),
		b.UpdatedAt, b.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	if wasActive && !b.IsActive() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_seats WHERE booking_id = ?`, b.ID); err != nil {
			return nil, fmt.Errorf("failed to release seats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking update: %w", err)
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	filter.Normalize()

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "booking_status = ?")
		args = append(args, filter.Status)
	}
	if filter.PaymentStatus != "" {
		conds = append(conds, "payment_status = ?")
		args = append(args, filter.PaymentStatus)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	bookings, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, total, nil
}

// BookingStats aggregates over all bookings; created_at is stored in UTC so the
// day bounds compare lexically.
func (db *DB) BookingStats(ctx context.Context, dayStart, dayEnd time.Time) (*models.BookingStats, error) {
	var s models.BookingStats
	err := db.QueryRowContext(ctx, `SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN booking_status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN booking_status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN payment_status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN payment_status = ? THEN total_fare ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN created_at >= ? AND created_at < ? THEN 1 ELSE 0 END), 0)
        FROM bookings`,
		models.BookingConfirmed, models.BookingCancelled, models.PaymentCompleted, models.PaymentCompleted,
		dayStart.UTC(), dayEnd.UTC()).
		Scan(&s.TotalBookings, &s.ConfirmedCount, &s.CancelledCount, &s.CompletedPaymentCount,
			&s.TotalRevenue, &s.TodayBookingCount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute booking stats: %w", err)
	}
	return &s, nil
}
