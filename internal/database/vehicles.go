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

const vehicleColumns = `id, number, name, type, origin, destination, departure_time, arrival_time,
    duration, total_seats, layout_rows, seats_per_row, fare, amenities, is_active, created_at, updated_at`

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var (
		v         models.Vehicle
		duration  sql.NullString
		amenities string
	)
	err := row.Scan(&v.ID, &v.Number, &v.Name, &v.Type, &v.From, &v.To, &v.DepartureTime, &v.ArrivalTime,
		&duration, &v.TotalSeats, &v.SeatLayout.Rows, &v.SeatLayout.SeatsPerRow, &v.Fare, &amenities,
		&v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Duration = duration.String
	if v.Amenities, err = decodeList(amenities); err != nil {
		return nil, fmt.Errorf("decode amenities of vehicle %s: %w", v.ID, err)
	}
	return &v, nil
}

func (db *DB) ListVehicles(ctx context.Context, filter models.VehicleFilter) ([]*models.Vehicle, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.IncludeInactive {
		conds = append(conds, "is_active = 1")
	}
	if from := strings.TrimSpace(filter.From); from != "" {
		conds = append(conds, "LOWER(origin) LIKE ?")
		args = append(args, "%"+strings.ToLower(from)+"%")
	}
	if to := strings.TrimSpace(filter.To); to != "" {
		conds = append(conds, "LOWER(destination) LIKE ?")
		args = append(args, "%"+strings.ToLower(to)+"%")
	}

	query := `SELECT ` + vehicleColumns + ` FROM vehicles`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY departure_time, number`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

func (db *DB) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	row := db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("vehicle", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (db *DB) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now

	amenities, err := encodeList(v.Amenities)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO vehicles (`+vehicleColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Number, v.Name, v.Type, v.From, v.To, v.DepartureTime, v.ArrivalTime, v.Duration,
		v.TotalSeats, v.SeatLayout.Rows, v.SeatLayout.SeatsPerRow, v.Fare, amenities, v.IsActive,
		v.CreatedAt, v.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.InvalidField("number", fmt.Sprintf("vehicle number %s already exists", v.Number))
	}
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", err)
	}
	return nil
}

func (db *DB) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	v.UpdatedAt = time.Now().UTC()
	amenities, err := encodeList(v.Amenities)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE vehicles SET number = ?, name = ?, type = ?, origin = ?,
        destination = ?, departure_time = ?, arrival_time = ?, duration = ?, total_seats = ?,
        layout_rows = ?, seats_per_row = ?, fare = ?, amenities = ?, is_active = ?, updated_at = ?
        WHERE id = ?`,
		v.Number, v.Name, v.Type, v.From, v.To, v.DepartureTime, v.ArrivalTime, v.Duration, v.TotalSeats,
		v.SeatLayout.Rows, v.SeatLayout.SeatsPerRow, v.Fare, amenities, v.IsActive, v.UpdatedAt, v.ID)
	if isUniqueViolation(err) {
		return domain.InvalidField("number", fmt.Sprintf("vehicle number %s already exists", v.Number))
	}
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("vehicle", v.ID)
	}
	return nil
}

func (db *DB) CountVehicles(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vehicles: %w", err)
	}
	return n, nil
}
