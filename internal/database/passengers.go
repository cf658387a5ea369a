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

func (db *DB) FindPassengerByEmail(ctx context.Context, email string) (*models.Passenger, error) {
	var (
		p      models.Passenger
		age    sql.NullInt64
		gender sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, age, gender, created_at FROM passengers WHERE email = ?`, email).
		Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &age, &gender, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("passenger", email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find passenger: %w", err)
	}
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	p.Gender = gender.String
	return &p, nil
}

func (db *DB) CreatePassenger(ctx context.Context, p *models.Passenger) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	var age sql.NullInt64
	if p.Age != nil {
		age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO passengers (id, name, email, phone, age, gender, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Email, p.Phone, age, nullString(p.Gender), p.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create passenger: %w", err)
	}
	return nil
}
