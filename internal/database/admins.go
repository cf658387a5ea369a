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

func (db *DB) getAdminBy(ctx context.Context, column, value string) (*models.Admin, error) {
	var (
		a         models.Admin
		lastLogin sql.NullTime
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, is_active, last_login, created_at FROM admins WHERE `+column+` = ?`,
		value).Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive, &lastLogin, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("admin", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return &a, nil
}

func (db *DB) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return db.getAdminBy(ctx, "email", email)
}

func (db *DB) GetAdminByID(ctx context.Context, id string) (*models.Admin, error) {
	return db.getAdminBy(ctx, "id", id)
}

func (db *DB) CreateAdmin(ctx context.Context, a *models.Admin) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO admins (id, name, email, password_hash, role, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.IsActive, a.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

func (db *DB) TouchAdminLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := db.ExecContext(ctx, `UPDATE admins SET last_login = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to update admin login: %w", err)
	}
	return nil
}
