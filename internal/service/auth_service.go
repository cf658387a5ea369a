package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"busticket/internal/config"
	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Claims is the payload of an admin bearer token.
type Claims struct {
	AdminID string           `json:"id"`
	Role    models.AdminRole `json:"role"`
	jwt.RegisteredClaims
}

// CreateAdminInput carries a new back-office account.
type CreateAdminInput struct {
	Name     string
	Email    string
	Password string
	Role     models.AdminRole
}

type AuthService struct {
	store  domain.Store
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	logger *zerolog.Logger
}

func NewAuthService(store domain.Store, cfg config.AuthConfig, issuer string, logger *zerolog.Logger) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthService{
		store:  store,
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
		logger: logger,
	}
}

// Login checks the credentials of an active admin and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Admin, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if domain.IsNotFound(err) {
		return nil, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("email", email).Msg("Failed admin login")
		return nil, "", fmt.Errorf("%w: invalid credentials", domain.ErrUnauthorized)
	}
	if !admin.IsActive {
		return nil, "", fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	}

	now := s.now().UTC()
	if err := s.store.TouchAdminLogin(ctx, admin.ID, now); err != nil {
		s.logger.Error().Err(err).Str("admin_id", admin.ID).Msg("Failed to record last login")
	} else {
		admin.LastLogin = &now
	}

	token, err := s.IssueToken(admin)
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// IssueToken signs an HS256 token valid for the configured TTL.
func (s *AuthService) IssueToken(admin *models.Admin) (string, error) {
	now := s.now()
	claims := Claims{
		AdminID: admin.ID,
		Role:    admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   admin.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate resolves a bearer token to an active admin.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Admin, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	admin, err := s.store.GetAdminByID(ctx, claims.AdminID)
	if domain.IsNotFound(err) {
		return nil, fmt.Errorf("%w: admin no longer exists", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !admin.IsActive {
		return nil, fmt.Errorf("%w: account is disabled", domain.ErrUnauthorized)
	}
	return admin, nil
}

func (s *AuthService) CreateAdmin(ctx context.Context, in CreateAdminInput) (*models.Admin, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = models.RoleAdmin
	}

	var fields []models.FieldError
	if len(in.Name) < 2 {
		fields = append(fields, models.FieldError{Field: "name", Message: "name must be at least 2 characters"})
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields = append(fields, models.FieldError{Field: "email", Message: "a valid email is required"})
	}
	if len(in.Password) < minPasswordLength {
		fields = append(fields, models.FieldError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)})
	}
	if !in.Role.Valid() {
		fields = append(fields, models.FieldError{Field: "role", Message: "role must be admin or superadmin"})
	}
	if err := domain.Invalid(fields); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	admin := &models.Admin{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		IsActive:     true,
	}
	err = s.store.CreateAdmin(ctx, admin)
	if errors.Is(err, domain.ErrDuplicateEmail) {
		return nil, domain.InvalidField("email", "an admin with this email already exists")
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("admin_id", admin.ID).Str("role", string(admin.Role)).Msg("Admin created")
	return admin, nil
}

// EnsureBootstrapAdmin creates the configured superadmin when it is missing.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, cfg config.BootstrapAdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}
	_, err := s.store.GetAdminByEmail(ctx, strings.ToLower(strings.TrimSpace(cfg.Email)))
	if err == nil {
		return nil
	}
	if !domain.IsNotFound(err) {
		return err
	}

	name := cfg.Name
	if name == "" {
		name = "Administrator"
	}
	_, err = s.CreateAdmin(ctx, CreateAdminInput{Name: name, Email: cfg.Email, Password: cfg.Password, Role: models.RoleSuperAdmin})
	return err
}
