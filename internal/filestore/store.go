// Package filestore keeps every collection in one JSON document on disk. Each
// call reads the whole file and each mutation rewrites it, all under one mutex,
// so it is only suitable as a single-process fallback.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"busticket/internal/models"

	"github.com/rs/zerolog"
)

const BackendName = "file"

type storedAdmin struct {
	models.Admin
	PasswordHash string `json:"passwordHash"`
}

type document struct {
	Vehicles   []*models.Vehicle   `json:"vehicles"`
	Bookings   []*models.Booking   `json:"bookings"`
	Passengers []*models.Passenger `json:"passengers"`
	Payments   []*models.Payment   `json:"payments"`
	Admins     []*storedAdmin      `json:"admins"`
}

type Store struct {
	path   string
	mu     sync.Mutex
	logger *zerolog.Logger
}

// Open creates the file with empty collections when it does not exist.
func Open(path string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create file store directory: %w", err)
	}
	s := &Store{path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.save(&document{}); err != nil {
			return nil, err
		}
		logger.Info().Str("path", path).Msg("File store created")
	} else if err != nil {
		return nil, fmt.Errorf("stat file store: %w", err)
	}

	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Name() string { return BackendName }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.view(ctx, func(*document) error { return nil })
}

func (s *Store) load() (*document, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read file store: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode file store: %w", err)
	}
	return &doc, nil
}

// save writes to a temp file and renames it over the store so a crash never
// leaves a half-written document.
func (s *Store) save(doc *document) error {
	if doc.Vehicles == nil {
		doc.Vehicles = []*models.Vehicle{}
	}
	if doc.Bookings == nil {
		doc.Bookings = []*models.Booking{}
	}
	if doc.Passengers == nil {
		doc.Passengers = []*models.Passenger{}
	}
	if doc.Payments == nil {
		doc.Payments = []*models.Payment{}
	}
	if doc.Admins == nil {
		doc.Admins = []*storedAdmin{}
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode file store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write file store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace file store: %w", err)
	}
	return nil
}

func (s *Store) view(ctx context.Context, fn func(doc *document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *Store) update(ctx context.Context, fn func(doc *document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}
