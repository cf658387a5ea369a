package service

import (
	"context"
	"fmt"
	"os"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type vehicleCatalog struct {
	Vehicles []models.Vehicle `yaml:"vehicles"`
}

// LoadVehicleCatalog reads seed vehicles from a YAML file.
func LoadVehicleCatalog(path string) ([]models.Vehicle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vehicle catalog: %w", err)
	}
	var catalog vehicleCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse vehicle catalog: %w", err)
	}
	return catalog.Vehicles, nil
}

// SeedVehicles creates the catalog vehicles when the store has none. It
// returns how many were created.
func SeedVehicles(ctx context.Context, store domain.Store, vehicles []models.Vehicle, logger *zerolog.Logger) (int, error) {
	count, err := store.CountVehicles(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Debug().Int("vehicles", count).Msg("Store already has vehicles, skipping seed")
		return 0, nil
	}

	created := 0
	for i := range vehicles {
		v := vehicles[i]
		normalizeVehicle(&v)
		if err := domain.Invalid(v.Validate()); err != nil {
			return created, fmt.Errorf("seed vehicle %s: %w", v.Number, err)
		}
		if err := store.CreateVehicle(ctx, &v); err != nil {
			return created, fmt.Errorf("seed vehicle %s: %w", v.Number, err)
		}
		created++
	}
	logger.Info().Int("vehicles", created).Msg("Seeded vehicle catalog")
	return created, nil
}
