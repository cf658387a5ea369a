package service

import (
	"context"
	"strings"
	"time"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type VehicleService struct {
	store        domain.Store
	availability *AvailabilityResolver
	loc          *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewVehicleService(store domain.Store, loc *time.Location, logger *zerolog.Logger) *VehicleService {
	if loc == nil {
		loc = time.UTC
	}
	return &VehicleService{
		store:        store,
		availability: NewAvailabilityResolver(store, loc),
		loc:          loc,
		now:          time.Now,
		logger:       logger,
	}
}

// ListVehicles filters by route; with a travel date every entry carries its
// booked and available seat counts.
func (s *VehicleService) ListVehicles(ctx context.Context, filter models.VehicleFilter, travelDate *time.Time) ([]*models.VehicleListing, error) {
	vehicles, err := s.store.ListVehicles(ctx, filter)
	if err != nil {
		return nil, err
	}
	if travelDate != nil {
		return s.availability.Annotate(ctx, vehicles, *travelDate)
	}

	listings := make([]*models.VehicleListing, 0, len(vehicles))
	for _, v := range vehicles {
		listings = append(listings, &models.VehicleListing{Vehicle: v})
	}
	return listings, nil
}

func (s *VehicleService) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

func (s *VehicleService) SeatMap(ctx context.Context, id string, travelDate time.Time) (*models.SeatMap, error) {
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.availability.SeatMap(ctx, v, travelDate)
}

// CheckAvailability exposes the conflict resolver for a vehicle id.
func (s *VehicleService) CheckAvailability(ctx context.Context, id string, travelDate time.Time, seats []string) error {
	normalized := make([]string, len(seats))
	for i, seat := range seats {
		normalized[i] = models.NormalizeSeat(seat)
	}
	return s.availability.CheckAvailability(ctx, id, travelDate, normalized)
}

func normalizeVehicle(v *models.Vehicle) {
	v.Number = strings.ToUpper(strings.TrimSpace(v.Number))
	v.Name = strings.TrimSpace(v.Name)
	v.From = strings.TrimSpace(v.From)
	v.To = strings.TrimSpace(v.To)
	if v.Amenities == nil {
		v.Amenities = []string{}
	}
}

// CreateVehicle adds a vehicle to the catalog. New vehicles always start active.
func (s *VehicleService) CreateVehicle(ctx context.Context, v *models.Vehicle) (*models.Vehicle, error) {
	normalizeVehicle(v)
	if err := domain.Invalid(v.Validate()); err != nil {
		return nil, err
	}
	v.ID = uuid.NewString()
	v.IsActive = true
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Str("vehicle_id", v.ID).Str("number", v.Number).Msg("Vehicle created")
	return v, nil
}

// UpdateVehicle replaces the mutable fields of an existing vehicle. A nil
// active keeps the stored active flag.
func (s *VehicleService) UpdateVehicle(ctx context.Context, id string, v *models.Vehicle, active *bool) (*models.Vehicle, error) {
	existing, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	normalizeVehicle(v)
	if err := domain.Invalid(v.Validate()); err != nil {
		return nil, err
	}
	v.ID = existing.ID
	v.CreatedAt = existing.CreatedAt
	v.IsActive = existing.IsActive
	if active != nil {
		v.IsActive = *active
	}
	if err := s.store.UpdateVehicle(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Str("vehicle_id", v.ID).Msg("Vehicle updated")
	return v, nil
}

// DeleteVehicle soft-disables a vehicle. It is refused while confirmed
// bookings exist for today or later.
func (s *VehicleService) DeleteVehicle(ctx context.Context, id string) error {
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return err
	}
	active, err := s.store.CountActiveBookingsFrom(ctx, id, models.CalendarDay(s.now(), s.loc))
	if err != nil {
		return err
	}
	if active > 0 {
		return domain.ErrVehicleInUse
	}

	v.IsActive = false
	if err := s.store.UpdateVehicle(ctx, v); err != nil {
		return err
	}
	s.logger.Info().Str("vehicle_id", id).Msg("Vehicle disabled")
	return nil
}
