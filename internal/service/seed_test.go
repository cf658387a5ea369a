package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
vehicles:
  - id: colombo-kandy-0600
    number: NA-1001
    name: Hill Country Express
    type: AC
    from: Colombo
    to: Kandy
    departure_time: "06:00"
    arrival_time: "09:15"
    duration: 3h 15m
    total_seats: 44
    seat_layout: {rows: 11, seats_per_row: 4}
    fare: 1200
    amenities: [WiFi, Charging]
    is_active: true
  - number: nb-2002
    name: Southern Line
    type: Non-AC
    from: Colombo
    to: Galle
    departure_time: "07:30"
    arrival_time: "10:00"
    duration: 2h 30m
    total_seats: 40
    seat_layout: {rows: 10, seats_per_row: 4}
    fare: 650
    is_active: true
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vehicles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSeedVehicles(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	store := newSQLiteStore(t)

	catalog, err := LoadVehicleCatalog(writeCatalog(t, catalogYAML))
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	created, err := SeedVehicles(ctx, store, catalog, &logger)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	v, err := store.GetVehicle(ctx, "colombo-kandy-0600")
	require.NoError(t, err)
	assert.Equal(t, []string{"WiFi", "Charging"}, v.Amenities)
	assert.Equal(t, 11, v.SeatLayout.Rows)

	created, err = SeedVehicles(ctx, store, catalog, &logger)
	require.NoError(t, err)
	assert.Zero(t, created)

	count, err := store.CountVehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSeedVehicles_InvalidEntry(t *testing.T) {
	logger := zerolog.New(io.Discard)
	catalog, err := LoadVehicleCatalog(writeCatalog(t, `
vehicles:
  - number: NA-1
    name: Broken
    type: AC
    from: A
    to: B
    departure_time: "6am"
    arrival_time: "09:00"
    total_seats: 10
    seat_layout: {rows: 2, seats_per_row: 4}
`))
	require.NoError(t, err)

	_, err = SeedVehicles(context.Background(), newFileStore(t), catalog, &logger)
	assert.Error(t, err)
}

func TestLoadVehicleCatalog_Errors(t *testing.T) {
	_, err := LoadVehicleCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadVehicleCatalog(writeCatalog(t, "vehicles: [unterminated"))
	assert.Error(t, err)
}
