package service

import (
	"context"
	"testing"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVehicle_Validation(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))

	v := testVehicle("NB-9999")
	v.TotalSeats = 41
	_, err := env.vehicles.CreateVehicle(context.Background(), v)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "totalSeats")
}

func TestCreateVehicle_StartsActive(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()

	v := testVehicle("NB-4321")
	v.IsActive = false
	created, err := env.vehicles.CreateVehicle(ctx, v)
	require.NoError(t, err)
	assert.True(t, created.IsActive)

	listed, err := env.vehicles.ListVehicles(ctx, models.VehicleFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestListVehicles(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()

			other := testVehicle(" nc-7777 ")
			other.From, other.To = "Galle", "Matara"
			other.DepartureTime = "06:30"
			created, err := env.vehicles.CreateVehicle(ctx, other)
			require.NoError(t, err)
			assert.Equal(t, "NC-7777", created.Number)

			all, err := env.vehicles.ListVehicles(ctx, models.VehicleFilter{}, nil)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "06:30", all[0].DepartureTime)
			assert.Nil(t, all[0].AvailableSeats)

			env.book(t, models.PaymentCash, "1A", "1B", "1C")
			date := env.travelDate
			kandy, err := env.vehicles.ListVehicles(ctx, models.VehicleFilter{From: "colo", To: "KAN"}, &date)
			require.NoError(t, err)
			require.Len(t, kandy, 1)
			assert.Equal(t, env.vehicle.ID, kandy[0].ID)
			require.NotNil(t, kandy[0].BookedSeats)
			assert.Equal(t, 3, *kandy[0].BookedSeats)
			assert.Equal(t, 37, *kandy[0].AvailableSeats)
		})
	}
}

func TestSeatMap(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	env.book(t, models.PaymentCash, "2B", "1A")
	cancelled := env.book(t, models.PaymentCash, "3D")
	env.now = env.departure(t).AddDate(0, 0, -1)
	_, err := env.bookings.CancelBooking(ctx, cancelled.ID)
	require.NoError(t, err)

	seatMap, err := env.vehicles.SeatMap(ctx, env.vehicle.ID, env.travelDate)
	require.NoError(t, err)
	assert.Equal(t, []string{"1A", "2B"}, seatMap.BookedSeats)
	assert.Equal(t, 38, seatMap.AvailableSeats)
	assert.Equal(t, "NB-1234", seatMap.Vehicle.Number)

	_, err = env.vehicles.SeatMap(ctx, "missing", env.travelDate)
	assert.True(t, domain.IsNotFound(err))
}

func TestCheckAvailability(t *testing.T) {
	env := newTestEnv(t, newFileStore(t))
	ctx := context.Background()
	env.book(t, models.PaymentCash, "1A")

	assert.NoError(t, env.vehicles.CheckAvailability(ctx, env.vehicle.ID, env.travelDate, []string{"1b"}))

	err := env.vehicles.CheckAvailability(ctx, env.vehicle.ID, env.travelDate, []string{"1a"})
	assert.True(t, domain.IsSeatConflict(err))

	err = env.vehicles.CheckAvailability(ctx, env.vehicle.ID, env.travelDate, []string{"11A"})
	assert.ErrorIs(t, err, domain.ErrInvalidSeat)
}

func TestUpdateVehicle(t *testing.T) {
	env := newTestEnv(t, newSQLiteStore(t))
	ctx := context.Background()

	update := testVehicle("NB-1234")
	update.Fare = 1750
	update.IsActive = false
	updated, err := env.vehicles.UpdateVehicle(ctx, env.vehicle.ID, update, nil)
	require.NoError(t, err)
	assert.Equal(t, env.vehicle.ID, updated.ID)

	stored, err := env.vehicles.GetVehicle(ctx, env.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1750.0, stored.Fare)
	assert.True(t, stored.IsActive, "omitted active flag keeps the stored value")

	inactive := false
	_, err = env.vehicles.UpdateVehicle(ctx, env.vehicle.ID, testVehicle("NB-1234"), &inactive)
	require.NoError(t, err)
	stored, err = env.vehicles.GetVehicle(ctx, env.vehicle.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	_, err = env.vehicles.UpdateVehicle(ctx, "missing", testVehicle("NB-1"), nil)
	assert.True(t, domain.IsNotFound(err))
}

func TestDeleteVehicle(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, factory(t))
			ctx := context.Background()
			b := env.book(t, models.PaymentCash, "1A")

			err := env.vehicles.DeleteVehicle(ctx, env.vehicle.ID)
			assert.ErrorIs(t, err, domain.ErrVehicleInUse)

			env.now = env.departure(t).AddDate(0, 0, -1)
			_, err = env.bookings.CancelBooking(ctx, b.ID)
			require.NoError(t, err)

			require.NoError(t, env.vehicles.DeleteVehicle(ctx, env.vehicle.ID))
			stored, err := env.vehicles.GetVehicle(ctx, env.vehicle.ID)
			require.NoError(t, err)
			assert.False(t, stored.IsActive)

			listed, err := env.vehicles.ListVehicles(ctx, models.VehicleFilter{}, nil)
			require.NoError(t, err)
			assert.Empty(t, listed)
		})
	}
}
