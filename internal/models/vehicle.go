package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type VehicleType string

const (
	VehicleAC          VehicleType = "AC"
	VehicleNonAC       VehicleType = "Non-AC"
	VehicleSleeper     VehicleType = "Sleeper"
	VehicleSemiSleeper VehicleType = "Semi-Sleeper"
	VehicleLuxury      VehicleType = "Luxury"
)

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleAC, VehicleNonAC, VehicleSleeper, VehicleSemiSleeper, VehicleLuxury:
		return true
	}
	return false
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type Vehicle struct {
	ID            string      `json:"id" yaml:"id"`
	Number        string      `json:"number" yaml:"number"`
	Name          string      `json:"name" yaml:"name"`
	Type          VehicleType `json:"type" yaml:"type"`
	From          string      `json:"from" yaml:"from"`
	To            string      `json:"to" yaml:"to"`
	DepartureTime string      `json:"departureTime" yaml:"departure_time"`
	ArrivalTime   string      `json:"arrivalTime" yaml:"arrival_time"`
	Duration      string      `json:"duration" yaml:"duration"`
	TotalSeats    int         `json:"totalSeats" yaml:"total_seats"`
	SeatLayout    SeatLayout  `json:"seatLayout" yaml:"seat_layout"`
	Fare          float64     `json:"fare" yaml:"fare"`
	Amenities     []string    `json:"amenities" yaml:"amenities"`
	IsActive      bool        `json:"isActive" yaml:"is_active"`
	CreatedAt     time.Time   `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time   `json:"updatedAt" yaml:"-"`
}

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks the vehicle record, including that the seat count matches the layout.
func (v *Vehicle) Validate() []FieldError {
	var errs []FieldError
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	if strings.TrimSpace(v.Number) == "" {
		add("number", "vehicle number is required")
	}
	if strings.TrimSpace(v.Name) == "" {
		add("name", "vehicle name is required")
	}
	if !v.Type.Valid() {
		add("type", "type must be one of AC, Non-AC, Sleeper, Semi-Sleeper, Luxury")
	}
	if strings.TrimSpace(v.From) == "" {
		add("from", "origin is required")
	}
	if strings.TrimSpace(v.To) == "" {
		add("to", "destination is required")
	}
	if !clockPattern.MatchString(v.DepartureTime) {
		add("departureTime", "departure time must be HH:MM")
	}
	if !clockPattern.MatchString(v.ArrivalTime) {
		add("arrivalTime", "arrival time must be HH:MM")
	}
	if v.TotalSeats < 1 || v.TotalSeats > MaxSeatsPerVehicle {
		add("totalSeats", fmt.Sprintf("total seats must be between 1 and %d", MaxSeatsPerVehicle))
	}
	if v.SeatLayout.Rows < 1 || v.SeatLayout.SeatsPerRow < 1 || v.SeatLayout.SeatsPerRow > 26 {
		add("seatLayout", "seat layout needs at least one row and 1..26 seats per row")
	} else if v.SeatLayout.Capacity() != v.TotalSeats {
		add("totalSeats", fmt.Sprintf("total seats %d does not match seat layout %dx%d",
			v.TotalSeats, v.SeatLayout.Rows, v.SeatLayout.SeatsPerRow))
	}
	if v.Fare < 0 {
		add("fare", "fare cannot be negative")
	}
	return errs
}

// DepartureAt places the departure time-of-day on travelDate in loc.
func (v *Vehicle) DepartureAt(travelDate time.Time, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", v.DepartureTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse departure time %q: %w", v.DepartureTime, err)
	}
	y, m, d := travelDate.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// Summary is the compact vehicle view embedded in seat maps and tickets.
func (v *Vehicle) Summary() VehicleSummary {
	return VehicleSummary{
		ID:            v.ID,
		Number:        v.Number,
		Name:          v.Name,
		Type:          v.Type,
		From:          v.From,
		To:            v.To,
		DepartureTime: v.DepartureTime,
		ArrivalTime:   v.ArrivalTime,
		TotalSeats:    v.TotalSeats,
		SeatLayout:    v.SeatLayout,
		Fare:          v.Fare,
	}
}

type VehicleSummary struct {
	ID            string      `json:"id"`
	Number        string      `json:"number"`
	Name          string      `json:"name"`
	Type          VehicleType `json:"type"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	DepartureTime string      `json:"departureTime"`
	ArrivalTime   string      `json:"arrivalTime"`
	TotalSeats    int         `json:"totalSeats"`
	SeatLayout    SeatLayout  `json:"seatLayout"`
	Fare          float64     `json:"fare"`
}

type VehicleFilter struct {
	From            string
	To              string
	IncludeInactive bool
}

// Matches applies the case-insensitive substring route filter.
func (f VehicleFilter) Matches(v *Vehicle) bool {
	if !f.IncludeInactive && !v.IsActive {
		return false
	}
	if f.From != "" && !strings.Contains(strings.ToLower(v.From), strings.ToLower(strings.TrimSpace(f.From))) {
		return false
	}
	if f.To != "" && !strings.Contains(strings.ToLower(v.To), strings.ToLower(strings.TrimSpace(f.To))) {
		return false
	}
	return true
}

// VehicleListing is a vehicle optionally annotated with availability for a date.
type VehicleListing struct {
	*Vehicle
	AvailableSeats *int `json:"availableSeats,omitempty"`
	BookedSeats    *int `json:"bookedSeats,omitempty"`
}

type SeatMap struct {
	Vehicle        VehicleSummary `json:"vehicle"`
	BookedSeats    []string       `json:"bookedSeats"`
	AvailableSeats int            `json:"availableSeats"`
}
