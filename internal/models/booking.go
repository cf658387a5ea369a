package models

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

var phonePattern = regexp.MustCompile(`^(\+94|0)?[1-9]\d{8}$`)

// ValidPhone reports whether phone is a Sri Lankan mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// PassengerDetails is the contact snapshot copied onto a booking.
type PassengerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (p PassengerDetails) Normalize() PassengerDetails {
	return PassengerDetails{
		Name:  strings.TrimSpace(p.Name),
		Email: strings.ToLower(strings.TrimSpace(p.Email)),
		Phone: strings.TrimSpace(p.Phone),
	}
}

func (p PassengerDetails) Validate() []FieldError {
	var errs []FieldError
	if len(p.Name) < 2 {
		errs = append(errs, FieldError{Field: "passengerDetails.name", Message: "name must be at least 2 characters"})
	}
	if addr, err := mail.ParseAddress(p.Email); err != nil || addr.Address != p.Email {
		errs = append(errs, FieldError{Field: "passengerDetails.email", Message: "a valid email is required"})
	}
	if !ValidPhone(p.Phone) {
		errs = append(errs, FieldError{Field: "passengerDetails.phone", Message: "phone must be a valid Sri Lankan mobile number"})
	}
	return errs
}

// PaymentDetails holds gateway correlation data mirrored onto the booking.
type PaymentDetails struct {
	OrderID   string     `json:"orderId,omitempty"`
	PaymentID string     `json:"paymentId,omitempty"`
	Signature string     `json:"signature,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

type Booking struct {
	ID            string           `json:"id"`
	TicketNumber  string           `json:"ticketNumber"`
	VehicleID     string           `json:"vehicleId"`
	PassengerID   string           `json:"passengerId"`
	TravelDate    time.Time        `json:"travelDate"`
	Seats         []string         `json:"seats"`
	SeatCount     int              `json:"seatCount"`
	TotalFare     float64          `json:"totalFare"`
	PaymentMethod PaymentMethod    `json:"paymentMethod"`
	PaymentStatus PaymentStatus    `json:"paymentStatus"`
	Status        BookingStatus    `json:"bookingStatus"`
	Passenger     PassengerDetails `json:"passengerDetails"`
	Payment       PaymentDetails   `json:"paymentDetails"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// IsActive reports whether the booking still holds its seats.
func (b *Booking) IsActive() bool {
	return b.Status != BookingCancelled
}

// TotalFare prices seatCount seats at fare, rounded to minor units.
func TotalFare(fare float64, seatCount int) float64 {
	return math.Round(fare*float64(seatCount)*100) / 100
}

// MinorUnits converts an amount to cents for gateway payloads.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// BookingDetails is a booking together with the vehicle it travels on.
type BookingDetails struct {
	*Booking
	Vehicle *VehicleSummary `json:"vehicle,omitempty"`
}

type BookingFilter struct {
	Status        BookingStatus
	PaymentStatus PaymentStatus
	Page          int
	Limit         int
}

// Normalize clamps pagination to sane bounds.
func (f *BookingFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

func (f BookingFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches applies the status filters; zero values match everything.
func (f BookingFilter) Matches(b *Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.PaymentStatus != "" && b.PaymentStatus != f.PaymentStatus {
		return false
	}
	return true
}

type BookingPage struct {
	Bookings    []*Booking
	Total       int
	Limit       int
	TotalPages  int
	CurrentPage int
}

func NewBookingPage(bookings []*Booking, total int, f BookingFilter) *BookingPage {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	return &BookingPage{
		Bookings:    bookings,
		Total:       total,
		Limit:       f.Limit,
		TotalPages:  pages,
		CurrentPage: f.Page,
	}
}

type BookingStats struct {
	TotalBookings         int     `json:"totalBookings"`
	ConfirmedCount        int     `json:"confirmedCount"`
	CancelledCount        int     `json:"cancelledCount"`
	CompletedPaymentCount int     `json:"completedPaymentCount"`
	TotalRevenue          float64 `json:"totalRevenue"`
	TodayBookingCount     int     `json:"todayBookingCount"`
}

// Add folds one booking into the statistics. createdToday is decided by the caller's clock.
func (s *BookingStats) Add(b *Booking, createdToday bool) {
	s.TotalBookings++
	switch b.Status {
	case BookingConfirmed:
		s.ConfirmedCount++
	case BookingCancelled:
		s.CancelledCount++
	}
	if b.PaymentStatus == PaymentCompleted {
		s.CompletedPaymentCount++
		s.TotalRevenue += b.TotalFare
	}
	if createdToday {
		s.TodayBookingCount++
	}
}

// ParseTravelDate accepts "2006-01-02" or an RFC 3339 timestamp and returns the
// calendar day in loc as midnight UTC.
func ParseTravelDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(DateLayout, value, loc); err == nil {
		return CalendarDay(t, loc), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("travel date %q must be YYYY-MM-DD", value)
	}
	return CalendarDay(t, loc), nil
}

// CalendarDay truncates t to its calendar day as observed in loc.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TravelDay reduces t to the calendar day it falls on in loc. Values already
// in that form (midnight UTC) are returned unchanged.
func TravelDay(t time.Time, loc *time.Location) time.Time {
	if t.Location() == time.UTC && t.Equal(t.Truncate(24*time.Hour)) {
		return t
	}
	return CalendarDay(t, loc)
}

// DateKey renders a calendar day as used for storage keys.
func DateKey(day time.Time) string {
	return day.UTC().Format(DateLayout)
}
