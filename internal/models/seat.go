package models

import (
	"regexp"
	"strconv"
	"strings"
)

var seatPattern = regexp.MustCompile(`^([1-9][0-9]*)([A-Z])$`)

// SeatLayout describes the seat grid of a vehicle. Seat ids are the row
// number followed by a column letter, e.g. "3B".
type SeatLayout struct {
	Rows        int `json:"rows" yaml:"rows"`
	SeatsPerRow int `json:"seatsPerRow" yaml:"seats_per_row"`
}

func (l SeatLayout) Capacity() int {
	return l.Rows * l.SeatsPerRow
}

// Contains reports whether seat names a cell of the layout.
func (l SeatLayout) Contains(seat string) bool {
	m := seatPattern.FindStringSubmatch(seat)
	if m == nil {
		return false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil || row > l.Rows {
		return false
	}
	col := int(m[2][0] - 'A')
	return col < l.SeatsPerRow
}

// SeatIDs lists every seat of the layout in row-major order.
func (l SeatLayout) SeatIDs() []string {
	ids := make([]string, 0, l.Capacity())
	for row := 1; row <= l.Rows; row++ {
		for col := 0; col < l.SeatsPerRow; col++ {
			ids = append(ids, strconv.Itoa(row)+string(rune('A'+col)))
		}
	}
	return ids
}

// NormalizeSeat canonicalizes user input such as " 3b " to "3B".
func NormalizeSeat(seat string) string {
	return strings.ToUpper(strings.TrimSpace(seat))
}

// OutsideLayout returns the requested seats that the layout does not contain.
func OutsideLayout(layout SeatLayout, seats []string) []string {
	var invalid []string
	for _, s := range seats {
		if !layout.Contains(s) {
			invalid = append(invalid, s)
		}
	}
	return invalid
}

// ConflictingSeats intersects requested with taken, keeping request order.
func ConflictingSeats(requested []string, taken map[string]struct{}) []string {
	var conflicts []string
	for _, s := range requested {
		if _, ok := taken[s]; ok {
			conflicts = append(conflicts, s)
		}
	}
	return conflicts
}

// TakenSeats flattens the seats of every active booking into a set.
func TakenSeats(bookings []*Booking) map[string]struct{} {
	taken := make(map[string]struct{})
	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		for _, s := range b.Seats {
			taken[s] = struct{}{}
		}
	}
	return taken
}
