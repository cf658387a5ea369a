package export

import (
	"fmt"
	"strings"

	"busticket/internal/models"

	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Bookings"

var bookingColumns = []string{
	"Ticket", "Travel Date", "Vehicle", "Seats", "Seat Count", "Total Fare",
	"Payment Method", "Payment Status", "Booking Status", "Passenger", "Email", "Phone", "Created At",
}

// BookingsXLSX renders bookings as a spreadsheet. vehicleNumbers maps vehicle
// ids to their plate numbers; unknown ids fall back to the id.
func BookingsXLSX(bookings []*models.Booking, vehicleNumbers map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for i, title := range bookingColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, title)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bookingColumns))
	_ = f.SetCellStyle(bookingsSheet, "A1", lastCol+"1", headerStyle)

	cancelledStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create row style: %w", err)
	}

	for i, b := range bookings {
		row := i + 2
		vehicle := vehicleNumbers[b.VehicleID]
		if vehicle == "" {
			vehicle = b.VehicleID
		}
		values := []interface{}{
			b.TicketNumber,
			models.DateKey(b.TravelDate),
			vehicle,
			strings.Join(b.Seats, ", "),
			b.SeatCount,
			b.TotalFare,
			string(b.PaymentMethod),
			string(b.PaymentStatus),
			string(b.Status),
			b.Passenger.Name,
			b.Passenger.Email,
			b.Passenger.Phone,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(bookingsSheet, start, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
		if b.Status == models.BookingCancelled {
			_ = f.SetCellStyle(bookingsSheet, start, fmt.Sprintf("%s%d", lastCol, row), cancelledStyle)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 18)
	_ = f.SetColWidth(bookingsSheet, "B", lastCol, 16)
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
