// Package export renders bookings as downloadable artefacts.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"busticket/internal/models"

	"github.com/phpdave11/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRContent is the text encoded in a ticket's QR code.
func QRContent(b *models.Booking) string {
	return strings.Join([]string{
		"BUSTICKET",
		b.TicketNumber,
		models.DateKey(b.TravelDate),
		strings.Join(b.Seats, ","),
	}, "|")
}

// TicketQR renders the ticket QR code as a PNG.
func TicketQR(b *models.Booking) ([]byte, error) {
	png, err := qrcode.Encode(QRContent(b), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode ticket qr: %w", err)
	}
	return png, nil
}

// TicketPDF renders a one-page A4 e-ticket with the QR code embedded.
func TicketPDF(details *models.BookingDetails, currency string) ([]byte, error) {
	b := details.Booking
	qr, err := TicketQR(b)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+b.TicketNumber, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BUS E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, b.TicketNumber)
	pdf.Ln(12)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 150, 15, 45, 45, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range ticketLines(details, currency) {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please show this ticket when boarding. Cancellations close 2 hours before departure.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render ticket pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func ticketLines(details *models.BookingDetails, currency string) []string {
	b := details.Booking
	lines := make([]string, 0, 10)
	if v := details.Vehicle; v != nil {
		lines = append(lines,
			fmt.Sprintf("Bus        : %s (%s)", v.Name, v.Number),
			fmt.Sprintf("Route      : %s - %s", v.From, v.To),
			fmt.Sprintf("Departure  : %s %s", models.DateKey(b.TravelDate), v.DepartureTime),
			fmt.Sprintf("Arrival    : %s", v.ArrivalTime),
		)
	} else {
		lines = append(lines, fmt.Sprintf("Travel date: %s", models.DateKey(b.TravelDate)))
	}
	lines = append(lines,
		fmt.Sprintf("Seats      : %s", strings.Join(b.Seats, ", ")),
		fmt.Sprintf("Passenger  : %s", b.Passenger.Name),
		fmt.Sprintf("Phone      : %s", b.Passenger.Phone),
		fmt.Sprintf("Total fare : %s %.2f", currency, b.TotalFare),
		fmt.Sprintf("Payment    : %s (%s)", b.PaymentMethod, b.PaymentStatus),
		fmt.Sprintf("Status     : %s", b.Status),
	)
	return lines
}
