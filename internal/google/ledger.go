package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"busticket/internal/config"
	"busticket/internal/events"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultLedgerSheet = "Bookings"

var errRowNotFound = errors.New("ledger row not found")

var ledgerHeaders = []interface{}{
	"Ticket", "Booking ID", "Vehicle", "Route", "Travel Date", "Seats", "Fare",
	"Payment Method", "Payment Status", "Booking Status", "Passenger", "Email", "Updated At",
}

// LedgerSink mirrors every booking as one row of a spreadsheet, keyed by
// ticket number in column A.
type LedgerSink struct {
	service       *sheets.Service
	spreadsheetID string
	sheet         string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
	logger        *zerolog.Logger
}

// NewLedgerSink authenticates with a service account credentials file.
func NewLedgerSink(ctx context.Context, cfg config.GoogleConfig, logger *zerolog.Logger) (*LedgerSink, error) {
	credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newLedgerSink(srv, cfg.LedgerSpreadsheetID, cfg.LedgerRange, logger), nil
}

func newLedgerSink(srv *sheets.Service, spreadsheetID, sheet string, logger *zerolog.Logger) *LedgerSink {
	if sheet == "" {
		sheet = defaultLedgerSheet
	}
	return &LedgerSink{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheet:         sheet,
		rowCache:      make(map[string]int),
		logger:        logger,
	}
}

func (s *LedgerSink) Name() string { return "sheets" }

// Deliver upserts the booking row carried by the event.
func (s *LedgerSink) Deliver(ctx context.Context, event *events.Event) error {
	var p events.BookingEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	if p.TicketNumber == "" {
		return fmt.Errorf("event %s has no ticket number", event.ID)
	}
	return s.UpsertRow(ctx, p)
}

// EnsureHeader writes the column titles into row 1.
func (s *LedgerSink) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(1), &sheets.ValueRange{
		Values: [][]interface{}{ledgerHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	return nil
}

// WarmUpCache indexes the ticket column so updates avoid a lookup per event.
func (s *LedgerSink) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if ticket := cellString(row); ticket != "" && i > 0 {
			s.rowCache[ticket] = i + 1
		}
	}
	return nil
}

// UpsertRow rewrites the row of the ticket, appending it when absent.
func (s *LedgerSink) UpsertRow(ctx context.Context, p events.BookingEventPayload) error {
	rowIdx, err := s.findRow(ctx, p.TicketNumber)
	if errors.Is(err, errRowNotFound) {
		return s.appendRow(ctx, p)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{ledgerRow(p)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update ledger row %d: %w", rowIdx, err)
	}
	return nil
}

func (s *LedgerSink) appendRow(ctx context.Context, p events.BookingEventPayload) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{ledgerRow(p)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(p.TicketNumber, row)
		}
	}
	return nil
}

func (s *LedgerSink) findRow(ctx context.Context, ticket string) (int, error) {
	if row, ok := s.getCachedRow(ticket); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read ledger tickets: %w", err)
	}
	for i, row := range resp.Values {
		if cellString(row) == ticket {
			s.setCachedRow(ticket, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *LedgerSink) rangeOf(row int) string {
	return fmt.Sprintf("%s!A%d:M%d", s.sheet, row, row)
}

func (s *LedgerSink) getCachedRow(ticket string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[ticket]
	return row, ok
}

func (s *LedgerSink) setCachedRow(ticket string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[ticket] = row
}

func ledgerRow(p events.BookingEventPayload) []interface{} {
	return []interface{}{
		p.TicketNumber,
		p.BookingID,
		p.VehicleNumber,
		p.Route,
		p.TravelDate,
		strings.Join(p.Seats, ", "),
		p.TotalFare,
		string(p.PaymentMethod),
		string(p.PaymentStatus),
		string(p.Status),
		p.PassengerName,
		p.PassengerMail,
		p.OccurredAt.Format(time.RFC3339),
	}
}

func cellString(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	if v, ok := row[0].(string); ok {
		return v
	}
	return ""
}

// rowFromRange extracts the first row number of an A1 range like "Bookings!A10:M10".
func rowFromRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, false
	}
	return row, true
}
