package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"classbook/internal/events"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// ErrRowNotFound is returned when a booking has no row in the mirror.
var ErrRowNotFound = errors.New("booking row not found")

var rosterHeader = []interface{}{"Booking ID", "Account ID", "Username", "Nome", "Email", "Class ID", "Data", "Ora", "Aggiornato"}

// RosterSheet mirrors bookings into one sheet, one row per booking.
// Column A holds the booking id and is the lookup key.
type RosterSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewRosterSheet authenticates with a service account key file.
func NewRosterSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*RosterSheet, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newRosterSheet(srv, spreadsheetID, sheetName), nil
}

func newRosterSheet(srv *sheets.Service, spreadsheetID, sheetName string) *RosterSheet {
	if sheetName == "" {
		sheetName = "Prenotazioni"
	}
	return &RosterSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[int64]int),
	}
}

func (s *RosterSheet) rng(format string, args ...interface{}) string {
	return s.sheetName + "!" + fmt.Sprintf(format, args...)
}

// TestConnection проверяет подключение к таблице
func (s *RosterSheet) TestConnection(ctx context.Context) error {
	if _, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the header row.
func (s *RosterSheet) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:I1"), &sheets.ValueRange{
		Values: [][]interface{}{rosterHeader},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write roster header: %w", err)
	}
	return nil
}

// WarmUpCache reads column A and rebuilds the booking id → row index.
func (s *RosterSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read roster ids: %w", err)
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellID(row); id > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// UpsertBooking rewrites the booking row, appending it when missing.
func (s *RosterSheet) UpsertBooking(ctx context.Context, p events.BookingEventPayload) error {
	if p.BookingID == 0 {
		return fmt.Errorf("booking id is required")
	}

	row, err := s.FindBookingRow(ctx, p.BookingID)
	if errors.Is(err, ErrRowNotFound) {
		return s.appendBooking(ctx, p)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A%d:I%d", row, row), &sheets.ValueRange{
		Values: [][]interface{}{rosterRow(p)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update roster row: %w", err)
	}
	return nil
}

var updatedRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

func (s *RosterSheet) appendBooking(ctx context.Context, p events.BookingEventPayload) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{rosterRow(p)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append roster row: %w", err)
	}

	if resp.Updates != nil {
		if m := updatedRowRe.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, err := strconv.Atoi(m[1]); err == nil {
				s.setCachedRow(p.BookingID, row)
			}
		}
	}
	return nil
}

// DeleteBooking clears the booking row. A missing row is not an error.
func (s *RosterSheet) DeleteBooking(ctx context.Context, bookingID int64) error {
	row, err := s.FindBookingRow(ctx, bookingID)
	if errors.Is(err, ErrRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A%d:I%d", row, row), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear roster row: %w", err)
	}
	s.deleteCachedRow(bookingID)
	return nil
}

// FindBookingRow returns the 1-based row of bookingID, consulting the cache first.
func (s *RosterSheet) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read roster ids: %w", err)
	}
	for i, row := range resp.Values {
		if cellID(row) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

func cellID(row []interface{}) int64 {
	if len(row) == 0 {
		return 0
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

func rosterRow(p events.BookingEventPayload) []interface{} {
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	return []interface{}{
		p.BookingID,
		p.AccountID,
		p.Username,
		p.FullName,
		p.Email,
		p.ClassID,
		p.ClassDate,
		p.ClassTime,
		at.Format("2006-01-02 15:04:05"),
	}
}

func (s *RosterSheet) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *RosterSheet) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *RosterSheet) deleteCachedRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}
