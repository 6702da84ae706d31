package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"classbook/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *RosterSheet) {
	t.Helper()
	ctx := context.Background()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return mux, newRosterSheet(srv, "roster_tid", "")
}

func TestRosterSheet_TestConnection(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestRosterSheet_EnsureHeader(t *testing.T) {
	mux, s := setupMockServer(t)
	var got sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A1:I1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})
	require.NoError(t, s.EnsureHeader(context.Background()))
	require.Len(t, got.Values, 1)
	assert.Equal(t, "Booking ID", got.Values[0][0])
}

func TestRosterSheet_WarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A:A", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"Booking ID"}, {"123"}, {}, {456.0}},
		})
	})
	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow(123)
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow(456)
	assert.True(t, ok)
	assert.Equal(t, 4, row)
}

func TestRosterSheet_UpsertAppendsNewRow(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A:A", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	})
	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&appended)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Prenotazioni!A7:I7"},
		})
	})

	err := s.UpsertBooking(context.Background(), events.BookingEventPayload{
		BookingID: 789, Username: "mrossi", ClassDate: "2025-09-06", ClassTime: "19:00",
	})
	require.NoError(t, err)

	require.Len(t, appended.Values, 1)
	assert.Equal(t, "mrossi", appended.Values[0][2])
	row, ok := s.getCachedRow(789)
	assert.True(t, ok)
	assert.Equal(t, 7, row)
}

func TestRosterSheet_UpsertUpdatesCachedRow(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(123, 2)

	var calls int32
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A2:I2", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	require.NoError(t, s.UpsertBooking(context.Background(), events.BookingEventPayload{BookingID: 123}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.Error(t, s.UpsertBooking(context.Background(), events.BookingEventPayload{}))
}

func TestRosterSheet_DeleteBooking(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow(456, 3)
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A3:I3:clear", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A:A", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	})

	require.NoError(t, s.DeleteBooking(context.Background(), 456))
	_, ok := s.getCachedRow(456)
	assert.False(t, ok)

	// Rows that were never mirrored are ignored.
	assert.NoError(t, s.DeleteBooking(context.Background(), 999))
}

func TestRosterSheet_APIError(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/roster_tid/values/Prenotazioni!A:A", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
	})

	_, err := s.FindBookingRow(context.Background(), 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRowNotFound)
}

func TestCellID(t *testing.T) {
	assert.Equal(t, int64(5), cellID([]interface{}{"5"}))
	assert.Equal(t, int64(7), cellID([]interface{}{7.0}))
	assert.Equal(t, int64(0), cellID([]interface{}{"Booking ID"}))
	assert.Equal(t, int64(0), cellID(nil))
}
