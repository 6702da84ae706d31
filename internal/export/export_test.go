package export

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"classbook/internal/config"
	"classbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	e, err := NewExporter(config.ExportConfig{PassSecret: "segreto", Timezone: "UTC"})
	require.NoError(t, err)
	return e
}

func sampleRoster() (models.ClassSession, []models.BookingDetail) {
	class := models.ClassSession{ID: 3, Date: "2025-09-06", Time: "19:00", Capacity: 20}
	at := time.Date(2025, 9, 1, 8, 30, 0, 0, time.UTC)
	bookings := []models.BookingDetail{
		{Booking: models.Booking{ID: 1, AccountID: 10, ClassID: 3, CreatedAt: at}, Username: "mrossi", FullName: "Mario Rossi", Email: "mario@example.com"},
		{Booking: models.Booking{ID: 2, AccountID: 11, ClassID: 3, CreatedAt: at.Add(time.Hour)}, Username: "lbianchi", FullName: "Lucia Bianchi", Email: "lucia@example.com"},
	}
	return class, bookings
}

func TestNewExporterTimezone(t *testing.T) {
	_, err := NewExporter(config.ExportConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	e, err := NewExporter(config.ExportConfig{})
	require.NoError(t, err)
	assert.Equal(t, "01/09/2025 08:30", e.formatTime(time.Date(2025, 9, 1, 8, 30, 0, 0, time.UTC)))
}

func TestRosterXLSX(t *testing.T) {
	e := newTestExporter(t)
	class, bookings := sampleRoster()

	var buf bytes.Buffer
	require.NoError(t, e.RosterXLSX(&buf, class, bookings))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{rosterSheet}, f.GetSheetList())
	title, _ := f.GetCellValue(rosterSheet, "A1")
	assert.Equal(t, "Classe 2025-09-06 ore 19:00 (2/20)", title)
	header, _ := f.GetCellValue(rosterSheet, "B2")
	assert.Equal(t, "Username", header)
	first, _ := f.GetCellValue(rosterSheet, "B3")
	assert.Equal(t, "mrossi", first)
	second, _ := f.GetCellValue(rosterSheet, "E4")
	assert.Equal(t, "01/09/2025 09:30", second)
}

func TestRosterPDF(t *testing.T) {
	e := newTestExporter(t)
	class, bookings := sampleRoster()

	var buf bytes.Buffer
	require.NoError(t, e.RosterPDF(&buf, class, bookings))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	var empty bytes.Buffer
	require.NoError(t, e.RosterPDF(&empty, class, nil))
	assert.NotZero(t, empty.Len())
}

func TestPassRoundTrip(t *testing.T) {
	e := newTestExporter(t)
	b := models.Booking{ID: 7, AccountID: 10, ClassID: 3}

	payload := e.PassPayload(b)
	assert.Regexp(t, `^7:10:3:[A-Za-z0-9_-]+$`, payload)

	claims, err := e.VerifyPass(payload)
	require.NoError(t, err)
	assert.Equal(t, PassClaims{BookingID: 7, AccountID: 10, ClassID: 3}, claims)
}

func TestVerifyPassRejectsTampering(t *testing.T) {
	e := newTestExporter(t)
	payload := e.PassPayload(models.Booking{ID: 7, AccountID: 10, ClassID: 3})
	sig := payload[len("7:10:3:"):]

	other, err := NewExporter(config.ExportConfig{PassSecret: "altro"})
	require.NoError(t, err)

	cases := map[string]string{
		"changed booking": "8:10:3:" + sig,
		"no signature":    "7:10:3",
		"empty":           "",
		"garbage":         "abc",
		"other secret":    other.PassPayload(models.Booking{ID: 7, AccountID: 10, ClassID: 3}),
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.VerifyPass(p)
			assert.ErrorIs(t, err, ErrInvalidPass)
		})
	}
}

func TestPassPNG(t *testing.T) {
	e := newTestExporter(t)
	data, err := e.PassPNG(models.Booking{ID: 7, AccountID: 10, ClassID: 3}, 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}
