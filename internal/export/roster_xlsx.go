package export

import (
	"fmt"
	"io"

	"classbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const rosterSheet = "Iscritti"

var rosterColumns = []string{"#", "Username", "Nome", "Email", "Prenotato il"}

// RosterXLSX writes the booking list of a class as a spreadsheet.
func (e *Exporter) RosterXLSX(w io.Writer, class models.ClassSession, bookings []models.BookingDetail) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(rosterSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	// Заголовок
	_ = f.SetCellValue(rosterSheet, "A1", fmt.Sprintf("Classe %s ore %s (%d/%d)", class.Date, class.Time, len(bookings), class.Capacity))
	_ = f.MergeCell(rosterSheet, "A1", "E1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(rosterSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, name := range rosterColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(rosterSheet, cell, name)
		_ = f.SetCellStyle(rosterSheet, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := i + 3
		values := []interface{}{i + 1, b.Username, b.FullName, b.Email, e.formatTime(b.CreatedAt)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(rosterSheet, cell, v)
		}
	}

	_ = f.SetColWidth(rosterSheet, "A", "A", 6)
	_ = f.SetColWidth(rosterSheet, "B", "E", 24)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
