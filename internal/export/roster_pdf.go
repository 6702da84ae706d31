package export

import (
	"fmt"
	"io"
	"strconv"

	"classbook/internal/models"

	"github.com/phpdave11/gofpdf"
)

// RosterPDF writes a printable attendance sheet for a class.
func (e *Exporter) RosterPDF(w io.Writer, class models.ClassSession, bookings []models.BookingDetail) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Classe del %s ore %s", class.Date, class.Time)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Iscritti: %d / %d", len(bookings), class.Capacity)))
	pdf.Ln(12)

	widths := []float64{10, 40, 55, 60, 25}
	headers := []string{"#", "Username", "Nome", "Email", "Firma"}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(221, 235, 247)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for i, b := range bookings {
		cells := []string{strconv.Itoa(i + 1), b.Username, b.FullName, b.Email, ""}
		for j, c := range cells {
			pdf.CellFormat(widths[j], 8, tr(c), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
