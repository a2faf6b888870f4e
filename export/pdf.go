package export

import (
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"jansetu-be/models"
)

// Column widths in millimeters, sized for a landscape A4 page.
var pdfWidths = []float64{30, 30, 25, 20, 40, 25, 30, 77}

// Character budget per column before the cell text is truncated.
var pdfMaxChars = []int{18, 18, 14, 11, 24, 12, 18, 52}

// WritePDF serializes the issues into a paginated landscape PDF table with
// the header row repeated on every page and a generation timestamp footer.
func WritePDF(w io.Writer, issues []models.Issue, generatedAt time.Time) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 6, "Generated "+generatedAt.Format("2006-01-02 15:04:05"), "", 0, "L", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "Issues Export", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	drawHeader(pdf)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(0, 0, 0)

	for _, row := range Rows(issues) {
		if pdf.GetY() > 180 {
			pdf.AddPage()
			drawHeader(pdf)
			pdf.SetFont("Helvetica", "", 8)
			pdf.SetTextColor(0, 0, 0)
		}
		for col, value := range row {
			pdf.CellFormat(pdfWidths[col], 6, truncate(value, pdfMaxChars[col]), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

func drawHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(37, 99, 235)
	pdf.SetTextColor(255, 255, 255)
	for col, title := range Header {
		pdf.CellFormat(pdfWidths[col], 7, title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

// truncate cuts on rune boundaries so a multi-byte character is never
// split mid-sequence.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
