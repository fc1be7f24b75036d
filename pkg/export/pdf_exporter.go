package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders reports into a tabular PDF document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with the report title, a summary block and one table
// per section.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(report.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	for _, row := range report.Summary {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 6, row.Label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, row.Value, "", 1, "", false, 0, "")
	}
	if len(report.Summary) > 0 {
		pdf.Ln(4)
	}

	for _, section := range report.Sections {
		if len(section.Data.Headers) == 0 {
			return nil, fmt.Errorf("pdf section %q requires at least one header", section.Heading)
		}
		if section.Heading != "" {
			pdf.SetFont("Arial", "B", 12)
			pdf.CellFormat(0, 8, section.Heading, "", 1, "", false, 0, "")
		}
		colWidth := 190.0 / float64(len(section.Data.Headers))
		pdf.SetFont("Arial", "B", 9)
		for _, header := range section.Data.Headers {
			pdf.CellFormat(colWidth, 7, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 8)
		for _, row := range section.Data.Rows {
			for _, header := range section.Data.Headers {
				pdf.CellFormat(colWidth, 6, row[header], "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
