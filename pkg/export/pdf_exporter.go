package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets and certificates with gofpdf.
type PDFExporter struct {
	institution string
	now         func() time.Time
}

// NewPDFExporter constructs a PDF exporter; institution is printed in every header.
func NewPDFExporter(institution string) *PDFExporter {
	if institution == "" {
		institution = "Centre d'Etudes Doctorales"
	}
	return &PDFExporter{institution: institution, now: time.Now}
}

// Render creates a tabular PDF, switching to landscape for wide datasets.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation, width := "P", 190.0
	if len(data.Headers) > 5 {
		orientation, width = "L", 277.0
	}
	pdf := e.newDocument(orientation)
	e.header(pdf, title)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 9)
	colWidth := width / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return e.output(pdf)
}

func (e *PDFExporter) newDocument(orientation string) *gofpdf.Fpdf {
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	generatedAt := e.now().Format("02/01/2006 15:04")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 10, generatedAt, "", 0, "R", false, 0, "")
	})
	pdf.AddPage()
	return pdf
}

func (e *PDFExporter) header(pdf *gofpdf.Fpdf, title string) {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, tr(e.institution), "", 1, "L", false, 0, "")
	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(title)), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}
}

func (e *PDFExporter) output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
