package billing

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// Renderer serializes a bill into a downloadable document
type Renderer interface {
	Render(doc Document) ([]byte, error)
}

// PDFRenderer lays the bill out on a single A4 page
type PDFRenderer struct {
	// Compress enables stream compression; off keeps the text greppable
	Compress bool
}

// NewPDFRenderer creates a PDFRenderer with compression enabled
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Compress: true}
}

// Render draws the title, the "Bill Details" header and one line per detail
func (r *PDFRenderer) Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("MeterEase", true)
	pdf.SetCreationDate(doc.IssueDate)
	pdf.SetModificationDate(doc.IssueDate)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "", 22)
	width, _ := pdf.GetPageSize()
	pdf.Text((width-pdf.GetStringWidth(doc.Title))/2, 20, doc.Title)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(20, 40, "Bill Details")

	y := 50.0
	for _, line := range doc.Lines() {
		pdf.Text(20, y, line)
		y += 10
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}
