package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin  = 12.0
	topMargin   = 15.0
	bottomLimit = 18.0
	lineHeight  = 5.0
	cellPad     = 1.0
)

// Column widths in mm; they sum to the printable A4 width.
var columns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 22, "L"},
	{"Project", 34, "L"},
	{"Description", 74, "L"},
	{"Time Spent", 28, "R"},
	{"Creator Initials", 28, "C"},
}

// PDFRasterizer draws an A4 portrait report with fpdf. The creation date is
// the view stamp and the catalog is sorted, so equal views give equal bytes.
type PDFRasterizer struct{}

// Rasterize returns a panic inside fpdf as an error.
func (PDFRasterizer) Rasterize(v *View) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("rasterize: %v", r)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(v.Stamp)
	pdf.SetModificationDate(v.Stamp)
	pdf.SetTitle(v.Title, true)
	pdf.SetCreator("reportq", false)
	pdf.SetMargins(pageMargin, topMargin, pageMargin)
	pdf.SetAutoPageBreak(false, bottomLimit)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	_, pageH := pdf.GetPageSize()
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, tr(v.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if v.Recipient != "" {
		pdf.CellFormat(0, 6, tr("Prepared for "+v.Recipient), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, tr(v.PeriodLabel), "", 1, "L", false, 0, "")
	pdf.Ln(3)
	header(pdf)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range v.Rows {
		cells := []string{row.Date, row.Project, row.Description, row.Spent, row.Initials}
		wrapped := make([][]string, len(cells))
		lines := 1
		for i, c := range cells {
			wrapped[i] = splitLines(pdf, tr(c), columns[i].width-2*cellPad)
			if len(wrapped[i]) > lines {
				lines = len(wrapped[i])
			}
		}
		h := float64(lines)*lineHeight + 2*cellPad
		if pdf.GetY()+h > pageH-bottomLimit {
			pdf.AddPage()
			header(pdf)
			pdf.SetFont("Helvetica", "", 9)
		}
		x, y := pageMargin, pdf.GetY()
		for i, col := range columns {
			pdf.Rect(x, y, col.width, h, "D")
			for j, line := range wrapped[i] {
				pdf.SetXY(x+cellPad, y+cellPad+float64(j)*lineHeight)
				pdf.CellFormat(col.width-2*cellPad, lineHeight, line, "", 0, col.align, false, 0, "")
			}
			x += col.width
		}
		pdf.SetXY(pageMargin, y+h)
	}

	if pdf.GetY()+7 > pageH-bottomLimit {
		pdf.AddPage()
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	lead := columns[0].width + columns[1].width + columns[2].width
	pdf.CellFormat(lead, 7, "Total", "1", 0, "R", true, 0, "")
	pdf.CellFormat(columns[3].width, 7, tr(v.Total), "1", 0, "R", true, 0, "")
	pdf.CellFormat(columns[4].width, 7, "", "1", 1, "C", true, 0, "")

	if pdf.Err() {
		return nil, pdf.Error()
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// splitLines wraps text already translated to the core font code page.
// SplitLines works on bytes; SplitText would decode them as UTF-8.
func splitLines(pdf *fpdf.Fpdf, s string, w float64) []string {
	if s == "" {
		return nil
	}
	parts := pdf.SplitLines([]byte(s), w)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, string(p))
	}
	return out
}

func header(pdf *fpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, col := range columns {
		ln := 0
		if i == len(columns)-1 {
			ln = 1
		}
		pdf.CellFormat(col.width, 7, col.title, "1", ln, "C", true, 0, "")
	}
}
