package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// ContentTypePDF is the MIME type of rendered documents.
const ContentTypePDF = "application/pdf"

// Report is the input of a single render.
type Report struct {
	Kind   Kind
	Period Period
	// Client is required for KindClient.
	Client *Client
	Tasks  []Task
	// Totals is computed from Tasks when nil.
	Totals *Totals
}

// Document is a rendered report.
type Document struct {
	Name string
	HTML []byte
	PDF  []byte
}

// View is the template-ready form of a report. The HTML template and the
// PDF rasterizer both draw from it.
type View struct {
	Title       string
	Recipient   string
	PeriodLabel string
	Rows        []ViewRow
	Total       string
	// Stamp is the document date written into PDF metadata.
	Stamp time.Time
}

type ViewRow struct {
	Date        string
	Project     string
	Description string
	Spent       string
	Initials    string
}

// Rasterizer converts a view into PDF bytes.
type Rasterizer interface {
	Rasterize(v *View) ([]byte, error)
}

// Renderer renders reports. It is safe for concurrent use.
type Renderer struct {
	tmpl   *template.Template
	raster Rasterizer
	now    func() time.Time
}

type RendererOption func(*Renderer)

// WithClock sets the clock used for file name timestamps.
func WithClock(now func() time.Time) RendererOption {
	return func(r *Renderer) { r.now = now }
}

// WithRasterizer replaces the default fpdf rasterizer.
func WithRasterizer(rz Rasterizer) RendererOption {
	return func(r *Renderer) { r.raster = rz }
}

// NewRenderer parses the embedded templates.
func NewRenderer(opts ...RendererOption) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, &RenderError{Stage: "template", Err: err}
	}
	r := &Renderer{tmpl: tmpl, raster: PDFRasterizer{}, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render builds the HTML and PDF of rep. Missing relations and malformed
// durations fail with a *DataError before anything is rendered.
func (r *Renderer) Render(rep *Report) (*Document, error) {
	v, err := BuildView(rep)
	if err != nil {
		return nil, err
	}
	var html bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&html, "report.html", v); err != nil {
		return nil, &RenderError{Stage: "html", Err: err}
	}
	pdf, err := r.raster.Rasterize(v)
	if err != nil {
		return nil, &RenderError{Stage: "pdf", Err: err}
	}
	return &Document{
		Name: FileName(rep.Kind, rep.Client, r.now()),
		HTML: html.Bytes(),
		PDF:  pdf,
	}, nil
}

type summaryView struct {
	PeriodLabel string
	Documents   []string
	Failed      []string
}

// RenderSummary renders the admin email body listing the documents of a
// per-client run and the clients whose report failed.
func (r *Renderer) RenderSummary(period Period, docs []*Document, failed []string) (string, error) {
	sv := summaryView{PeriodLabel: period.Label(), Failed: failed}
	for _, d := range docs {
		sv.Documents = append(sv.Documents, d.Name)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "summary.html", sv); err != nil {
		return "", &RenderError{Stage: "summary", Err: err}
	}
	return buf.String(), nil
}

// BuildView validates rep and maps it to a View.
func BuildView(rep *Report) (*View, error) {
	if rep.Kind == KindClient && rep.Client == nil {
		return nil, &DataError{Field: "client", Err: ErrMissingRelation}
	}
	totals := rep.Totals
	if totals == nil {
		var err error
		if totals, err = Aggregate(rep.Tasks); err != nil {
			return nil, err
		}
	}

	v := &View{
		Title:       "Weekly Task Report",
		PeriodLabel: rep.Period.Label(),
		Rows:        make([]ViewRow, 0, len(totals.Rows)),
		Total:       totals.Total,
		Stamp:       rep.Period.End,
	}
	if rep.Kind == KindClient {
		v.Recipient = rep.Client.FullName()
	} else {
		v.Title = "Weekly Task Report - All Clients"
	}

	for _, row := range totals.Rows {
		t := row.Task
		if t.Project == nil || strings.TrimSpace(t.Project.Title) == "" {
			return nil, &DataError{TaskID: t.ID, Field: "project", Err: ErrMissingRelation}
		}
		if t.Creator == nil {
			return nil, &DataError{TaskID: t.ID, Field: "creator", Err: ErrMissingRelation}
		}
		initials := t.Creator.Initials()
		if initials == "" {
			return nil, &DataError{TaskID: t.ID, Field: "creator", Err: ErrMissingRelation}
		}
		date := t.StartDate
		if date.IsZero() {
			date = t.CreatedAt
		}
		v.Rows = append(v.Rows, ViewRow{
			Date:        date.Format("02 Jan 2006"),
			Project:     t.Project.Title,
			Description: description(t),
			Spent:       row.Spent,
			Initials:    initials,
		})
	}
	return v, nil
}

func description(t Task) string {
	d := strings.TrimSpace(t.Description)
	if d == "" {
		return t.Title
	}
	return d
}

// FileName returns "<kind>_<client-slug|all>_<YYYYMMDDTHHMMSSZ>.pdf".
func FileName(kind Kind, c *Client, now time.Time) string {
	who := "all"
	if c != nil {
		who = slug(c.FullName())
		if who == "" {
			who = fmt.Sprintf("client-%d", c.ID)
		}
	}
	return fmt.Sprintf("%s_%s_%s.pdf", kind, who, now.UTC().Format("20060102T150405Z"))
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
