// Package render turns view data into HTML pages and PDF documents.
package render

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"io"
	"strings"
	texttemplate "text/template"

	"github.com/go-faster/errors"
	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

//go:embed templates
var templateFS embed.FS

// Page template names.
const (
	CartDetail       = "cart_detail.html"
	OrderCreate      = "order_create.html"
	OrderCreated     = "order_created.html"
	AdminOrderDetail = "admin_order_detail.html"

	// OrderPDF is rendered to the limited markup understood by PDF.
	OrderPDF = "order.tmpl"
)

// Renderer renders the embedded templates.
type Renderer struct {
	pages  *htmltemplate.Template
	markup *texttemplate.Template
}

// New parses all embedded templates.
func New() (*Renderer, error) {
	funcs := map[string]any{
		"money":       money,
		"plain":       plain,
		"productName": productName,
	}

	pages, err := htmltemplate.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Wrap(err, "parse page templates")
	}
	markup, err := texttemplate.New("markup").Funcs(funcs).ParseFS(templateFS, "templates/pdf/*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "parse pdf templates")
	}
	return &Renderer{pages: pages, markup: markup}, nil
}

// HTML renders the named page template to w.
func (r *Renderer) HTML(w io.Writer, name string, data any) error {
	// A failing template must not leave a half written response.
	var buf bytes.Buffer
	if err := r.pages.ExecuteTemplate(&buf, name, data); err != nil {
		return errors.Wrapf(err, "render %s", name)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Markup renders the named PDF markup template.
func (r *Renderer) Markup(name string, data any) (string, error) {
	var sb strings.Builder
	if err := r.markup.ExecuteTemplate(&sb, name, data); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return sb.String(), nil
}

// PDF converts basic HTML (b, i, u, a, br and center tags) into a single
// A4 document written to w.
func (r *Renderer) PDF(w io.Writer, html string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Order", true)
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	basic := pdf.HTMLBasicNew()
	basic.Write(6, tr(html))

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "write pdf")
	}
	return nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// plain strips characters that would be taken for markup.
func plain(s string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}

func productName(names map[string]string, id string) string {
	if name, ok := names[id]; ok {
		return name
	}
	return "Product " + id
}
