package invoices

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	separator  = "-----------------------"
	lineHeight = 1.4
	pageMargin = 72.0
)

// TextLine is one line of the invoice layout.
type TextLine struct {
	Text      string
	Size      float64
	Underline bool
}

type renderRecorder interface {
	IncInvoice(result string)
}

// Generator renders order invoices and keeps a copy on disk.
type Generator struct {
	dir     string
	metrics renderRecorder
}

// Option customizes the generator.
type Option func(*Generator)

// WithMetrics counts renders by result.
func WithMetrics(rec renderRecorder) Option {
	return func(g *Generator) {
		g.metrics = rec
	}
}

// NewGenerator prepares dir and returns a generator writing into it.
func NewGenerator(dir string, opts ...Option) (*Generator, error) {
	if dir == "" {
		return nil, fmt.Errorf("invoice dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create invoice dir: %w", err)
	}
	g := &Generator{dir: dir}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// FileName is the durable name of an order's invoice.
func FileName(order models.Order) string {
	return "invoice-" + order.ID.String() + ".pdf"
}

// Path is where the invoice for order is stored.
func (g *Generator) Path(order models.Order) string {
	return filepath.Join(g.dir, FileName(order))
}

// Lines builds the invoice text in render order.
func Lines(order models.Order) []TextLine {
	lines := []TextLine{
		{Text: "Invoice", Size: 26, Underline: true},
		{Text: "For User: " + order.UserEmail, Size: 12},
		{Text: "Order ID: " + order.ID.String(), Size: 12},
		{Text: "Order date: " + order.CreatedAt.UTC().Format(time.DateOnly), Size: 12},
		{Text: separator, Size: 12},
		{Text: "Order Summary:", Size: 16},
	}
	for _, line := range order.Products {
		lines = append(lines, TextLine{Text: summaryLine(line), Size: 14})
	}
	return append(lines,
		TextLine{Text: separator, Size: 14},
		TextLine{Text: "Total Price: $" + order.Products.Total().String(), Size: 17},
	)
}

func summaryLine(line types.OrderLine) string {
	return fmt.Sprintf("   · %s - %d x $%s", line.Product.Title, line.Quantity, line.Product.Price.String())
}

// Render writes the invoice PDF for order to w. Output is byte-stable for a
// given order.
func Render(order models.Order, w io.Writer) error {
	pdf := fpdf.New("P", "pt", "Letter", "")
	stamp := order.CreatedAt.UTC()
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(false)
	pdf.SetTitle("Invoice "+order.ID.String(), true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range Lines(order) {
		style := ""
		if line.Underline {
			style = "U"
		}
		pdf.SetFont("Helvetica", style, line.Size)
		pdf.CellFormat(0, line.Size*lineHeight, tr(line.Text), "", 1, "L", false, 0, "")
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("layout invoice: %w", err)
	}
	return pdf.Output(w)
}

// Generate renders the invoice once into both the durable file and live.
// The file only appears under its final name when the render succeeded.
func (g *Generator) Generate(ctx context.Context, order models.Order, live io.Writer) (err error) {
	defer func() {
		g.record(err)
	}()
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(g.dir, "invoice-*.pdf.tmp")
	if err != nil {
		return fmt.Errorf("create invoice file: %w", err)
	}

	sink := io.Writer(tmp)
	if live != nil {
		sink = io.MultiWriter(tmp, live)
	}
	err = Render(order, sink)
	err = multierr.Append(err, tmp.Close())
	if err != nil {
		return multierr.Append(err, os.Remove(tmp.Name()))
	}

	if err := os.Rename(tmp.Name(), g.Path(order)); err != nil {
		return multierr.Append(fmt.Errorf("store invoice: %w", err), os.Remove(tmp.Name()))
	}
	return nil
}

func (g *Generator) record(err error) {
	if g.metrics == nil {
		return
	}
	if err != nil {
		g.metrics.IncInvoice("error")
		return
	}
	g.metrics.IncInvoice("ok")
}
