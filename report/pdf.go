package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"

	"github.com/Laraewellen/metas-judiciarias-etl/goals"
)

// Landscape letter pages.
const (
	pageWidth  = 11 * vg.Inch
	pageHeight = 8.5 * vg.Inch
	pdfMargin  = 0.6 * vg.Inch
)

// WritePDF renders one bar-chart page per goal key that has at least one
// numeric value, in the order given. It returns the number of pages written.
func WritePDF(w io.Writer, title string, rows []goals.Row, keys []string) (int, error) {
	// The Liberation fonts used by vgpdf lack the dash glyphs.
	title = strings.NewReplacer("\u2014", "-", "\u2013", "-").Replace(title)

	c := vgpdf.New(pageWidth, pageHeight)
	pages := 0
	for _, key := range keys {
		entries := Ranking(rows, key)
		if len(entries) == 0 {
			continue
		}
		p, err := BarChart(title+" - "+key, key, entries)
		if err != nil {
			return pages, fmt.Errorf("goal %s: %w", key, err)
		}
		if pages > 0 {
			c.NextPage()
		}
		pages++

		dc := draw.New(c)
		area := draw.Crop(dc, pdfMargin, -pdfMargin, pdfMargin, -pdfMargin)
		p.Draw(draw.Crop(area, 0, 0, 0, -0.3*vg.Inch))
		drawFooter(area, len(entries), naCount(rows, key))
	}
	if pages == 0 {
		return 0, ErrNoData
	}
	if _, err := c.WriteTo(w); err != nil {
		return pages, err
	}
	return pages, nil
}

// WritePDFFile is WritePDF to a new file at path.
func WritePDFFile(path, title string, rows []goals.Row, keys []string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := WritePDF(f, title, rows, keys)
	if err != nil {
		f.Close()
		os.Remove(path)
		return n, err
	}
	return n, f.Close()
}

// PageCount opens a PDF and returns its number of pages.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	ctx, err := pdfcpu.Read(f, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return ctx.PageCount, nil
}

func naCount(rows []goals.Row, key string) int {
	n := 0
	for _, r := range rows {
		if v, ok := r.Get(key); ok && v.IsNA() {
			n++
		}
	}
	return n
}

// drawFooter writes the value and NA counts of a page in small grey type
// along the top edge of area.
func drawFooter(area draw.Canvas, valued, na int) {
	const size = 9
	sty := draw.TextStyle{
		Color:   color.Gray{Y: 100},
		Font:    plot.DefaultFont,
		Handler: plot.DefaultTextHandler,
	}
	sty.Font.Size = vg.Points(size)
	at := vg.Point{X: area.Min.X, Y: area.Max.Y - vg.Points(size)}
	area.FillText(sty, at, fmt.Sprintf("%d tribunais com valor, %d sem valor (NA)", valued, na))
}
