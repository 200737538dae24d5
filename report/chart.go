package report

import (
	"errors"
	"image/color"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoData is returned when there is nothing to chart.
var ErrNoData = errors.New("no numeric values to chart")

var skyBlue = color.RGBA{R: 135, G: 206, B: 235, A: 255}

// Goal-1 chart geometry: width grows with the number of courts.
const (
	chartMinWidth    = 16 * vg.Inch
	chartWidthPerBar = 0.6 * vg.Inch
	chartHeight      = 10 * vg.Inch
)

// ChartSize returns the canvas size of a bar chart with n bars.
func ChartSize(n int) (vg.Length, vg.Length) {
	w := vg.Length(n) * chartWidthPerBar
	if w < chartMinWidth {
		w = chartMinWidth
	}
	return w, chartHeight
}

// BarChart builds a bar chart of entries in the given order, one nominal X
// tick per court and the value printed above each bar.
func BarChart(title, yLabel string, entries []Entry) (*plot.Plot, error) {
	if len(entries) == 0 {
		return nil, ErrNoData
	}
	vals := make(plotter.Values, len(entries))
	names := make([]string, len(entries))
	xys := make(plotter.XYs, len(entries))
	labels := make([]string, len(entries))
	maxV := 0.0
	for i, e := range entries {
		vals[i] = e.Value
		names[i] = e.Court
		xys[i] = plotter.XY{X: float64(i), Y: e.Value}
		labels[i] = strconv.FormatFloat(e.Value, 'f', 2, 64)
		maxV = math.Max(maxV, e.Value)
	}

	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Y.Label.Text = yLabel
	p.BackgroundColor = color.White

	bars, err := plotter.NewBarChart(vals, vg.Points(18))
	if err != nil {
		return nil, err
	}
	bars.Color = skyBlue
	bars.LineStyle.Width = 0

	grid := plotter.NewGrid()
	grid.Vertical.Color = nil

	valueLabels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return nil, err
	}
	for i := range valueLabels.TextStyle {
		valueLabels.TextStyle[i].XAlign = draw.XCenter
		valueLabels.TextStyle[i].Font.Size = vg.Points(8)
	}
	valueLabels.Offset = vg.Point{Y: vg.Points(3)}

	p.Add(grid, bars, valueLabels)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Min = 0
	p.Y.Max = maxV * 1.1
	if p.Y.Max == 0 {
		p.Y.Max = 1
	}
	return p, nil
}

// SaveGoalChart saves the ranking of goal key as a bar chart at path. The
// image format follows the file extension.
func SaveGoalChart(path, key string, entries []Entry) error {
	p, err := BarChart(chartTitle(key), key+" (%)", entries)
	if err != nil {
		return err
	}
	w, h := ChartSize(len(entries))
	return p.Save(w, h, path)
}

func chartTitle(key string) string {
	return "Desempenho por tribunal - " + key
}
