// Package chart renders the chart window as a PNG for clients that cannot
// run the page's script.
package chart

import (
	"bytes"
	"fmt"
	"io"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/dtorres47/practice-tracker/internal/stats"
)

const (
	width  = 840
	height = 360
)

var barColor = drawing.ColorFromHex("c2410c")

// label shortens yyyy-mm-dd to dd/mm.
func label(date string) string {
	if len(date) != 10 {
		return date
	}
	return date[8:10] + "/" + date[5:7]
}

// WritePNG draws one bar per day of the window, sized by the day's total.
func WritePNG(w io.Writer, title string, window []stats.Day) error {
	if len(window) == 0 {
		return fmt.Errorf("chart: empty window")
	}

	maxTotal := 0
	bars := make([]gochart.Value, 0, len(window))
	for _, d := range window {
		if d.Total > maxTotal {
			maxTotal = d.Total
		}
		bars = append(bars, gochart.Value{
			Label: label(d.Date),
			Value: float64(d.Total),
			Style: gochart.Style{FillColor: barColor, StrokeColor: barColor},
		})
	}
	// go-chart refuses a zero-height range
	top := float64(maxTotal)
	if top == 0 {
		top = 1
	}

	slot := (width - 80) / len(window)
	if slot < 3 {
		slot = 3
	}
	bc := gochart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   slot * 2 / 3,
		BarSpacing: slot / 3,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: gochart.YAxis{
			Range: &gochart.ContinuousRange{Min: 0, Max: top},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := bc.Render(gochart.PNG, &buf); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
