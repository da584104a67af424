package plot

import (
	"errors"
	"fmt"
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no history to plot")

var seriesColors = []drawing.Color{
	chart.ColorBlue,
	chart.ColorGreen,
	chart.ColorRed,
	chart.ColorOrange,
	chart.ColorCyan,
	chart.ColorYellow,
	chart.ColorBlack,
	chart.ColorAlternateGray,
	chart.ColorAlternateBlue,
}

// ImageOptions controls the long-timescale render.
type ImageOptions struct {
	Title  string
	YTitle string
	Labels []string
	Since  time.Time
	Width  int
	Height int
}

// RenderPNG draws the recorded history of the requested labels as a PNG.
func RenderPNG(w io.Writer, h *History, opts ImageOptions) error {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = h.Labels()
	}

	series := make([]chart.Series, 0, len(labels))
	for i, label := range labels {
		pts := h.Series(label, opts.Since)
		if len(pts) == 0 {
			continue
		}
		xs := make([]time.Time, len(pts))
		ys := make([]float64, len(pts))
		for j, p := range pts {
			xs[j] = p.Timestamp
			ys[j] = p.Value
		}
		if len(xs) == 1 {
			// go-chart needs two points to establish a range
			xs = append(xs, xs[0].Add(time.Second))
			ys = append(ys, ys[0])
		}
		series = append(series, chart.TimeSeries{
			Name:    label,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: seriesColors[i%len(seriesColors)],
				StrokeWidth: 1.5,
			},
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	graph := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Time",
			ValueFormatter: chart.TimeHourValueFormatter,
		},
		YAxis:  chart.YAxis{Name: opts.YTitle},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render history: %w", err)
	}
	return nil
}
