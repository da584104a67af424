package plot

import "cryo-dashboard/internal/protocol"

// Layout carries the chart titles and the visible x range.
type Layout struct {
	Title  string
	XTitle string
	YTitle string
	XRange []float64
}

// Chart is a set of sub-series sharing one x axis, redrawn in place whenever
// Revision changes.
type Chart struct {
	Layout   Layout
	Revision int

	window int
	labels []string
	series map[string]*Window
}

// NewChart returns an uninitialised chart whose series will hold window samples.
func NewChart(layout Layout, window int) *Chart {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Chart{Layout: layout, window: window}
}

// Initialized reports whether the chart has received its first trace.
func (c *Chart) Initialized() bool {
	return c.series != nil
}

// Labels returns the sub-series names in display order.
func (c *Chart) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Series returns the window for a label, or nil.
func (c *Chart) Series(label string) *Window {
	return c.series[label]
}

// Init builds one empty window per label and loads the initial trace. The
// revision stays at zero so the first draw is a full plot.
func (c *Chart) Init(labels []string, trace protocol.Trace) {
	c.labels = append([]string(nil), labels...)
	c.series = make(map[string]*Window, len(labels))
	for _, l := range labels {
		c.series[l] = NewWindow(c.window)
	}
	for _, s := range trace {
		c.push(s)
	}
	c.Revision = 0
	c.updateRange()
}

// Append pushes one snapshot to every sub-series and bumps the revision.
// It is a no-op on an uninitialised chart.
func (c *Chart) Append(s protocol.Snapshot) bool {
	if !c.Initialized() {
		return false
	}
	c.push(s)
	c.Revision++
	c.updateRange()
	return true
}

// Replace swaps the data of a single-series chart wholesale.
func (c *Chart) Replace(label string, x, y []float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	size := c.window
	if n > size {
		size = n
	}
	w := NewWindow(size)
	for i := 0; i < n; i++ {
		w.Append(x[i], y[i])
	}
	if c.Initialized() {
		c.Revision++
	}
	c.labels = []string{label}
	c.series = map[string]*Window{label: w}
	c.updateRange()
}

// Clone returns an independent copy for rendering.
func (c *Chart) Clone() *Chart {
	out := &Chart{
		Layout:   c.Layout,
		Revision: c.Revision,
		window:   c.window,
		labels:   append([]string(nil), c.labels...),
	}
	out.Layout.XRange = append([]float64(nil), c.Layout.XRange...)
	if c.series != nil {
		out.series = make(map[string]*Window, len(c.series))
		for k, w := range c.series {
			out.series[k] = w.Clone()
		}
	}
	return out
}

// A missing reading repeats the previous value so all series stay aligned.
func (c *Chart) push(s protocol.Snapshot) {
	for _, l := range c.labels {
		w := c.series[l]
		v, ok := s.Values[l]
		if !ok && w.Len() > 0 {
			v = w.Y[w.Len()-1]
		}
		w.Append(s.Timestamp, v)
	}
}

func (c *Chart) updateRange() {
	c.Layout.XRange = nil
	if len(c.labels) == 0 {
		return
	}
	w := c.series[c.labels[0]]
	if w == nil || w.Len() == 0 {
		return
	}
	c.Layout.XRange = []float64{w.X[0], w.X[w.Len()-1]}
}

// Trace is one line of an Update.
type Trace struct {
	Name string    `json:"name"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y"`
	Mode string    `json:"mode"`
}

// Axis is the axis part of an Update layout.
type Axis struct {
	Title    string    `json:"title"`
	Range    []float64 `json:"range,omitempty"`
	ShowGrid bool      `json:"showgrid"`
	ZeroLine bool      `json:"zeroline"`
}

// UpdateLayout is the chart layout as sent to the browser.
type UpdateLayout struct {
	Title        string `json:"title"`
	DataRevision int    `json:"datarevision"`
	XAxis        Axis   `json:"xaxis"`
	YAxis        Axis   `json:"yaxis"`
}

// Update is an incremental redraw instruction for one chart target.
type Update struct {
	Target   string       `json:"target"`
	Revision int          `json:"revision"`
	Traces   []Trace      `json:"traces"`
	Layout   UpdateLayout `json:"layout"`
}

// Update builds the redraw instruction for target.
func (c *Chart) Update(target string) Update {
	traces := make([]Trace, 0, len(c.labels))
	for _, l := range c.labels {
		w := c.series[l]
		traces = append(traces, Trace{
			Name: l,
			X:    append([]float64(nil), w.X...),
			Y:    append([]float64(nil), w.Y...),
			Mode: "lines+markers",
		})
	}
	return Update{
		Target:   target,
		Revision: c.Revision,
		Traces:   traces,
		Layout: UpdateLayout{
			Title:        c.Layout.Title,
			DataRevision: c.Revision,
			XAxis:        Axis{Title: c.Layout.XTitle, Range: append([]float64(nil), c.Layout.XRange...), ZeroLine: true},
			YAxis:        Axis{Title: c.Layout.YTitle, ZeroLine: true},
		},
	}
}
