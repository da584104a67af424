package plot

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryo-dashboard/internal/protocol"
)

func TestWindowKeepsMostRecentSamples(t *testing.T) {
	w := NewWindow(DefaultWindow)
	for i := 0; i < 47; i++ {
		w.Append(float64(i), float64(i*10))
	}

	require.Equal(t, 20, w.Len())
	for i := 0; i < 20; i++ {
		want := float64(27 + i)
		assert.Equal(t, want, w.X[i])
		assert.Equal(t, want*10, w.Y[i])
	}
}

func TestWindowBelowCap(t *testing.T) {
	w := NewWindow(0)
	w.Append(1, 2)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, DefaultWindow, w.Cap())
}

func snap(ts float64, vals map[string]float64) protocol.Snapshot {
	return protocol.Snapshot{Timestamp: ts, Values: vals}
}

func TestChartAppendBeforeInitIsIgnored(t *testing.T) {
	c := NewChart(Layout{Title: "Temperature over time"}, 20)
	assert.False(t, c.Append(snap(1, map[string]float64{"t_1": 1})))
	assert.False(t, c.Initialized())
	assert.Equal(t, 0, c.Revision)
}

func TestChartInitAndAppend(t *testing.T) {
	c := NewChart(Layout{Title: "Pressure over time"}, 20)
	labels := []string{"p_1", "p_2"}
	trace := protocol.Trace{
		snap(1, map[string]float64{"p_1": 1, "p_2": 10}),
		snap(2, map[string]float64{"p_1": 2, "p_2": 20}),
	}
	c.Init(labels, trace)

	require.True(t, c.Initialized())
	assert.Equal(t, 0, c.Revision)
	assert.Equal(t, []float64{1, 2}, c.Layout.XRange)

	for i := 3; i <= 30; i++ {
		require.True(t, c.Append(snap(float64(i), map[string]float64{"p_1": float64(i)})))
	}
	assert.Equal(t, 28, c.Revision)
	for _, l := range labels {
		w := c.Series(l)
		require.Equal(t, 20, w.Len(), l)
		assert.Equal(t, float64(11), w.X[0])
		assert.Equal(t, float64(30), w.X[19])
	}
	// p_2 was missing in every appended snapshot and carries its last value
	assert.Equal(t, float64(20), c.Series("p_2").Y[19])
	assert.Equal(t, []float64{11, 30}, c.Layout.XRange)

	u := c.Update("pressure-plot")
	assert.Equal(t, 28, u.Layout.DataRevision)
	assert.Len(t, u.Traces, 2)
	assert.Equal(t, "p_1", u.Traces[0].Name)
}

func TestChartReplace(t *testing.T) {
	c := NewChart(Layout{Title: "Magnetic field strength over time"}, 20)
	xs := make([]float64, 100)
	ys := make([]float64, 100)
	for i := range xs {
		xs[i] = float64(i)
		ys[i] = 8
	}
	c.Replace("B", xs, ys)
	assert.Equal(t, 0, c.Revision, "first replace is a full plot")
	assert.Equal(t, 100, c.Series("B").Len(), "magnet trace is not windowed")

	c.Replace("B", xs[:10], ys[:10])
	assert.Equal(t, 1, c.Revision)
	assert.Equal(t, 10, c.Series("B").Len())
}

func TestChartCloneIsIndependent(t *testing.T) {
	c := NewChart(Layout{}, 5)
	c.Init([]string{"a"}, protocol.Trace{snap(1, map[string]float64{"a": 1})})
	cp := c.Clone()
	c.Append(snap(2, map[string]float64{"a": 2}))
	assert.Equal(t, 1, cp.Series("a").Len())
	assert.Equal(t, 0, cp.Revision)
}

func TestHistoryBoundsAndOrder(t *testing.T) {
	h := NewHistory(3)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := float64(base.Add(time.Duration(i) * time.Minute).Unix())
		h.Record(snap(ts, map[string]float64{"t_still": float64(i)}))
	}
	// older than the newest point: dropped
	h.Record(snap(float64(base.Unix()), map[string]float64{"t_still": 99}))

	pts := h.Series("t_still", time.Time{})
	require.Len(t, pts, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{pts[0].Value, pts[1].Value, pts[2].Value})

	recent := h.Series("t_still", base.Add(4*time.Minute))
	assert.Len(t, recent, 1)
	assert.Equal(t, []string{"t_still"}, h.Labels())
}

func TestRenderPNG(t *testing.T) {
	h := NewHistory(10)
	var buf bytes.Buffer
	err := RenderPNG(&buf, h, ImageOptions{Title: "Temperature"})
	assert.True(t, errors.Is(err, ErrNoData))

	h.Record(snap(1700000000, map[string]float64{"t_1": 4.2, "t_2": 3.1}))
	h.Record(snap(1700000060, map[string]float64{"t_1": 4.1, "t_2": 3.0}))
	require.NoError(t, RenderPNG(&buf, h, ImageOptions{Title: "Temperature", YTitle: "K"}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}
