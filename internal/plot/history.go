package plot

import (
	"sort"
	"sync"
	"time"

	"cryo-dashboard/internal/protocol"
)

// Point is a chart-ready value at a specific timestamp.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// History keeps a bounded, process-wide record of snapshots per label. Every
// session feeds it; the long-timescale image reads it.
type History struct {
	maxPoints int

	mu     sync.RWMutex
	series map[string][]Point
}

func NewHistory(maxPoints int) *History {
	if maxPoints <= 0 {
		maxPoints = 4320
	}
	return &History{
		maxPoints: maxPoints,
		series:    make(map[string][]Point),
	}
}

// Record stores every reading of the snapshot. Snapshots without a timestamp
// are stamped with the current time.
func (h *History) Record(s protocol.Snapshot) {
	if h == nil || len(s.Values) == 0 {
		return
	}
	ts := s.Time()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for label, v := range s.Values {
		pts := h.series[label]
		if n := len(pts); n > 0 && ts.Before(pts[n-1].Timestamp) {
			// late snapshot from a slow session; history stays time-ordered
			continue
		}
		pts = append(pts, Point{Timestamp: ts, Value: v})
		if len(pts) > h.maxPoints {
			pts = pts[len(pts)-h.maxPoints:]
		}
		h.series[label] = pts
	}
}

// Series returns the history for one label since cutoff.
func (h *History) Series(label string, since time.Time) []Point {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	points := append([]Point(nil), h.series[label]...)
	h.mu.RUnlock()

	if since.IsZero() {
		return points
	}

	out := make([]Point, 0, len(points))
	for _, p := range points {
		if !p.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// Labels returns the sorted labels seen so far.
func (h *History) Labels() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.series))
	for l := range h.series {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
