// Package plot keeps the rolling time series behind the live charts and
// renders the long-timescale temperature image.
package plot

// DefaultWindow is the number of samples a live chart keeps per series.
const DefaultWindow = 20

// Window is a bounded pair of parallel timestamp/value sequences. Appending
// past the cap evicts from the front.
type Window struct {
	cap int
	X   []float64
	Y   []float64
}

// NewWindow returns an empty window holding at most size samples.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{cap: size, X: make([]float64, 0, size), Y: make([]float64, 0, size)}
}

// Append adds one sample and evicts the oldest ones beyond the cap.
func (w *Window) Append(x, y float64) {
	w.X = append(w.X, x)
	w.Y = append(w.Y, y)
	if over := len(w.X) - w.cap; over > 0 {
		w.X = append(w.X[:0], w.X[over:]...)
		w.Y = append(w.Y[:0], w.Y[over:]...)
	}
}

// Len is the number of samples held.
func (w *Window) Len() int {
	return len(w.X)
}

// Cap is the maximum number of samples held.
func (w *Window) Cap() int {
	return w.cap
}

// Clone returns an independent copy.
func (w *Window) Clone() *Window {
	return &Window{
		cap: w.cap,
		X:   append(make([]float64, 0, w.cap), w.X...),
		Y:   append(make([]float64, 0, w.cap), w.Y...),
	}
}
