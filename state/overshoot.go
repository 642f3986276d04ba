package state

// HighLow is one completed candle's extremes
type HighLow struct {
	High float64
	Low  float64
}

// OvershootWindow is a fixed-length ring of recent (high, low) tuples used
// to detect price extension beyond an adaptive band. It is mutated once per
// completed candle and reset on instrument change.
type OvershootWindow struct {
	size   int
	ring   []HighLow
	next   int
	filled bool
}

// NewOvershootWindow creates a ring holding the last 'size' candles
func NewOvershootWindow(size int) *OvershootWindow {
	if size < 1 {
		size = 1
	}
	return &OvershootWindow{
		size: size,
		ring: make([]HighLow, size),
	}
}

// Push records a completed candle's extremes
func (w *OvershootWindow) Push(high, low float64) {
	w.ring[w.next] = HighLow{High: high, Low: low}
	w.next++
	if w.next == w.size {
		w.next = 0
		w.filled = true
	}
}

// Len returns the number of candles currently held
func (w *OvershootWindow) Len() int {
	if w.filled {
		return w.size
	}
	return w.next
}

// Full reports whether the ring holds its full window
func (w *OvershootWindow) Full() bool {
	return w.filled
}

// Extremes returns the highest high and lowest low in the window
func (w *OvershootWindow) Extremes() (hh, ll float64, ok bool) {
	n := w.Len()
	if n == 0 {
		return 0, 0, false
	}
	hh, ll = w.ring[0].High, w.ring[0].Low
	for i := 1; i < n; i++ {
		if w.ring[i].High > hh {
			hh = w.ring[i].High
		}
		if w.ring[i].Low < ll {
			ll = w.ring[i].Low
		}
	}
	return hh, ll, true
}

// Overshot reports whether price has extended beyond the adaptive band
// relative to the EMA anchor: above ema + band for longs, below ema - band
// for shorts. The band is atr * mult widened to at least the window range.
func (w *OvershootWindow) Overshot(price, ema, atr, mult float64, up bool) bool {
	hh, ll, ok := w.Extremes()
	if !ok || !w.filled {
		return false
	}

	band := atr * mult
	if halfRange := (hh - ll) / 2; halfRange > band {
		band = halfRange
	}

	if up {
		return price > ema+band
	}
	return price < ema-band
}

// Reset clears the window
func (w *OvershootWindow) Reset() {
	w.next = 0
	w.filled = false
	for i := range w.ring {
		w.ring[i] = HighLow{}
	}
}
