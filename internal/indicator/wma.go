package indicator

import "math"

// WMA is the weighted moving average with linear weights 1..length (the
// most recent sample weighted heaviest).
type WMA struct {
	history    []float64
	sum        float64 // plain trailing sum, used to compute the O(1) recurrence
	numerator  float64 // weighted trailing sum
	prevLength int
	sinceHeal  int
}

func NewWMA() *WMA { return &WMA{} }

// Update appends source and returns the weighted mean over the trailing
// length window, or NaN until warm.
func (w *WMA) Update(source float64, length int) float64 {
	w.history = append(w.history, source)

	full := w.prevLength > 0 && len(w.history)-1 >= w.prevLength
	if length == w.prevLength && full {
		exiting := w.history[len(w.history)-1-length]
		w.numerator = w.numerator + float64(length)*source - w.sum
		w.sum = w.sum + source - exiting
	} else {
		w.sum, w.numerator = recomputeWMA(w.history, length)
		w.prevLength = length
	}

	w.sinceHeal++
	if w.sinceHeal >= healWMA {
		w.sum, w.numerator = recomputeWMA(w.history, length)
		w.sinceHeal = 0
	}

	w.history = trimHistory(w.history, length)

	if len(w.history) < length || length <= 0 {
		return math.NaN()
	}
	normalizer := float64(length*(length+1)) / 2
	return w.numerator / normalizer
}

// recomputeWMA recomputes both the plain trailing sum and the weighted
// numerator from scratch over the trailing length window of history.
func recomputeWMA(history []float64, length int) (sum, numerator float64) {
	n := length
	if n > len(history) || n < 0 {
		n = len(history)
	}
	window := history[len(history)-n:]
	for i, v := range window {
		weight := float64(i + 1) // oldest-in-window gets weight 1
		sum += v
		numerator += weight * v
	}
	return sum, numerator
}
