// Package indicator implements the streaming technical-analysis engine
// (C6): incrementally maintained aggregates over a bar-by-bar source series,
// each able to tolerate the window length changing from one bar to the
// next. Every type here is a single-series, single-slot piece of state —
// exactly one lives per persistent-state-table slot, created lazily on first
// touch and fed one sample per bar thereafter.
package indicator

import "math"

const (
	healSMA       = 200
	healWMA       = 200
	healVariance  = 50
	historyCap    = 5000
	historyMargin = 500
)

// SMA is the simple moving average over a trailing window whose length may
// change on every call.
type SMA struct {
	history    []float64
	sum        float64
	prevLength int
	sinceHeal  int
}

// NewSMA returns a zero-state SMA ready for its first Update.
func NewSMA() *SMA { return &SMA{} }

// Update appends source and returns the mean of the trailing length values,
// or NaN while fewer than length samples have been seen.
func (s *SMA) Update(source float64, length int) float64 {
	s.history = append(s.history, source)

	if length != s.prevLength {
		s.sum = sumTrailing(s.history, length)
		s.prevLength = length
		s.sinceHeal = 0
	} else {
		s.sum += source
		if len(s.history) > length {
			s.sum -= s.history[len(s.history)-1-length]
		}
	}

	s.sinceHeal++
	if s.sinceHeal >= healSMA {
		s.sum = sumTrailing(s.history, length)
		s.sinceHeal = 0
	}

	s.trim(length)

	if len(s.history) < length || length <= 0 {
		return math.NaN()
	}
	return s.sum / float64(length)
}

// trim caps history at historyCap, keeping length+historyMargin trailing
// entries once that cap is exceeded. The other history-keeping indicators
// call trimHistory directly.
func (s *SMA) trim(length int) {
	s.history = trimHistory(s.history, length)
}

func trimHistory(history []float64, length int) []float64 {
	if len(history) <= historyCap {
		return history
	}
	keep := length + historyMargin
	if keep >= len(history) {
		return history
	}
	start := len(history) - keep
	out := make([]float64, keep)
	copy(out, history[start:])
	return out
}

// sumTrailing sums the trailing min(length, len(history)) elements of
// history. The not-yet-warm case (length > len(history)) still needs a
// meaningful running sum to seed future O(1) updates, so it sums everything
// seen so far.
func sumTrailing(history []float64, length int) float64 {
	n := length
	if n > len(history) || n < 0 {
		n = len(history)
	}
	var sum float64
	for _, v := range history[len(history)-n:] {
		sum += v
	}
	return sum
}
