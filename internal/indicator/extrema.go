package indicator

import "math"

// sample is one (value, global bar index) pair kept in a monotonic deque.
type sample struct {
	value float64
	index int
}

// Extrema implements the rolling highest/lowest family via a monotonic
// deque keyed by global bar index. high selects highest/highestbars
// semantics (non-increasing deque, pop-while-back-<=-source); !high selects
// lowest/lowestbars (non-decreasing deque, reversed comparison).
type Extrema struct {
	high       bool
	history    []float64
	deque      []sample
	prevLength int
}

// NewHighest returns an Extrema tracking the rolling maximum.
func NewHighest() *Extrema { return &Extrema{high: true} }

// NewLowest returns an Extrema tracking the rolling minimum.
func NewLowest() *Extrema { return &Extrema{high: false} }

// Update appends source at the current global bar index and returns the
// window extreme.
func (e *Extrema) Update(source float64, length int, globalIdx int) float64 {
	e.push(source, length, globalIdx)
	if len(e.history) < length || length <= 0 {
		return math.NaN()
	}
	return e.deque[0].value
}

// UpdateBars is Update's highestbars/lowestbars counterpart: it returns the
// non-positive offset of the extreme's bar from the current bar (0 when the
// current bar is itself the extreme).
func (e *Extrema) UpdateBars(source float64, length int, globalIdx int) float64 {
	e.push(source, length, globalIdx)
	if len(e.history) < length || length <= 0 {
		return math.NaN()
	}
	return float64(e.deque[0].index - globalIdx)
}

func (e *Extrema) push(source float64, length int, globalIdx int) {
	e.history = append(e.history, source)

	if length != e.prevLength {
		e.rebuild(length, globalIdx)
		e.prevLength = length
		e.history = trimHistory(e.history, length)
		return
	}

	e.evictStale(globalIdx, length)
	e.insert(source, globalIdx)
	e.history = trimHistory(e.history, length)
}

// rebuild reconstructs the deque from scratch over the trailing length
// window of history, reintroducing values a pure incremental update would
// have already discarded. This is the only safe response to a length
// change: a shorter window may need values the deque dropped as dominated
// under the previous, larger window.
func (e *Extrema) rebuild(length int, globalIdx int) {
	e.deque = e.deque[:0]
	n := length
	if n > len(e.history) || n < 0 {
		n = len(e.history)
	}
	start := len(e.history) - n
	for i := start; i < len(e.history); i++ {
		// bar index of history[i]: the most recent entry is globalIdx,
		// earlier entries count backward.
		idx := globalIdx - (len(e.history) - 1 - i)
		e.insert(e.history[i], idx)
	}
}

func (e *Extrema) evictStale(globalIdx, length int) {
	for len(e.deque) > 0 && e.deque[0].index <= globalIdx-length {
		e.deque = e.deque[1:]
	}
}

func (e *Extrema) insert(value float64, idx int) {
	if e.high {
		for len(e.deque) > 0 && e.deque[len(e.deque)-1].value <= value {
			e.deque = e.deque[:len(e.deque)-1]
		}
	} else {
		for len(e.deque) > 0 && e.deque[len(e.deque)-1].value >= value {
			e.deque = e.deque[:len(e.deque)-1]
		}
	}
	e.deque = append(e.deque, sample{value: value, index: idx})
}
