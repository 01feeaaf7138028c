package indicator

import "math"

// VWMACombine divides a volume-weighted numerator SMA by a volume SMA. The
// two SMAs are separate persistent-state slots owned by the caller (see
// stdlib's vwma entry) — volume-weighted average is sma(source*volume)/
// sma(volume), and each of those two sub-calls consumes its own slot.
func VWMACombine(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// SWMA is the symmetric weighted four-tap filter over the last four samples:
// (a*1 + b*2 + c*2 + d*1)/6, oldest to newest.
type SWMA struct {
	history []float64
}

func NewSWMA() *SWMA { return &SWMA{} }

func (s *SWMA) Update(source float64) float64 {
	s.history = append(s.history, source)
	if len(s.history) > 4 {
		s.history = s.history[len(s.history)-4:]
	}
	if len(s.history) < 4 {
		return math.NaN()
	}
	a, b, c, d := s.history[0], s.history[1], s.history[2], s.history[3]
	return (a*1 + b*2 + c*2 + d*1) / 6
}

// RSI is the relative strength index, gain/loss smoothed by Wilder's RMA.
type RSI struct {
	gain      RMA
	loss      RMA
	prevClose float64
	seeded    bool
}

func NewRSI() *RSI { return &RSI{} }

func (r *RSI) Update(source float64, length int) float64 {
	if !r.seeded {
		r.prevClose = source
		r.seeded = true
		return math.NaN()
	}
	delta := source - r.prevClose
	r.prevClose = source
	gain := math.Max(delta, 0)
	loss := math.Max(-delta, 0)
	avgGain := r.gain.Update(gain, length)
	avgLoss := r.loss.Update(loss, length)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD is [fast_ema - slow_ema, signal_ema_of_that, histogram].
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

func NewMACD() *MACD { return &MACD{fast: NewEMA(), slow: NewEMA(), signal: NewEMA()} }

type MACDValue struct {
	Macd, Signal, Histogram float64
}

func (m *MACD) Update(source float64, fastLength, slowLength, signalLength int) MACDValue {
	fast := m.fast.Update(source, fastLength)
	slow := m.slow.Update(source, slowLength)
	macd := fast - slow
	signal := m.signal.Update(macd, signalLength)
	return MACDValue{Macd: macd, Signal: signal, Histogram: macd - signal}
}

// MOM is momentum: source - history[-length-1].
type MOM struct {
	history []float64
}

func NewMOM() *MOM { return &MOM{} }

func (m *MOM) Update(source float64, length int) float64 {
	m.history = append(m.history, source)
	m.history = trimHistory(m.history, length+1)
	idx := len(m.history) - 1 - length
	if idx < 0 {
		return math.NaN()
	}
	return source - m.history[idx]
}

// CCI is the commodity channel index.
type CCI struct {
	history    []float64
	mean       *SMA
	prevLength int
}

func NewCCI() *CCI { return &CCI{mean: NewSMA()} }

func (c *CCI) Update(source float64, length int) float64 {
	c.history = append(c.history, source)
	sma := c.mean.Update(source, length)
	c.history = trimHistory(c.history, length)
	if len(c.history) < length || length <= 0 {
		return math.NaN()
	}
	window := c.history[len(c.history)-length:]
	var mad float64
	for _, v := range window {
		mad += math.Abs(v - sma)
	}
	mad /= float64(length)
	if mad == 0 {
		return 0
	}
	return (source - sma) / (0.015 * mad)
}

// Stoch is the stochastic oscillator: 100*(source-lowest_low)/(highest_high-lowest_low).
type Stoch struct {
	highest *Extrema
	lowest  *Extrema
}

func NewStoch() *Stoch { return &Stoch{highest: NewHighest(), lowest: NewLowest()} }

func (s *Stoch) Update(source, high, low float64, length int, globalIdx int) float64 {
	hh := s.highest.Update(high, length, globalIdx)
	ll := s.lowest.Update(low, length, globalIdx)
	if math.IsNaN(hh) || math.IsNaN(ll) {
		return math.NaN()
	}
	if hh == ll {
		return 0
	}
	return 100 * (source - ll) / (hh - ll)
}

// CrossState tracks the previous (x, y) pair for Cross/CrossOver/CrossUnder.
type CrossState struct {
	prevX, prevY float64
	seeded       bool
}

func NewCrossState() *CrossState { return &CrossState{} }

// Cross reports true on any sign change of x-y since the previous bar,
// agreeing with CrossOver/CrossUnder at the prevDiff == 0 boundary: it fires
// whenever either of them would.
func (c *CrossState) Cross(x, y float64) bool {
	return c.update(x, y, func(prevDiff, diff float64) bool {
		return (prevDiff <= 0 && diff > 0) || (prevDiff >= 0 && diff < 0)
	})
}

// CrossOver reports true when x-y crosses from non-positive to positive.
func (c *CrossState) CrossOver(x, y float64) bool {
	return c.update(x, y, func(prevDiff, diff float64) bool {
		return prevDiff <= 0 && diff > 0
	})
}

// CrossUnder reports true when x-y crosses from non-negative to negative.
func (c *CrossState) CrossUnder(x, y float64) bool {
	return c.update(x, y, func(prevDiff, diff float64) bool {
		return prevDiff >= 0 && diff < 0
	})
}

func (c *CrossState) update(x, y float64, rule func(prevDiff, diff float64) bool) bool {
	diff := x - y
	if !c.seeded {
		c.prevX, c.prevY = x, y
		c.seeded = true
		return false
	}
	prevDiff := c.prevX - c.prevY
	result := rule(prevDiff, diff)
	c.prevX, c.prevY = x, y
	return result
}
