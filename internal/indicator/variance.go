package indicator

import "math"

// BollingerBands maintains a running mean and variance over a trailing
// window of dynamic length and derives a mean/upper/lower band triple.
type BollingerBands struct {
	history    []float64
	sum        float64
	sumSq      float64
	prevLength int
	sinceHeal  int
}

func NewBollingerBands() *BollingerBands { return &BollingerBands{} }

// Bands is the [mean, upper, lower] triple for one bar.
type Bands struct {
	Mean, Upper, Lower float64
}

// Update appends source and returns the band triple for the trailing
// length-window, using mult standard deviations for the envelope. Returns
// all-NaN bands while the window is not yet warm.
func (b *BollingerBands) Update(source float64, length int, mult float64) Bands {
	b.history = append(b.history, source)

	if length != b.prevLength {
		b.sum, b.sumSq = sumAndSumSqTrailing(b.history, length)
		b.prevLength = length
		b.sinceHeal = 0
	} else {
		b.sum += source
		b.sumSq += source * source
		if len(b.history) > length {
			exiting := b.history[len(b.history)-1-length]
			b.sum -= exiting
			b.sumSq -= exiting * exiting
		}
	}

	b.sinceHeal++
	if b.sinceHeal >= healVariance {
		b.sum, b.sumSq = sumAndSumSqTrailing(b.history, length)
		b.sinceHeal = 0
	}

	b.history = trimHistory(b.history, length)

	if len(b.history) < length || length <= 0 {
		return Bands{Mean: math.NaN(), Upper: math.NaN(), Lower: math.NaN()}
	}
	mean := b.sum / float64(length)
	variance := math.Max(0, b.sumSq/float64(length)-mean*mean)
	stddev := math.Sqrt(variance)
	return Bands{Mean: mean, Upper: mean + mult*stddev, Lower: mean - mult*stddev}
}

func sumAndSumSqTrailing(history []float64, length int) (sum, sumSq float64) {
	n := length
	if n > len(history) || n < 0 {
		n = len(history)
	}
	for _, v := range history[len(history)-n:] {
		sum += v
		sumSq += v * v
	}
	return sum, sumSq
}
