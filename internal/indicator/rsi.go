// Package indicator implements the momentum and averaging helpers used by the
// signal filters.
package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// DefaultRSIPeriod is the RSI lookback used by the filters and snapshots.
const DefaultRSIPeriod = 14

// RSI computes an exponentially weighted RSI over closes with smoothing
// factor 1/period and adjusted weights. Values before the first full window
// are NaN. When the average loss is zero the RSI is 100.
//
// With adjusted weights the normalising denominators of the gain and loss
// averages are identical, so only the weighted sums are tracked.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 {
		return out
	}

	decay := 1 - 1/float64(period)
	var gain, loss float64
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = g + decay*gain
		loss = l + decay*loss

		if i < period {
			continue
		}
		if loss == 0 {
			out[i] = 100
			continue
		}
		out[i] = 100 - 100/(1+gain/loss)
	}
	return out
}

// TalibRSI computes the Wilder RSI via go-talib. Entries inside the lookback
// window are NaN. Returns nil when closes cannot fill one window.
func TalibRSI(closes []float64, period int) []float64 {
	if period < 2 || len(closes) <= period {
		return nil
	}
	out := talib.Rsi(closes, period)
	for i := 0; i < period && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// Mean returns the arithmetic mean of values, or NaN when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
