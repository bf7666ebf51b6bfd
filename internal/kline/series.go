package kline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnordered is returned when open times are not strictly increasing.
	ErrUnordered = errors.New("kline: open times not strictly increasing")
	// ErrSeriesTooShort is returned when a series has no closed candle to evaluate.
	ErrSeriesTooShort = errors.New("kline: series too short")
)

// Series is an immutable, oldest-first view of klines with index aligned
// derived arrays. Callers must not modify the exported slices.
type Series struct {
	Symbol   string
	Interval string

	Opens      []float64
	Highs      []float64
	Lows       []float64
	Closes     []float64
	Volumes    []float64
	Timestamps []int64 // open time, unix ms

	klines []Kline
}

// NewSeries validates ordering and computes the derived arrays once.
// An empty input yields an empty series.
func NewSeries(symbol, interval string, klines []Kline) (*Series, error) {
	n := len(klines)
	s := &Series{
		Symbol:     symbol,
		Interval:   interval,
		Opens:      make([]float64, n),
		Highs:      make([]float64, n),
		Lows:       make([]float64, n),
		Closes:     make([]float64, n),
		Volumes:    make([]float64, n),
		Timestamps: make([]int64, n),
		klines:     make([]Kline, n),
	}
	copy(s.klines, klines)

	for i, k := range klines {
		ts := k.OpenTimeMillis()
		if i > 0 && ts <= s.Timestamps[i-1] {
			return nil, fmt.Errorf("%w: index %d (%d <= %d)", ErrUnordered, i, ts, s.Timestamps[i-1])
		}
		s.Opens[i] = k.Open
		s.Highs[i] = k.High
		s.Lows[i] = k.Low
		s.Closes[i] = k.Close
		s.Volumes[i] = k.Volume
		s.Timestamps[i] = ts
	}
	return s, nil
}

// Len returns the number of klines in the series.
func (s *Series) Len() int {
	return len(s.klines)
}

// At returns a copy of the kline at index i.
func (s *Series) At(i int) Kline {
	return s.klines[i]
}

// Klines returns a copy of the underlying klines.
func (s *Series) Klines() []Kline {
	out := make([]Kline, len(s.klines))
	copy(out, s.klines)
	return out
}

// LastClosedIndex returns the index of the last fully closed kline. The final
// row of a fetched window is treated as still forming.
func (s *Series) LastClosedIndex() (int, error) {
	if len(s.klines) < 2 {
		return -1, fmt.Errorf("%w: need at least 2 klines, got %d", ErrSeriesTooShort, len(s.klines))
	}
	return len(s.klines) - 2, nil
}

// Span returns the open times of the first and last kline.
func (s *Series) Span() (from, to time.Time) {
	if len(s.klines) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.klines[0].OpenTime, s.klines[len(s.klines)-1].OpenTime
}
