// Package kline provides candlestick data structures, the immutable series used
// by the detectors and a rolling per-symbol store fed by the kline stream.
package kline

import (
	"math"
	"time"
)

// Kline represents a single OHLCV candlestick.
type Kline struct {
	Symbol    string    `json:"symbol,omitempty"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	IsClosed  bool      `json:"is_closed"`
}

// Body returns the absolute size of the kline body (|Close - Open|).
func (k *Kline) Body() float64 {
	return math.Abs(k.Close - k.Open)
}

// UpperShadow returns the length of the upper shadow.
func (k *Kline) UpperShadow() float64 {
	return k.High - math.Max(k.Open, k.Close)
}

// LowerShadow returns the length of the lower shadow.
func (k *Kline) LowerShadow() float64 {
	return math.Min(k.Open, k.Close) - k.Low
}

// IsBullish returns true if the kline is bullish (Close > Open).
func (k *Kline) IsBullish() bool {
	return k.Close > k.Open
}

// IsBearish returns true if the kline is bearish (Close < Open).
func (k *Kline) IsBearish() bool {
	return k.Close < k.Open
}

// Range returns the total range of the kline (High - Low).
func (k *Kline) Range() float64 {
	return k.High - k.Low
}

// OpenTimeMillis returns the open time as a unix millisecond timestamp.
func (k *Kline) OpenTimeMillis() int64 {
	return k.OpenTime.UnixMilli()
}
