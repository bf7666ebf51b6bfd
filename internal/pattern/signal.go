package pattern

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"example.com/binance-pattern-signals/internal/indicator"
	"example.com/binance-pattern-signals/internal/kline"
)

// Signal is the canonical record every detector normalises into.
// signal=false records carry Message (no match) or Error (bad input) instead
// of prices.
type Signal struct {
	Signal     bool       `json:"signal"`
	SignalType SignalType `json:"signal_type,omitempty"`
	Symbol     string     `json:"symbol,omitempty"`
	Interval   string     `json:"interval,omitempty"`
	Direction  Direction  `json:"direction,omitempty"`
	Timestamp  string     `json:"timestamp,omitempty"`  // generation time, RFC3339
	KlineTime  int64      `json:"kline_time,omitempty"` // trigger kline open time, unix ms
	EntryPrice float64    `json:"entry_price,omitempty"`
	StopLoss   float64    `json:"stop_loss,omitempty"`
	TakeProfit float64    `json:"take_profit,omitempty"`
	TPMultiple float64    `json:"tp_multiple,omitempty"`
	RSI        *float64   `json:"rsi"`
	Reasons    []string   `json:"reasons,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// IsValid reports whether a positive signal satisfies the stop/entry/target
// ordering for its direction.
func (s *Signal) IsValid() bool {
	if !s.Signal {
		return false
	}
	switch s.Direction {
	case DirectionLong:
		return s.StopLoss < s.EntryPrice && s.EntryPrice < s.TakeProfit
	case DirectionShort:
		return s.TakeProfit < s.EntryPrice && s.EntryPrice < s.StopLoss
	}
	return false
}

// ErrorSignal converts a detection failure into a signal=false record that
// carries the symbol context.
func ErrorSignal(symbol, interval string, err error) Signal {
	return Signal{Symbol: symbol, Interval: interval, Error: err.Error()}
}

type normalizeInput struct {
	Type      SignalType
	Direction Direction
	Index     int
	Entry     float64
	Stop      float64
	Multiple  float64
	RSI       *float64
	Reasons   []string
}

func (d *Detector) noSignal(s *kline.Series, typ SignalType, message string) Signal {
	return Signal{
		SignalType: typ,
		Symbol:     s.Symbol,
		Interval:   s.Interval,
		Message:    message,
	}
}

// normalize fills the price fields with entry +/- multiple*risk, rounds them
// and stamps the generation time. Degenerate risk yields signal=false.
func (d *Detector) normalize(s *kline.Series, in normalizeInput) Signal {
	risk := math.Abs(in.Entry - in.Stop)
	if risk == 0 || math.IsNaN(risk) {
		return d.noSignal(s, in.Type, "zero risk between entry and stop")
	}

	tp := in.Entry + in.Multiple*risk
	if in.Direction == DirectionShort {
		tp = in.Entry - in.Multiple*risk
	}

	sig := Signal{
		Signal:     true,
		SignalType: in.Type,
		Symbol:     s.Symbol,
		Interval:   s.Interval,
		Direction:  in.Direction,
		Timestamp:  d.now().UTC().Format(time.RFC3339),
		KlineTime:  s.Timestamps[in.Index],
		EntryPrice: d.roundPrice(in.Entry),
		StopLoss:   d.roundPrice(in.Stop),
		TakeProfit: d.roundPrice(tp),
		TPMultiple: in.Multiple,
		RSI:        in.RSI,
		Reasons:    in.Reasons,
	}
	if !sig.IsValid() {
		return d.noSignal(s, in.Type, "price levels collapse after rounding")
	}
	return sig
}

func (d *Detector) roundPrice(v float64) float64 {
	return decimal.NewFromFloat(v).Round(int32(d.config.PricePrecision)).InexactFloat64()
}

// roundRSI rounds to 2 decimals; NaN yields nil.
func roundRSI(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	r := decimal.NewFromFloat(v).Round(2).InexactFloat64()
	return &r
}

// rsiSnapshot is the Wilder RSI at idx, reported alongside shape and
// unfiltered breakout signals.
func (d *Detector) rsiSnapshot(s *kline.Series, idx int) *float64 {
	r := indicator.TalibRSI(s.Closes, d.config.RSIPeriod)
	if idx >= len(r) {
		return nil
	}
	return roundRSI(r[idx])
}

// LatestBreakoutSignal normalises LatestBreakout into a canonical record.
func (d *Detector) LatestBreakoutSignal(s *kline.Series) (Signal, error) {
	c, ok, err := d.LatestBreakout(s)
	if err != nil {
		return Signal{}, err
	}
	if !ok {
		return d.noSignal(s, SignalBreakout123, "No 123 signal in last confirmed candle"), nil
	}
	return d.normalizeCandidate(s, c, d.rsiSnapshot(s, c.TriggerIndex), []string{ReasonBreakout}), nil
}

func (d *Detector) normalizeCandidate(s *kline.Series, c Candidate, rsi *float64, reasons []string) Signal {
	return d.normalize(s, normalizeInput{
		Type:      SignalBreakout123,
		Direction: c.Direction,
		Index:     c.TriggerIndex,
		Entry:     c.EntryPrice,
		Stop:      c.StopLoss,
		Multiple:  d.config.TPMult,
		RSI:       rsi,
		Reasons:   reasons,
	})
}
