package pattern

import (
	"errors"
	"fmt"
	"sort"

	"example.com/binance-pattern-signals/internal/kline"
)

// ErrUnknownPattern is returned by DetectShape for unregistered names.
var ErrUnknownPattern = errors.New("pattern: unknown shape")

// shapeFunc classifies the kline at index i (bar3 for multi-bar shapes).
type shapeFunc func(d *Detector, s *kline.Series, i int) (Direction, bool)

var shapes = map[SignalType]shapeFunc{
	SignalHammer:           isHammer,
	SignalInvertedHammer:   isInvertedHammer,
	SignalBullishEngulfing: isBullishEngulfing,
	SignalBearishEngulfing: isBearishEngulfing,
	SignalThreeBarReversal: threeBarShape,
}

// ShapeNames lists every name accepted by DetectShape, sorted.
func ShapeNames() []string {
	names := make([]string, 0, len(shapes)+len(talibShapes))
	for name := range shapes {
		names = append(names, string(name))
	}
	for name := range talibShapes {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

// isDoji reports a body no larger than MinBody.
func (d *Detector) isDoji(k *kline.Kline) bool {
	return k.Body() <= d.config.MinBody
}

// isHammer: lower shadow >= 1.8x body, upper shadow <= body and < 20% of range.
func isHammer(d *Detector, s *kline.Series, i int) (Direction, bool) {
	k := s.At(i)
	if d.isDoji(&k) {
		return "", false
	}
	body, upper, lower := k.Body(), k.UpperShadow(), k.LowerShadow()
	if lower >= 1.8*body && upper <= body && upper < 0.2*k.Range() {
		return DirectionLong, true
	}
	return "", false
}

// isInvertedHammer mirrors isHammer with the long shadow on top.
func isInvertedHammer(d *Detector, s *kline.Series, i int) (Direction, bool) {
	k := s.At(i)
	if d.isDoji(&k) {
		return "", false
	}
	body, upper, lower := k.Body(), k.UpperShadow(), k.LowerShadow()
	if upper >= 1.8*body && lower <= body && lower < 0.2*k.Range() {
		return DirectionShort, true
	}
	return "", false
}

// isBullishEngulfing: prior bearish, current bullish, current body strictly
// contains the prior body.
func isBullishEngulfing(_ *Detector, s *kline.Series, i int) (Direction, bool) {
	if i < 1 {
		return "", false
	}
	prev, curr := s.At(i-1), s.At(i)
	if prev.IsBearish() && curr.IsBullish() && curr.Open < prev.Close && curr.Close > prev.Open {
		return DirectionLong, true
	}
	return "", false
}

// isBearishEngulfing: prior bullish, current bearish, current body strictly
// contains the prior body.
func isBearishEngulfing(_ *Detector, s *kline.Series, i int) (Direction, bool) {
	if i < 1 {
		return "", false
	}
	prev, curr := s.At(i-1), s.At(i)
	if prev.IsBullish() && curr.IsBearish() && curr.Open > prev.Close && curr.Close < prev.Open {
		return DirectionShort, true
	}
	return "", false
}

// ThreeBarReversal reports the direction of a three-bar reversal ending at i.
//
// Bullish: bar1 closes down, bar2's low undercuts bar1 and bar3, bar3 closes
// above the highs of bar1 and bar2. Bearish is the mirror.
func ThreeBarReversal(s *kline.Series, i int) (Direction, bool) {
	if i < 2 || i >= s.Len() {
		return "", false
	}
	o1, c1 := s.Opens[i-2], s.Closes[i-2]
	h1, l1 := s.Highs[i-2], s.Lows[i-2]
	h2, l2 := s.Highs[i-1], s.Lows[i-1]
	h3, l3, c3 := s.Highs[i], s.Lows[i], s.Closes[i]

	if c1 < o1 && l2 < l1 && l2 < l3 && c3 > h1 && c3 > h2 {
		return DirectionLong, true
	}
	if c1 > o1 && h2 > h1 && h2 > h3 && c3 < l1 && c3 < l2 {
		return DirectionShort, true
	}
	return "", false
}

func threeBarShape(_ *Detector, s *kline.Series, i int) (Direction, bool) {
	return ThreeBarReversal(s, i)
}

// DetectShape classifies the last closed kline with the named shape and
// normalises the result. A series without a closed kline or an unknown name
// is an error; a non-matching kline is a signal=false record.
func (d *Detector) DetectShape(s *kline.Series, name string) (Signal, error) {
	typ := SignalType(name)
	fn, ok := shapes[typ]
	if !ok {
		fn, ok = talibShapes[typ]
	}
	if !ok {
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownPattern, name)
	}

	idx, err := s.LastClosedIndex()
	if err != nil {
		return Signal{}, err
	}

	dir, matched := fn(d, s, idx)
	if !matched {
		return d.noSignal(s, typ, fmt.Sprintf("No %s signal in last confirmed candle", name)), nil
	}

	k := s.At(idx)
	stop := k.Low
	if dir == DirectionShort {
		stop = k.High
	}
	return d.normalize(s, normalizeInput{
		Type:      typ,
		Direction: dir,
		Index:     idx,
		Entry:     k.Close,
		Stop:      stop,
		Multiple:  d.config.ShapeTPMult,
		RSI:       d.rsiSnapshot(s, idx),
	}), nil
}
