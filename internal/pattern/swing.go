package pattern

import (
	"math"

	"example.com/binance-pattern-signals/internal/kline"
)

// PivotKind marks a pivot as a swing high or a swing low.
type PivotKind string

const (
	PivotHigh PivotKind = "high"
	PivotLow  PivotKind = "low"
)

// Pivot is a confirmed swing point of the zig-zag.
type Pivot struct {
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Kind  PivotKind `json:"kind"`
}

// Candidate is an unfiltered 123 breakout.
type Candidate struct {
	Direction      Direction `json:"direction"`
	TriggerIndex   int       `json:"trigger_index"`
	EntryPrice     float64   `json:"entry_price"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	Timestamp      int64     `json:"timestamp"` // trigger kline open time, unix ms
	SwingHighIndex int       `json:"swing_high_index"`
	SwingLowIndex  int       `json:"swing_low_index"`
}

// transition is the zig-zag flip produced by one step of a swingState.
type transition int

const (
	noFlip     transition = iota
	flipToLow             // SEEKING_HIGH -> SEEKING_LOW
	flipToHigh            // SEEKING_LOW -> SEEKING_HIGH
)

// swingState is the zig-zag tracker threaded through a scan. The zero
// direction (seekingLow == false) is SEEKING_HIGH.
type swingState struct {
	seekingLow bool
	lastHigh   float64
	lastLow    float64
	highIdx    int
	lowIdx     int
}

func newSwingState() swingState {
	return swingState{lastHigh: 0, lastLow: math.Inf(1), highIdx: -1, lowIdx: -1}
}

// step advances the tracker by one window-extreme classification. Strict
// comparisons against the running best mean the first of several equal
// extremes wins.
func (st swingState) step(i int, high, low float64, isMax, isMin bool) (swingState, transition) {
	if !st.seekingLow {
		if isMax && high > st.lastHigh {
			st.lastHigh, st.highIdx = high, i
		} else if isMin && low < st.lastHigh {
			st.lastLow, st.lowIdx = low, i
			st.seekingLow = true
			return st, flipToLow
		}
		return st, noFlip
	}

	if isMin && low < st.lastLow {
		st.lastLow, st.lowIdx = low, i
	} else if isMax && high > st.lastLow {
		st.lastHigh, st.highIdx = high, i
		st.seekingLow = false
		return st, flipToHigh
	}
	return st, noFlip
}

// windowExtremes classifies each scan index as window max and/or min over
// [i-length, i+length]. Indices whose window does not fit are never scanned.
func windowExtremes(highs, lows []float64, length int) (first, last int, isMax, isMin []bool) {
	n := len(highs)
	first, last = length, n-1-length
	if last > n-2 {
		last = n - 2
	}
	isMax = make([]bool, n)
	isMin = make([]bool, n)
	for i := first; i <= last; i++ {
		h, l := highs[i-length], lows[i-length]
		for k := i - length + 1; k <= i+length; k++ {
			if highs[k] > h {
				h = highs[k]
			}
			if lows[k] < l {
				l = lows[k]
			}
		}
		isMax[i] = highs[i] == h
		isMin[i] = lows[i] == l
	}
	return first, last, isMax, isMin
}

// Pivots returns the alternating zig-zag of confirmed swing points. A swing
// extreme is confirmed when the tracker flips away from it.
func (d *Detector) Pivots(s *kline.Series) []Pivot {
	first, last, isMax, isMin := windowExtremes(s.Highs, s.Lows, d.config.Length)

	var pivots []Pivot
	st := newSwingState()
	for i := first; i <= last; i++ {
		prev := st
		var tr transition
		st, tr = st.step(i, s.Highs[i], s.Lows[i], isMax[i], isMin[i])
		switch tr {
		case flipToLow:
			pivots = append(pivots, Pivot{Index: prev.highIdx, Price: prev.lastHigh, Kind: PivotHigh})
		case flipToHigh:
			pivots = append(pivots, Pivot{Index: prev.lowIdx, Price: prev.lastLow, Kind: PivotLow})
		}
	}
	return pivots
}

// DetectBreakout scans the series once and returns every 123 breakout in
// emission order. Series too short for one swing window yield nil.
func (d *Detector) DetectBreakout(s *kline.Series) []Candidate {
	var out []Candidate
	d.scanBreakouts(s, func(c Candidate) {
		out = append(out, c)
	})
	return out
}

// LatestBreakout returns the last breakout triggered on the last closed
// kline, if any. It rescans the whole series and keeps only candidates on
// that index, so it matches DetectBreakout filtered on the index.
func (d *Detector) LatestBreakout(s *kline.Series) (Candidate, bool, error) {
	idx, err := s.LastClosedIndex()
	if err != nil {
		return Candidate{}, false, err
	}

	var latest Candidate
	found := false
	d.scanBreakouts(s, func(c Candidate) {
		if c.TriggerIndex == idx {
			latest, found = c, true
		}
	})
	return latest, found, nil
}

// scanBreakouts runs the long and short swing trackers side by side, each
// with its own state and cooldown marker, and reports candidates to visit.
func (d *Detector) scanBreakouts(s *kline.Series, visit func(Candidate)) {
	cfg := d.config
	n := s.Len()
	first, last, isMax, isMin := windowExtremes(s.Highs, s.Lows, cfg.Length)

	long, short := newSwingState(), newSwingState()
	lastLong, lastShort := -1000, -1000

	for i := first; i <= last; i++ {
		var tr transition

		if cfg.Mode.allows(DirectionLong) {
			long, tr = long.step(i, s.Highs[i], s.Lows[i], isMax[i], isMin[i])
			if tr == flipToLow {
				if j := d.confirmBreakout(s, i+1, n-2, lastLong, DirectionLong, long.lastHigh); j >= 0 {
					lastLong = j
					visit(d.longCandidate(s, j, long))
				}
			}
		}

		if cfg.Mode.allows(DirectionShort) {
			short, tr = short.step(i, s.Highs[i], s.Lows[i], isMax[i], isMin[i])
			if tr == flipToHigh {
				if j := d.confirmBreakout(s, i+1, n-2, lastShort, DirectionShort, short.lastLow); j >= 0 {
					lastShort = j
					visit(d.shortCandidate(s, j, short))
				}
			}
		}
	}
}

// confirmBreakout returns the first index in [from, to] whose confirmation
// price crosses level and that respects the cooldown, or -1.
func (d *Detector) confirmBreakout(s *kline.Series, from, to, lastSignal int, dir Direction, level float64) int {
	for j := from; j <= to; j++ {
		if j-lastSignal < d.config.MinSignalDistance {
			continue
		}
		if dir == DirectionLong {
			price := s.Highs[j]
			if d.config.UseCloseForEntry {
				price = s.Closes[j]
			}
			if price > level {
				return j
			}
			continue
		}
		price := s.Lows[j]
		if d.config.UseCloseForEntry {
			price = s.Closes[j]
		}
		if price < level {
			return j
		}
	}
	return -1
}

func (d *Detector) longCandidate(s *kline.Series, j int, st swingState) Candidate {
	entry, stop := st.lastHigh, st.lastLow
	return Candidate{
		Direction:      DirectionLong,
		TriggerIndex:   j,
		EntryPrice:     entry,
		StopLoss:       stop,
		TakeProfit:     entry + (st.lastHigh-st.lastLow)*d.config.TPMult,
		Timestamp:      s.Timestamps[j],
		SwingHighIndex: st.highIdx,
		SwingLowIndex:  st.lowIdx,
	}
}

func (d *Detector) shortCandidate(s *kline.Series, j int, st swingState) Candidate {
	entry, stop := st.lastLow, st.lastHigh
	return Candidate{
		Direction:      DirectionShort,
		TriggerIndex:   j,
		EntryPrice:     entry,
		StopLoss:       stop,
		TakeProfit:     entry - (stop-entry)*d.config.TPMult,
		Timestamp:      s.Timestamps[j],
		SwingHighIndex: st.highIdx,
		SwingLowIndex:  st.lowIdx,
	}
}
