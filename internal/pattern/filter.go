package pattern

import (
	"example.com/binance-pattern-signals/internal/indicator"
	"example.com/binance-pattern-signals/internal/kline"
)

// Evaluation is the filter trace for one breakout candidate.
type Evaluation struct {
	Candidate Candidate `json:"candidate"`
	Passed    bool      `json:"passed"`
	Reasons   []string  `json:"reasons"`
	// FailedFilter names the first rejecting filter; empty when Passed.
	FailedFilter string  `json:"failed_filter,omitempty"`
	RSI          float64 `json:"rsi"`
}

// Evaluate runs the three-bar, RSI and volume filters in order and stops at
// the first rejection. rsi must be the exponential RSI of s.Closes.
func (d *Detector) Evaluate(s *kline.Series, c Candidate, rsi []float64) Evaluation {
	ev := Evaluation{Candidate: c, Reasons: []string{ReasonBreakout}}
	i := c.TriggerIndex
	if i < 0 || i >= s.Len() || len(rsi) != s.Len() {
		ev.FailedFilter = "index"
		return ev
	}
	ev.RSI = rsi[i]

	if !d.threeBarMatch(s, i, c.Direction) {
		ev.FailedFilter = ReasonThreeBar
		return ev
	}
	ev.Reasons = append(ev.Reasons, ReasonThreeBar)

	if !rsiRegime(rsi, i, c.Direction) {
		ev.FailedFilter = ReasonRSI
		return ev
	}
	ev.Reasons = append(ev.Reasons, ReasonRSI)

	if !d.volumeSpike(s.Volumes, i) {
		ev.FailedFilter = ReasonVolumeHigh
		return ev
	}
	ev.Reasons = append(ev.Reasons, ReasonVolumeHigh)

	ev.Passed = true
	return ev
}

// EvaluateAll evaluates every candidate against one RSI computation.
func (d *Detector) EvaluateAll(s *kline.Series, candidates []Candidate) []Evaluation {
	if len(candidates) == 0 {
		return nil
	}
	rsi := indicator.RSI(s.Closes, d.config.RSIPeriod)
	out := make([]Evaluation, len(candidates))
	for k, c := range candidates {
		out[k] = d.Evaluate(s, c, rsi)
	}
	return out
}

// FilterSignals keeps the candidates passing every filter, normalised and
// annotated with their reason chain. Rejected candidates are dropped.
func (d *Detector) FilterSignals(s *kline.Series, candidates []Candidate) []Signal {
	var out []Signal
	for _, ev := range d.EvaluateAll(s, candidates) {
		if !ev.Passed {
			continue
		}
		sig := d.normalizeCandidate(s, ev.Candidate, roundRSI(ev.RSI), ev.Reasons)
		if sig.Signal {
			out = append(out, sig)
		}
	}
	return out
}

// threeBarMatch looks for a same-direction three-bar reversal among the
// PatternLookback klines before i.
func (d *Detector) threeBarMatch(s *kline.Series, i int, dir Direction) bool {
	for j := i - d.config.PatternLookback; j < i; j++ {
		if j < 2 {
			continue
		}
		if got, ok := ThreeBarReversal(s, j); ok && got == dir {
			return true
		}
	}
	return false
}

// rsiRegime: long needs 30 < RSI < 50 and rising, short needs 50 < RSI < 70
// and falling. NaN values never pass.
func rsiRegime(rsi []float64, i int, dir Direction) bool {
	if i < 1 {
		return false
	}
	r, prev := rsi[i], rsi[i-1]
	switch dir {
	case DirectionLong:
		return 30 < r && r < 50 && r > prev
	case DirectionShort:
		return 50 < r && r < 70 && r < prev
	}
	return false
}

// volumeSpike: volume at i above the mean of the VolumeAvgPeriod bars before it.
func (d *Detector) volumeSpike(volumes []float64, i int) bool {
	n := d.config.VolumeAvgPeriod
	if i < n {
		return false
	}
	return volumes[i] > indicator.Mean(volumes[i-n:i])
}
