// Package scanner runs the detectors over fresh klines and pushes new signals
// through de-duplication, LLM review, notification and history.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/market"
	"example.com/binance-pattern-signals/internal/metrics"
	"example.com/binance-pattern-signals/internal/pattern"
	"example.com/binance-pattern-signals/internal/review"
	"example.com/binance-pattern-signals/internal/signal"
)

// Target is one monitored market.
type Target struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// DefaultMinSignalDistance is the breakout cooldown of the single-kline
// check, wider than the detector default used for full scans.
const DefaultMinSignalDistance = 10

// Options controls what a scan detects and how it is scheduled.
type Options struct {
	Targets []Target
	Limit   int
	Workers int
	Every   time.Duration
	Delay   time.Duration

	// Shapes are tried in order; only the first match is emitted.
	Shapes   []string
	Breakout bool
	// MinSignalDistance is the cooldown of the latest-breakout check; zero
	// means DefaultMinSignalDistance.
	MinSignalDistance int
	// Confirm routes the latest breakout through the filter pipeline.
	Confirm bool
	// Review asks the reviewer about each new signal; rejected signals are
	// not notified unless NotifyRejected is set.
	Review         bool
	NotifyRejected bool
}

// Alerter delivers a signal alert. *notify.Manager implements it.
type Alerter interface {
	SendSignal(ctx context.Context, sig pattern.Signal, note string) error
}

// Deps are the scanner collaborators. Reviewer and Alerter may be nil.
type Deps struct {
	Detector *pattern.Detector
	Fetcher  market.Fetcher
	Deduper  signal.Deduper
	Reviewer review.Reviewer
	Alerter  Alerter
	History  *signal.History
	Logger   zerolog.Logger
}

// Emitted is a new signal together with its review outcome.
type Emitted struct {
	Signal   pattern.Signal  `json:"signal"`
	Verdict  *review.Verdict `json:"verdict,omitempty"`
	Notified bool            `json:"notified"`
}

// Result is the outcome of scanning one symbol.
type Result struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	RunID    string    `json:"run_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	// Signals are all positive detections on the last closed kline; Emitted
	// are those not seen before.
	Signals []pattern.Signal `json:"signals"`
	Emitted []Emitted        `json:"emitted"`
	Error   string           `json:"error,omitempty"`
}

// Scanner evaluates configured markets on demand, on a schedule or from the
// kline stream.
type Scanner struct {
	opts     Options
	deps     Deps
	breakout *pattern.Detector
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a scanner. A nil Deduper or History is replaced by an
// in-memory one.
func New(opts Options, deps Deps) *Scanner {
	if opts.Limit <= 0 {
		opts.Limit = 120
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Every <= 0 {
		opts.Every = 15 * time.Minute
	}
	if opts.MinSignalDistance <= 0 {
		opts.MinSignalDistance = DefaultMinSignalDistance
	}
	if deps.Detector == nil {
		deps.Detector = pattern.NewDetector(pattern.DefaultDetectorConfig())
	}
	if deps.Deduper == nil {
		deps.Deduper = signal.NewMemoryDeduper(signal.DefaultDedupTTL)
	}
	if deps.History == nil {
		deps.History = signal.NewHistory(signal.DefaultHistoryMax)
	}
	return &Scanner{
		opts:     opts,
		deps:     deps,
		breakout: deps.Detector.WithMinSignalDistance(opts.MinSignalDistance),
		log:      deps.Logger.With().Str("component", "scanner").Logger(),
		now:      time.Now,
	}
}

// Options returns the scanner options.
func (s *Scanner) Options() Options {
	return s.opts
}

// History returns the emitted signal buffer.
func (s *Scanner) History() *signal.History {
	return s.deps.History
}

// Evaluate runs the configured detectors on the last closed kline of series.
// It does not touch any collaborator.
func (s *Scanner) Evaluate(series *kline.Series) ([]pattern.Signal, error) {
	d := s.deps.Detector
	var out []pattern.Signal

	for _, name := range s.opts.Shapes {
		sig, err := d.DetectShape(series, name)
		if err != nil {
			return nil, err
		}
		if sig.Signal {
			out = append(out, sig)
			break
		}
	}

	switch {
	case s.opts.Confirm:
		sigs, err := s.confirmedBreakouts(series)
		if err != nil {
			return nil, err
		}
		out = append(out, sigs...)
	case s.opts.Breakout:
		sig, err := s.breakout.LatestBreakoutSignal(series)
		if err != nil {
			return nil, err
		}
		if sig.Signal {
			out = append(out, sig)
		}
	}
	return out, nil
}

// confirmedBreakouts filters the breakout candidates triggered on the last
// closed kline.
func (s *Scanner) confirmedBreakouts(series *kline.Series) ([]pattern.Signal, error) {
	last, err := series.LastClosedIndex()
	if err != nil {
		return nil, err
	}
	var latest []pattern.Candidate
	for _, c := range s.deps.Detector.DetectBreakout(series) {
		if c.TriggerIndex == last {
			latest = append(latest, c)
		}
	}
	for _, ev := range s.deps.Detector.EvaluateAll(series, latest) {
		if !ev.Passed {
			metrics.FilterRejectionsTotal.WithLabelValues(ev.FailedFilter).Inc()
		}
	}
	return s.deps.Detector.FilterSignals(series, latest), nil
}

// ScanSymbol fetches klines for t and runs the full pipeline.
func (s *Scanner) ScanSymbol(ctx context.Context, t Target) Result {
	return s.scan(ctx, t, s.opts.Limit)
}

// ScanLimit is ScanSymbol with an explicit kline limit.
func (s *Scanner) ScanLimit(ctx context.Context, t Target, limit int) Result {
	if limit <= 0 {
		limit = s.opts.Limit
	}
	return s.scan(ctx, t, limit)
}

func (s *Scanner) scan(ctx context.Context, t Target, limit int) Result {
	start := s.now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	series, err := market.FetchSeries(ctx, s.deps.Fetcher, t.Symbol, t.Interval, limit)
	if err != nil {
		res := Result{Symbol: t.Symbol, Interval: t.Interval, RunID: uuid.NewString(), Error: err.Error()}
		s.fail(res, err)
		return res
	}
	return s.HandleSeries(ctx, series)
}

// HandleSeries runs the pipeline over an already built series.
func (s *Scanner) HandleSeries(ctx context.Context, series *kline.Series) Result {
	res := Result{
		Symbol:   series.Symbol,
		Interval: series.Interval,
		RunID:    uuid.NewString(),
		Signals:  []pattern.Signal{},
		Emitted:  []Emitted{},
	}
	res.From, res.To = series.Span()

	sigs, err := s.Evaluate(series)
	if err != nil {
		res.Error = err.Error()
		s.fail(res, err)
		return res
	}
	if sigs != nil {
		res.Signals = sigs
	}

	for _, sig := range sigs {
		metrics.SignalsTotal.WithLabelValues(string(sig.SignalType), string(sig.Direction)).Inc()
		em, ok := s.emit(ctx, series, sig)
		if ok {
			res.Emitted = append(res.Emitted, em)
		}
	}

	metrics.ScansTotal.WithLabelValues(res.Symbol, "ok").Inc()
	s.log.Info().
		Str("run_id", res.RunID).
		Str("symbol", res.Symbol).
		Str("interval", res.Interval).
		Int("signals", len(res.Signals)).
		Int("emitted", len(res.Emitted)).
		Msg("scan finished")
	return res
}

// HandleKlines adapts the kline store close callback.
func (s *Scanner) HandleKlines(ctx context.Context, symbol, interval string, klines []kline.Kline) Result {
	series, err := kline.NewSeries(symbol, interval, klines)
	if err != nil {
		res := Result{Symbol: symbol, Interval: interval, RunID: uuid.NewString(), Error: err.Error()}
		s.fail(res, err)
		return res
	}
	return s.HandleSeries(ctx, series)
}

func (s *Scanner) fail(res Result, err error) {
	metrics.ScansTotal.WithLabelValues(res.Symbol, "error").Inc()
	ev := s.log.Warn()
	if errors.Is(err, kline.ErrSeriesTooShort) {
		ev = s.log.Debug()
	}
	ev.Err(err).Str("run_id", res.RunID).Str("symbol", res.Symbol).Str("interval", res.Interval).Msg("scan failed")
}

// emit de-duplicates, reviews, notifies and records one signal. It reports
// false for a signal that was already emitted.
func (s *Scanner) emit(ctx context.Context, series *kline.Series, sig pattern.Signal) (Emitted, bool) {
	logger := s.log.With().Str("symbol", sig.Symbol).Str("signal_type", string(sig.SignalType)).Str("direction", string(sig.Direction)).Logger()

	seen, err := s.deps.Deduper.Seen(ctx, signal.Key(sig))
	if err != nil {
		logger.Warn().Err(err).Msg("dedup unavailable, emitting")
	} else if seen {
		logger.Debug().Msg("duplicate signal skipped")
		return Emitted{}, false
	}

	em := Emitted{Signal: sig}
	note := ""
	if s.opts.Review && s.deps.Reviewer != nil {
		v, err := s.deps.Reviewer.Review(ctx, sig, series.Klines())
		if err != nil {
			logger.Warn().Err(err).Msg("review failed")
			note = "AI 复核: 不可用"
		} else {
			em.Verdict = &v
			note = fmt.Sprintf("AI 复核 (%s): %s\n%s", v.Provider, v.Decision, v.Raw)
			logger.Info().Str("provider", v.Provider).Str("decision", string(v.Decision)).Msg("signal reviewed")
		}
	}

	if s.deps.Alerter != nil && s.shouldNotify(em) {
		if err := s.deps.Alerter.SendSignal(ctx, sig, note); err != nil {
			logger.Warn().Err(err).Msg("notify failed")
		} else {
			em.Notified = true
		}
	}

	s.deps.History.Add(sig)
	logger.Info().Float64("entry", sig.EntryPrice).Float64("stop_loss", sig.StopLoss).Float64("take_profit", sig.TakeProfit).Bool("notified", em.Notified).Msg("signal emitted")
	return em, true
}

func (s *Scanner) shouldNotify(em Emitted) bool {
	if em.Verdict == nil || s.opts.NotifyRejected {
		return true
	}
	return em.Verdict.Decision != review.DecisionReject
}
