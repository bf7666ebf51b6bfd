package scanner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/pattern"
	"example.com/binance-pattern-signals/internal/review"
	"example.com/binance-pattern-signals/internal/signal"
)

var testBase = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func makeKline(i int, open, high, low, close float64) kline.Kline {
	t := testBase.Add(time.Duration(i) * 15 * time.Minute)
	return kline.Kline{
		Symbol: "BTCUSDT", Open: open, High: high, Low: low, Close: close, Volume: 10,
		OpenTime: t, CloseTime: t.Add(15*time.Minute - time.Millisecond), IsClosed: true,
	}
}

// hammerKlines ends with a hammer on the last closed kline and a forming one.
func hammerKlines() []kline.Kline {
	out := make([]kline.Kline, 0, 22)
	for i := 0; i < 20; i++ {
		out = append(out, makeKline(i, 100, 100.5, 99.5, 100.2))
	}
	out = append(out, makeKline(20, 100, 101.2, 97, 101))
	out = append(out, makeKline(21, 101, 101.3, 100.8, 101.1))
	return out
}

// breakoutKlines: swing high 110 at 5, low 100 at 10, close above 110 on
// the last closed kline (16).
func breakoutKlines() []kline.Kline {
	highs := []float64{102, 104, 106, 108, 109, 110, 108, 106, 104, 102, 101, 103, 105, 107, 109, 109.5, 112, 113}
	out := make([]kline.Kline, len(highs))
	for i, h := range highs {
		l := h - 1.5
		if i == 10 {
			l = 100
		}
		open, close := l+0.5, h-0.5
		if i >= 6 && i <= 10 {
			open, close = close, open
		}
		out[i] = makeKline(i, open, h, l, close)
	}
	return out
}

// repeatBreakoutKlines extends breakoutKlines past the first breakout at 16:
// a new high 114 at 17, a dip to 106 at 19 and a close above 114 at 23, the
// last closed kline, seven bars after the first breakout.
func repeatBreakoutKlines() []kline.Kline {
	out := breakoutKlines()[:17]
	for i, b := range [][4]float64{
		{113, 114, 112.5, 113.5},
		{112.5, 113, 110, 110.5},
		{110.5, 111, 106, 107},
		{107, 110, 106.5, 109.5},
		{109.5, 112, 108, 111.5},
		{111.5, 113.5, 110, 113},
		{113, 115.5, 112.5, 115},
		{115, 115.8, 114.5, 115.5},
	} {
		out = append(out, makeKline(17+i, b[0], b[1], b[2], b[3]))
	}
	return out
}

type fakeFetcher struct {
	klines map[string][]kline.Kline
	errs   map[string]error
}

func (f *fakeFetcher) Klines(_ context.Context, symbol, _ string, limit int) ([]kline.Kline, error) {
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	ks := f.klines[symbol]
	if len(ks) > limit {
		ks = ks[len(ks)-limit:]
	}
	out := make([]kline.Kline, len(ks))
	for i, k := range ks {
		k.Symbol = symbol
		out[i] = k
	}
	return out, nil
}

type fakeReviewer struct {
	decision review.Decision
	err      error
	calls    int
}

func (f *fakeReviewer) Review(_ context.Context, sig pattern.Signal, klines []kline.Kline) (review.Verdict, error) {
	f.calls++
	if f.err != nil {
		return review.Verdict{}, f.err
	}
	return review.Verdict{Provider: "fake", Decision: f.decision, Raw: "3) " + string(f.decision)}, nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	sent  []pattern.Signal
	notes []string
}

func (f *fakeAlerter) SendSignal(_ context.Context, sig pattern.Signal, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sig)
	f.notes = append(f.notes, note)
	return nil
}

func testDetector() *pattern.Detector {
	return pattern.NewDetector(pattern.DefaultDetectorConfig()).WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
}

func newTestScanner(opts Options, f *fakeFetcher, r review.Reviewer, a Alerter) *Scanner {
	deps := Deps{
		Detector: testDetector(),
		Fetcher:  f,
		Deduper:  signal.NewMemoryDeduper(time.Hour),
		Alerter:  a,
		Logger:   zerolog.Nop(),
	}
	if r != nil {
		deps.Reviewer = r
	}
	return New(opts, deps)
}

func TestEvaluate_Shapes(t *testing.T) {
	s := newTestScanner(Options{Shapes: []string{"inverted_hammer", "hammer", "bullish_engulfing"}}, nil, nil, nil)
	series, err := kline.NewSeries("BTCUSDT", "15m", hammerKlines())
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	got, err := s.Evaluate(series)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 || got[0].SignalType != pattern.SignalHammer || got[0].Direction != pattern.DirectionLong {
		t.Fatalf("got %+v, want one long hammer", got)
	}
}

func TestEvaluate_Breakout(t *testing.T) {
	series, err := kline.NewSeries("BTCUSDT", "15m", breakoutKlines())
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	s := newTestScanner(Options{Breakout: true}, nil, nil, nil)
	got, err := s.Evaluate(series)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 || got[0].SignalType != pattern.SignalBreakout123 {
		t.Fatalf("got %+v, want one breakout", got)
	}
	if got[0].EntryPrice != 110 || got[0].StopLoss != 100 || got[0].TakeProfit != 125 {
		t.Errorf("entry/stop/tp = %v/%v/%v", got[0].EntryPrice, got[0].StopLoss, got[0].TakeProfit)
	}

	// Flat volume never passes the volume filter.
	confirmed := newTestScanner(Options{Breakout: true, Confirm: true}, nil, nil, nil)
	got, err = confirmed.Evaluate(series)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want the candidate filtered out", got)
	}
}

func TestEvaluate_BreakoutCooldown(t *testing.T) {
	series, err := kline.NewSeries("BTCUSDT", "15m", repeatBreakoutKlines())
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}

	// The detector default of 5 bars lets the second breakout through.
	if c, ok, _ := testDetector().LatestBreakout(series); !ok || c.TriggerIndex != 23 {
		t.Fatalf("LatestBreakout = %+v, %v, want a trigger at 23", c, ok)
	}

	s := newTestScanner(Options{Breakout: true}, nil, nil, nil)
	if s.Options().MinSignalDistance != DefaultMinSignalDistance {
		t.Errorf("MinSignalDistance = %d, want %d", s.Options().MinSignalDistance, DefaultMinSignalDistance)
	}
	got, err := s.Evaluate(series)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want the breakout 7 bars after the previous one suppressed", got)
	}

	loose := newTestScanner(Options{Breakout: true, MinSignalDistance: 5}, nil, nil, nil)
	got, err = loose.Evaluate(series)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 || got[0].EntryPrice != 114 || got[0].StopLoss != 106 || got[0].TakeProfit != 126 {
		t.Errorf("got %+v, want a long breakout 114/106/126", got)
	}
}

func TestEvaluate_ShortSeries(t *testing.T) {
	s := newTestScanner(Options{Shapes: []string{"hammer"}}, nil, nil, nil)
	series, _ := kline.NewSeries("BTCUSDT", "15m", hammerKlines()[:1])
	if _, err := s.Evaluate(series); !errors.Is(err, kline.ErrSeriesTooShort) {
		t.Errorf("err = %v, want ErrSeriesTooShort", err)
	}
}

func TestScanSymbol_Pipeline(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{klines: map[string][]kline.Kline{"BTCUSDT": hammerKlines()}}
	r := &fakeReviewer{decision: review.DecisionRecommend}
	a := &fakeAlerter{}
	s := newTestScanner(Options{Shapes: []string{"hammer"}, Review: true}, f, r, a)
	target := Target{Symbol: "BTCUSDT", Interval: "15m"}

	res := s.ScanSymbol(ctx, target)
	if res.Error != "" {
		t.Fatalf("scan error: %s", res.Error)
	}
	if res.RunID == "" || !res.From.Equal(testBase) || !res.To.Equal(testBase.Add(21*15*time.Minute)) {
		t.Errorf("run metadata = %s %v %v", res.RunID, res.From, res.To)
	}
	if len(res.Signals) != 1 || len(res.Emitted) != 1 {
		t.Fatalf("signals/emitted = %d/%d", len(res.Signals), len(res.Emitted))
	}
	em := res.Emitted[0]
	if !em.Notified || em.Verdict == nil || em.Verdict.Decision != review.DecisionRecommend {
		t.Errorf("emitted = %+v", em)
	}
	if len(a.sent) != 1 || !strings.Contains(a.notes[0], "recommend") {
		t.Errorf("alerts = %+v notes = %q", a.sent, a.notes)
	}
	if s.History().Count() != 1 {
		t.Errorf("history count = %d, want 1", s.History().Count())
	}

	// The same candle again is a duplicate.
	res = s.ScanSymbol(ctx, target)
	if len(res.Signals) != 1 || len(res.Emitted) != 0 {
		t.Errorf("second scan signals/emitted = %d/%d", len(res.Signals), len(res.Emitted))
	}
	if r.calls != 1 || len(a.sent) != 1 || s.History().Count() != 1 {
		t.Errorf("duplicate reached collaborators: reviews=%d alerts=%d history=%d", r.calls, len(a.sent), s.History().Count())
	}
}

func TestScanSymbol_ReviewOutcome(t *testing.T) {
	tests := []struct {
		name           string
		reviewer       *fakeReviewer
		notifyRejected bool
		notified       bool
		note           string
	}{
		{"rejected is held back", &fakeReviewer{decision: review.DecisionReject}, false, false, ""},
		{"rejected is sent when asked", &fakeReviewer{decision: review.DecisionReject}, true, true, "reject"},
		{"uncertain is sent", &fakeReviewer{decision: review.DecisionUncertain}, false, true, "uncertain"},
		{"review failure is sent", &fakeReviewer{err: errors.New("timeout")}, false, true, "不可用"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{klines: map[string][]kline.Kline{"BTCUSDT": hammerKlines()}}
			a := &fakeAlerter{}
			s := newTestScanner(Options{Shapes: []string{"hammer"}, Review: true, NotifyRejected: tt.notifyRejected}, f, tt.reviewer, a)

			res := s.ScanSymbol(context.Background(), Target{Symbol: "BTCUSDT", Interval: "15m"})
			if len(res.Emitted) != 1 {
				t.Fatalf("emitted = %d", len(res.Emitted))
			}
			if res.Emitted[0].Notified != tt.notified {
				t.Errorf("notified = %v, want %v", res.Emitted[0].Notified, tt.notified)
			}
			if tt.notified && !strings.Contains(a.notes[0], tt.note) {
				t.Errorf("note = %q, want containing %q", a.notes[0], tt.note)
			}
			if s.History().Count() != 1 {
				t.Error("signal missing from history")
			}
		})
	}
}

func TestScanAll(t *testing.T) {
	f := &fakeFetcher{
		klines: map[string][]kline.Kline{"BTCUSDT": hammerKlines(), "SOLUSDT": hammerKlines()},
		errs:   map[string]error{"ETHUSDT": errors.New("status 503")},
	}
	targets := []Target{
		{Symbol: "BTCUSDT", Interval: "15m"},
		{Symbol: "ETHUSDT", Interval: "15m"},
		{Symbol: "SOLUSDT", Interval: "15m"},
	}
	s := newTestScanner(Options{Targets: targets, Workers: 2, Shapes: []string{"hammer"}}, f, nil, &fakeAlerter{})

	results := s.ScanAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i, r := range results {
		if r.Symbol != targets[i].Symbol {
			t.Errorf("results[%d].Symbol = %s, want %s", i, r.Symbol, targets[i].Symbol)
		}
	}
	if results[1].Error == "" || !strings.Contains(results[1].Error, "status 503") {
		t.Errorf("ETHUSDT error = %q", results[1].Error)
	}
	if len(results[0].Emitted) != 1 || len(results[2].Emitted) != 1 {
		t.Errorf("emitted = %d/%d", len(results[0].Emitted), len(results[2].Emitted))
	}
}

func TestScanAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{klines: map[string][]kline.Kline{}}
	s := newTestScanner(Options{Targets: []Target{{"BTCUSDT", "15m"}, {"ETHUSDT", "15m"}}}, f, nil, nil)

	for _, r := range s.ScanAll(ctx) {
		if r.Error == "" {
			t.Errorf("%s scanned after cancel", r.Symbol)
		}
	}
}

func TestHandleKlines(t *testing.T) {
	a := &fakeAlerter{}
	s := newTestScanner(Options{Shapes: []string{"hammer"}}, nil, nil, a)

	res := s.HandleKlines(context.Background(), "BTCUSDT", "15m", hammerKlines())
	if res.Error != "" || len(res.Emitted) != 1 || len(a.sent) != 1 {
		t.Errorf("result = %+v", res)
	}

	unordered := hammerKlines()
	unordered[3], unordered[4] = unordered[4], unordered[3]
	res = s.HandleKlines(context.Background(), "BTCUSDT", "15m", unordered)
	if !strings.Contains(res.Error, "not strictly increasing") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestNextRun(t *testing.T) {
	day := func(h, m, s int) time.Time { return time.Date(2025, 1, 1, h, m, s, 0, time.UTC) }
	tests := []struct {
		name  string
		now   time.Time
		delay time.Duration
		want  time.Time
	}{
		{"mid interval", day(10, 7, 30), 5 * time.Second, day(10, 15, 5)},
		{"inside delay", day(10, 15, 2), 5 * time.Second, day(10, 15, 5)},
		{"at run time", day(10, 15, 5), 5 * time.Second, day(10, 30, 5)},
		{"on boundary without delay", day(10, 15, 0), 0, day(10, 30, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextRun(tt.now, 15*time.Minute, tt.delay); !got.Equal(tt.want) {
				t.Errorf("nextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestScanner(Options{Every: time.Hour}, &fakeFetcher{}, nil, nil)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
