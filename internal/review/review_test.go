package review

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/pattern"
)

func testSignal() pattern.Signal {
	return pattern.Signal{
		Signal:     true,
		SignalType: pattern.SignalHammer,
		Symbol:     "BTCUSDT",
		Interval:   "15m",
		Direction:  pattern.DirectionLong,
		EntryPrice: 101,
		StopLoss:   97,
		TakeProfit: 109,
		TPMultiple: 2,
	}
}

func testKlines(n int) []kline.Kline {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]kline.Kline, n)
	for i := range out {
		open := base.Add(time.Duration(i) * 15 * time.Minute)
		out[i] = kline.Kline{
			Symbol: "BTCUSDT", Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 12.25,
			OpenTime: open, CloseTime: open.Add(15*time.Minute - time.Millisecond), IsClosed: true,
		}
	}
	return out
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Decision
	}{
		{
			name: "third answer recommends",
			text: "1) 是，位于支撑位\n2) Up，上升趋势\n3) Recommend，结构良好",
			want: DecisionRecommend,
		},
		{
			name: "third answer rejects despite echoed question",
			text: "1) 否\n2) Sideways\n3) Reject（请说明推荐或拒绝的理由）：趋势不明",
			want: DecisionReject,
		},
		{
			name: "markdown numbering",
			text: "**1)** 是\n**2)** Down\n**3)** 拒绝，逆势",
			want: DecisionReject,
		},
		{
			name: "whole text fallback",
			text: "综合来看我推荐入场。",
			want: DecisionRecommend,
		},
		{
			name: "both verdicts",
			text: "可以 Recommend 也可以 Reject",
			want: DecisionUncertain,
		},
		{
			name: "no verdict",
			text: "无法判断",
			want: DecisionUncertain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDecision(tt.text); got != tt.want {
				t.Errorf("ParseDecision() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(testSignal(), testKlines(150), 120)
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	for _, want := range []string{
		"信号JSON:",
		`"signal_type": "hammer"`,
		"最近120根K线",
		"timestamp,open,high,low,close,volume\n",
		"2025-01-01 07:30:00,100,101,99,100.5,12.25\n",
		"Recommend/Reject",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// The first 30 klines are trimmed.
	if strings.Contains(prompt, "2025-01-01 07:15:00") {
		t.Error("prompt kept klines beyond the window")
	}
	if rows := strings.Count(prompt, ",12.25\n"); rows != 120 {
		t.Errorf("rows = %d, want 120", rows)
	}
}

type stubReviewer struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubReviewer) Review(context.Context, pattern.Signal, []kline.Kline) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func TestFallbackReviewer(t *testing.T) {
	ctx := context.Background()
	failing := &stubReviewer{err: errors.New("quota exceeded")}
	ok := &stubReviewer{verdict: Verdict{Provider: "openai", Decision: DecisionRecommend}}
	unused := &stubReviewer{verdict: Verdict{Provider: "gemini"}}

	f := NewFallbackReviewer(zerolog.Nop(), nil, failing, ok, unused)
	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	v, err := f.Review(ctx, testSignal(), testKlines(5))
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if v.Provider != "openai" || v.Decision != DecisionRecommend {
		t.Errorf("verdict = %+v", v)
	}
	if failing.calls != 1 || ok.calls != 1 || unused.calls != 0 {
		t.Errorf("calls = %d/%d/%d", failing.calls, ok.calls, unused.calls)
	}

	allFail := NewFallbackReviewer(zerolog.Nop(), failing, &stubReviewer{err: ErrEmptyResponse})
	if _, err := allFail.Review(ctx, testSignal(), nil); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want wrapped ErrEmptyResponse", err)
	}

	if _, err := NewFallbackReviewer(zerolog.Nop()).Review(ctx, testSignal(), nil); !errors.Is(err, ErrNoReviewer) {
		t.Errorf("err = %v, want ErrNoReviewer", err)
	}
}
