// Package review asks an LLM to grade a detected signal against recent price
// action before it is sent out.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/pattern"
)

// Decision is the reviewer's entry verdict.
type Decision string

const (
	DecisionRecommend Decision = "recommend"
	DecisionReject    Decision = "reject"
	DecisionUncertain Decision = "uncertain"
)

var (
	// ErrNoReviewer is returned by a FallbackReviewer without reviewers.
	ErrNoReviewer = errors.New("review: no reviewer configured")
	// ErrEmptyResponse is returned when a provider answers without content.
	ErrEmptyResponse = errors.New("review: empty response")
)

// SystemPrompt frames every review request.
const SystemPrompt = "你是一位专业的量化交易分析师，只依据技术面判断市场。"

// Verdict is the outcome of one review.
type Verdict struct {
	Provider string   `json:"provider"`
	Decision Decision `json:"decision"`
	Raw      string   `json:"raw"`
}

// Reviewer grades a signal given the klines it was detected on.
type Reviewer interface {
	Review(ctx context.Context, sig pattern.Signal, klines []kline.Kline) (Verdict, error)
}

// FallbackReviewer tries each reviewer in order and returns the first success.
type FallbackReviewer struct {
	reviewers []Reviewer
	logger    zerolog.Logger
}

// NewFallbackReviewer creates a reviewer chain. Nil entries are skipped.
func NewFallbackReviewer(logger zerolog.Logger, reviewers ...Reviewer) *FallbackReviewer {
	f := &FallbackReviewer{logger: logger}
	for _, r := range reviewers {
		if r != nil {
			f.reviewers = append(f.reviewers, r)
		}
	}
	return f
}

// Len returns the number of chained reviewers.
func (f *FallbackReviewer) Len() int {
	return len(f.reviewers)
}

func (f *FallbackReviewer) Review(ctx context.Context, sig pattern.Signal, klines []kline.Kline) (Verdict, error) {
	if len(f.reviewers) == 0 {
		return Verdict{}, ErrNoReviewer
	}
	var errs []error
	for i, r := range f.reviewers {
		v, err := r.Review(ctx, sig, klines)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		if i < len(f.reviewers)-1 {
			f.logger.Warn().Err(err).Str("symbol", sig.Symbol).Msg("review: provider failed, falling back")
		}
	}
	return Verdict{}, fmt.Errorf("review: all providers failed: %w", errors.Join(errs...))
}

// ParseDecision extracts the entry verdict from a review answer. The answer
// to the third question wins; otherwise the whole text must name exactly one
// of the two verdicts.
func ParseDecision(text string) Decision {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#*- "))
		if isThirdAnswer(line) {
			if d := decide(line); d != DecisionUncertain {
				return d
			}
		}
	}
	return decide(text)
}

func isThirdAnswer(line string) bool {
	for _, p := range []string{"3)", "3）", "3.", "3、", "3:"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// echoed fragments of the question that name both verdicts
var questionEcho = strings.NewReplacer("Recommend/Reject", "", "推荐或拒绝", "")

func decide(s string) Decision {
	s = questionEcho.Replace(s)
	lower := strings.ToLower(s)
	rec := strings.Contains(lower, "recommend") || strings.Contains(s, "推荐")
	rej := strings.Contains(lower, "reject") || strings.Contains(s, "拒绝")
	switch {
	case rec && !rej:
		return DecisionRecommend
	case rej && !rec:
		return DecisionReject
	}
	return DecisionUncertain
}
