package review

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/pattern"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiReviewer reviews signals with the Gemini API.
type GeminiReviewer struct {
	client  *genai.Client
	model   string
	candles int
}

var _ Reviewer = (*GeminiReviewer)(nil)

// GeminiOption customises the genai client config.
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at another API host.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = url
	}
}

// NewGeminiReviewer creates a Gemini reviewer.
func NewGeminiReviewer(ctx context.Context, apiKey, model string, candles int, opts ...GeminiOption) (*GeminiReviewer, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if candles <= 0 {
		candles = DefaultCandles
	}
	return &GeminiReviewer{client: client, model: model, candles: candles}, nil
}

func (g *GeminiReviewer) Review(ctx context.Context, sig pattern.Signal, klines []kline.Kline) (Verdict, error) {
	prompt, err := BuildPrompt(sig, klines, g.candles)
	if err != nil {
		return Verdict{}, err
	}

	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt}}},
		Temperature:       &temperature,
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return Verdict{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Verdict{}, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return Verdict{Provider: "gemini", Decision: ParseDecision(text), Raw: text}, nil
}
