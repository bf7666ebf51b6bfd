package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/pattern"
)

const (
	SiliconFlowURL   = "https://api.siliconflow.cn/v1/chat/completions"
	OpenAIURL        = "https://api.openai.com/v1/chat/completions"
	SiliconFlowModel = "Qwen/Qwen2.5-72B-Instruct"
	OpenAIModel      = "gpt-4o-mini"
)

// ChatConfig configures an OpenAI compatible chat completions reviewer.
type ChatConfig struct {
	Provider    string
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Candles     int
	Timeout     time.Duration
}

// ChatReviewer reviews signals through a chat completions endpoint.
type ChatReviewer struct {
	config     ChatConfig
	httpClient *http.Client
}

var _ Reviewer = (*ChatReviewer)(nil)

// NewChatReviewer creates a chat reviewer. Zero values fall back to a 60s
// timeout, temperature 0.1 and 1024 max tokens.
func NewChatReviewer(cfg ChatConfig) *ChatReviewer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Candles <= 0 {
		cfg.Candles = DefaultCandles
	}
	return &ChatReviewer{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewSiliconFlowReviewer returns a reviewer for the SiliconFlow API.
func NewSiliconFlowReviewer(apiKey, model string, candles int, timeout time.Duration) *ChatReviewer {
	if model == "" {
		model = SiliconFlowModel
	}
	return NewChatReviewer(ChatConfig{
		Provider: "siliconflow",
		Endpoint: SiliconFlowURL,
		APIKey:   apiKey,
		Model:    model,
		Candles:  candles,
		Timeout:  timeout,
	})
}

// NewOpenAIReviewer returns a reviewer for the OpenAI API.
func NewOpenAIReviewer(apiKey, model string, candles int, timeout time.Duration) *ChatReviewer {
	if model == "" {
		model = OpenAIModel
	}
	return NewChatReviewer(ChatConfig{
		Provider: "openai",
		Endpoint: OpenAIURL,
		APIKey:   apiKey,
		Model:    model,
		Candles:  candles,
		Timeout:  timeout,
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *ChatReviewer) Review(ctx context.Context, sig pattern.Signal, klines []kline.Kline) (Verdict, error) {
	prompt, err := BuildPrompt(sig, klines, c.config.Candles)
	if err != nil {
		return Verdict{}, err
	}
	text, err := c.complete(ctx, prompt)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Provider: c.config.Provider, Decision: ParseDecision(text), Raw: text}, nil
}

func (c *ChatReviewer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", c.config.Provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", c.config.Provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: send request: %w", c.config.Provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", c.config.Provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: status %d: %s", c.config.Provider, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.config.Provider, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s: api error: %s - %s", c.config.Provider, out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", c.config.Provider, ErrEmptyResponse)
	}
	return out.Choices[0].Message.Content, nil
}
