package review

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatReviewer(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"1) 是\n2) Up\n3) Recommend"}}]}`))
	}))
	defer srv.Close()

	r := NewChatReviewer(ChatConfig{Provider: "siliconflow", Endpoint: srv.URL, APIKey: "sk-test", Model: SiliconFlowModel})
	v, err := r.Review(context.Background(), testSignal(), testKlines(10))
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if v.Provider != "siliconflow" || v.Decision != DecisionRecommend || !strings.Contains(v.Raw, "Recommend") {
		t.Errorf("verdict = %+v", v)
	}

	if got.Model != SiliconFlowModel || got.Temperature != 0.1 || got.MaxTokens != 1024 {
		t.Errorf("request = %s/%v/%d", got.Model, got.Temperature, got.MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != SystemPrompt {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[1].Content, "最近10根K线") {
		t.Errorf("user prompt = %q", got.Messages[1].Content)
	}
}

func TestChatReviewer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"http status", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "status 401"},
		{"api error", http.StatusOK, `{"error":{"type":"invalid_request","message":"model not found"}}`, "model not found"},
		{"malformed", http.StatusOK, `not json`, "decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := NewChatReviewer(ChatConfig{Provider: "openai", Endpoint: srv.URL, Model: OpenAIModel})
			_, err := r.Review(context.Background(), testSignal(), testKlines(3))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestChatReviewer_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	r := NewChatReviewer(ChatConfig{Provider: "openai", Endpoint: srv.URL})
	if _, err := r.Review(context.Background(), testSignal(), nil); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestProviderConstructors(t *testing.T) {
	sf := NewSiliconFlowReviewer("k", "", 0, 0)
	if sf.config.Endpoint != SiliconFlowURL || sf.config.Model != SiliconFlowModel || sf.config.Candles != DefaultCandles {
		t.Errorf("siliconflow config = %+v", sf.config)
	}
	oa := NewOpenAIReviewer("k", "", 50, 0)
	if oa.config.Endpoint != OpenAIURL || oa.config.Model != OpenAIModel || oa.config.Candles != 50 {
		t.Errorf("openai config = %+v", oa.config)
	}
	if oa.httpClient.Timeout.Seconds() != 60 {
		t.Errorf("timeout = %v", oa.httpClient.Timeout)
	}
}
