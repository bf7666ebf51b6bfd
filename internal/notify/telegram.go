package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultTelegramAPI is the Telegram Bot API host.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig holds Telegram configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	APIBase  string
}

// TelegramNotifier sends notifications through a Telegram bot.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a Telegram notifier. It is disabled unless both
// token and chat id are set.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	base := config.APIBase
	if base == "" {
		base = DefaultTelegramAPI
	}
	return &TelegramNotifier{
		botToken: config.BotToken,
		chatID:   config.ChatID,
		apiBase:  strings.TrimRight(base, "/"),
		client:   &http.Client{},
	}
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) IsEnabled() bool {
	return t.botToken != "" && t.chatID != ""
}

func (t *TelegramNotifier) Send(ctx context.Context, n *Notification) error {
	if !t.IsEnabled() {
		return nil
	}

	text := n.Message
	if n.Title != "" {
		text = fmt.Sprintf("*%s*\n\n%s", n.Title, n.Message)
	}
	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}
