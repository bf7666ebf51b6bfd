package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DiscordNotifier posts notifications to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
}

var _ Notifier = (*DiscordNotifier)(nil)

// NewDiscordNotifier creates a Discord notifier. An empty URL disables it.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{webhookURL: webhookURL, client: &http.Client{}}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) IsEnabled() bool {
	return d.webhookURL != ""
}

func (d *DiscordNotifier) Send(ctx context.Context, n *Notification) error {
	if !d.IsEnabled() {
		return nil
	}

	content := n.Message
	if n.Title != "" {
		content = fmt.Sprintf("**%s**\n%s", n.Title, n.Message)
	}
	// Discord rejects content above 2000 characters.
	if r := []rune(content); len(r) > 2000 {
		content = string(r[:1997]) + "..."
	}
	body, err := json.Marshal(map[string]any{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send discord message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}
	return nil
}
