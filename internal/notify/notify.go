// Package notify delivers signal alerts to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/metrics"
	"example.com/binance-pattern-signals/internal/pattern"
)

// Notification is one outgoing message.
type Notification struct {
	Title     string
	Message   string
	Symbol    string
	Direction pattern.Direction
	Timestamp time.Time
}

// Notifier is a single delivery channel.
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
	Name() string
	IsEnabled() bool
}

// ErrNoNotifier is returned when no notifier is enabled.
var ErrNoNotifier = errors.New("notify: no notifier enabled")

// Manager fans a notification out to every enabled notifier.
type Manager struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewManager creates a manager. Each delivery is bounded by timeout.
func NewManager(timeout time.Duration, logger zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{timeout: timeout, logger: logger}
}

// AddNotifier registers a notifier.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Enabled reports whether at least one notifier can deliver.
func (m *Manager) Enabled() bool {
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			return true
		}
	}
	return false
}

// Send delivers n to every enabled notifier and joins their errors.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	var errs []error
	sent := 0
	for _, nt := range m.notifiers {
		if !nt.IsEnabled() {
			continue
		}
		sent++
		sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := nt.Send(sendCtx, n)
		cancel()
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(nt.Name(), "error").Inc()
			m.logger.Warn().Err(err).Str("notifier", nt.Name()).Str("symbol", n.Symbol).Msg("notify: delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", nt.Name(), err))
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(nt.Name(), "ok").Inc()
	}
	if sent == 0 {
		return ErrNoNotifier
	}
	return errors.Join(errs...)
}

// SendText delivers a free-form message.
func (m *Manager) SendText(ctx context.Context, text string) error {
	return m.Send(ctx, &Notification{Message: text, Timestamp: time.Now()})
}

// SendSignal formats and delivers a signal alert. note is appended as is.
func (m *Manager) SendSignal(ctx context.Context, sig pattern.Signal, note string) error {
	return m.Send(ctx, &Notification{
		Title:     SignalTitle(sig),
		Message:   FormatSignal(sig, note),
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Timestamp: time.Now(),
	})
}

// SignalTitle renders the one-line headline of a signal.
func SignalTitle(sig pattern.Signal) string {
	emoji := "🟢"
	side := "做多"
	if sig.Direction == pattern.DirectionShort {
		emoji = "🔴"
		side = "做空"
	}
	name, ok := pattern.DisplayNames[sig.SignalType]
	if !ok {
		name = string(sig.SignalType)
	}
	return fmt.Sprintf("%s %s %s %s %s", emoji, sig.Symbol, sig.Interval, name, side)
}

// FormatSignal renders the alert body.
func FormatSignal(sig pattern.Signal, note string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "入场: %s\n止损: %s\n止盈: %s (%sR)\n",
		price(sig.EntryPrice), price(sig.StopLoss), price(sig.TakeProfit), price(sig.TPMultiple))
	if sig.RSI != nil {
		fmt.Fprintf(&b, "RSI: %.2f\n", *sig.RSI)
	}
	if len(sig.Reasons) > 0 {
		fmt.Fprintf(&b, "依据: %s\n", strings.Join(sig.Reasons, ", "))
	}
	if sig.KlineTime > 0 {
		fmt.Fprintf(&b, "K线: %s UTC\n", time.UnixMilli(sig.KlineTime).UTC().Format("2006-01-02 15:04"))
	}
	if note = strings.TrimSpace(note); note != "" {
		b.WriteString("\n")
		b.WriteString(note)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func price(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
