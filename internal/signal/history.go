package signal

import (
	"sync"
	"time"

	"example.com/binance-pattern-signals/internal/pattern"
)

// DefaultHistoryMax is the default number of signals kept in memory.
const DefaultHistoryMax = 1000

// History keeps the most recent emitted signals in memory, oldest first.
type History struct {
	mu      sync.RWMutex
	signals []pattern.Signal
	maxSize int
}

// NewHistory creates a bounded history.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistoryMax
	}
	return &History{signals: make([]pattern.Signal, 0, maxSize), maxSize: maxSize}
}

// Add appends a signal, dropping the oldest beyond capacity.
func (h *History) Add(sig pattern.Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.signals = append(h.signals, sig)
	if len(h.signals) > h.maxSize {
		h.signals = h.signals[len(h.signals)-h.maxSize:]
	}
}

// Recent returns up to limit signals, newest first.
func (h *History) Recent(limit int) []pattern.Signal {
	return h.Query(QueryOptions{Limit: limit})
}

// QueryOptions filters History.Query. Zero fields match everything.
type QueryOptions struct {
	Symbol     string
	Interval   string
	SignalType pattern.SignalType
	Direction  pattern.Direction
	Since      time.Time // compared against the trigger kline open time
	Limit      int
}

// Query returns matching signals, newest first.
func (h *History) Query(opts QueryOptions) []pattern.Signal {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := []pattern.Signal{}
	for i := len(h.signals) - 1; i >= 0; i-- {
		sig := h.signals[i]

		if opts.Symbol != "" && sig.Symbol != opts.Symbol {
			continue
		}
		if opts.Interval != "" && sig.Interval != opts.Interval {
			continue
		}
		if opts.SignalType != "" && sig.SignalType != opts.SignalType {
			continue
		}
		if opts.Direction != "" && sig.Direction != opts.Direction {
			continue
		}
		if !opts.Since.IsZero() && time.UnixMilli(sig.KlineTime).Before(opts.Since) {
			continue
		}

		result = append(result, sig)
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result
}

// Count returns the number of signals in memory.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.signals)
}
