package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"example.com/binance-pattern-signals/internal/pattern"
)

func TestHistory_AddAndRecent(t *testing.T) {
	h := NewHistory(3)
	for i := int64(1); i <= 5; i++ {
		h.Add(testSignal("BTCUSDT", pattern.SignalHammer, pattern.DirectionLong, i))
	}

	assert.Equal(t, 3, h.Count())
	recent := h.Recent(0)
	if assert.Len(t, recent, 3) {
		assert.Equal(t, int64(5), recent[0].KlineTime, "newest first")
		assert.Equal(t, int64(3), recent[2].KlineTime, "oldest kept")
	}
	assert.Len(t, h.Recent(2), 2)
}

func TestHistory_Query(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHistory(0)
	h.Add(testSignal("BTCUSDT", pattern.SignalHammer, pattern.DirectionLong, base.UnixMilli()))
	h.Add(testSignal("ETHUSDT", pattern.SignalBreakout123, pattern.DirectionShort, base.Add(time.Hour).UnixMilli()))
	h.Add(testSignal("BTCUSDT", pattern.SignalBreakout123, pattern.DirectionLong, base.Add(2*time.Hour).UnixMilli()))

	tests := []struct {
		name string
		opts QueryOptions
		want int
	}{
		{"all", QueryOptions{}, 3},
		{"symbol", QueryOptions{Symbol: "BTCUSDT"}, 2},
		{"type", QueryOptions{SignalType: pattern.SignalBreakout123}, 2},
		{"direction", QueryOptions{Direction: pattern.DirectionShort}, 1},
		{"since", QueryOptions{Since: base.Add(time.Hour)}, 2},
		{"limit", QueryOptions{Limit: 1}, 1},
		{"interval miss", QueryOptions{Interval: "1h"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, h.Query(tt.opts), tt.want)
		})
	}

	assert.NotNil(t, h.Query(QueryOptions{Symbol: "NONE"}), "empty result encodes as []")
}
