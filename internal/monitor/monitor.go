// Package monitor keeps the kline store current from the exchange kline
// stream.
package monitor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/binance"
	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/market"
	"example.com/binance-pattern-signals/internal/metrics"
)

// Config holds configuration for the monitor.
type Config struct {
	StreamURL      string
	Symbols        []string
	Interval       string
	Store          *kline.Store
	HeartbeatEvery time.Duration
	Logger         zerolog.Logger
}

// Monitor subscribes to the kline streams of configured symbols and feeds
// every event into the store.
type Monitor struct {
	streamURL      string
	symbols        []string
	interval       string
	store          *kline.Store
	heartbeatEvery time.Duration
	log            zerolog.Logger

	events  int64
	closes  int64
	badMsgs int64
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	return &Monitor{
		streamURL:      cfg.StreamURL,
		symbols:        cfg.Symbols,
		interval:       cfg.Interval,
		store:          cfg.Store,
		heartbeatEvery: cfg.HeartbeatEvery,
		log:            cfg.Logger.With().Str("component", "monitor").Logger(),
	}
}

// Seed backfills the store with closed klines from REST before streaming.
// Symbols that fail are logged and skipped.
func (m *Monitor) Seed(ctx context.Context, f market.Fetcher, limit int) {
	for _, sym := range m.symbols {
		ctxFetch, cancel := context.WithTimeout(ctx, 15*time.Second)
		klines, err := f.Klines(ctxFetch, sym, m.interval, limit)
		cancel()
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", sym).Msg("seed failed")
			continue
		}
		n := m.store.Seed(sym, klines)
		m.log.Info().Str("symbol", sym).Int("klines", n).Msg("store seeded")
	}
}

// Streams returns the subscribed stream names.
func (m *Monitor) Streams() []string {
	out := make([]string, len(m.symbols))
	for i, sym := range m.symbols {
		out[i] = binance.KlineStreamName(sym, m.interval)
	}
	return out
}

// Run keeps a stream connection open until ctx is done, reconnecting with
// exponential backoff.
func (m *Monitor) Run(ctx context.Context) {
	backoff := 1 * time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := binance.DialKlineStreams(ctx, m.streamURL, m.Streams())
		if err != nil {
			m.log.Warn().Err(err).Dur("backoff", backoff).Msg("ws dial failed")
			if !sleepContext(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}

		m.log.Info().Int("streams", len(m.symbols)).Msg("ws connected")
		backoff = 1 * time.Second

		err = m.readLoop(ctx, conn)
		_ = conn.Close()
		if err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("ws read loop exit")
		}

		if !sleepContext(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	if m.heartbeatEvery > 0 {
		go m.heartbeat(ctx, done)
	}

	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// unblock ReadMessage
				_ = conn.SetReadDeadline(time.Now())
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
			}
		}
	}()

	sampled := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		ev, err := decodeKlineEvent(b)
		if err != nil {
			atomic.AddInt64(&m.badMsgs, 1)
			if sampled < 3 {
				sampled++
				head := b
				if len(head) > 64 {
					head = head[:64]
				}
				m.log.Debug().Err(err).Int("len", len(b)).Str("head", fmt.Sprintf("%q", head)).Msg("ws message skipped")
			}
			continue
		}
		m.onEvent(ev)
	}
}

func (m *Monitor) heartbeat(ctx context.Context, done <-chan struct{}) {
	t := time.NewTicker(m.heartbeatEvery)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			m.log.Info().
				Int64("events", atomic.SwapInt64(&m.events, 0)).
				Int64("closes", atomic.SwapInt64(&m.closes, 0)).
				Int64("bad_msgs", atomic.SwapInt64(&m.badMsgs, 0)).
				Int("symbols", m.store.SymbolCount()).
				Msg("ws heartbeat")
		}
	}
}

func (m *Monitor) onEvent(ev binance.KlineEvent) {
	atomic.AddInt64(&m.events, 1)
	if m.store.Update(ev.Kline) {
		atomic.AddInt64(&m.closes, 1)
		metrics.StreamClosesTotal.WithLabelValues(ev.Kline.Symbol).Inc()
	}
}

// decodeKlineEvent parses a stream message, inflating it first when the
// payload is compressed.
func decodeKlineEvent(b []byte) (binance.KlineEvent, error) {
	var ev binance.KlineEvent
	bb := cleanJSONBytes(b)
	if len(bb) > 0 && bb[0] == '{' {
		err := json.Unmarshal(bb, &ev)
		return ev, err
	}
	dec, ok := maybeDecompress(bb)
	if !ok {
		return ev, fmt.Errorf("monitor: undecodable message")
	}
	err := json.Unmarshal(cleanJSONBytes(dec), &ev)
	return ev, err
}

func cleanJSONBytes(b []byte) []byte {
	bb := bytes.TrimSpace(b)
	for len(bb) > 0 && bb[len(bb)-1] < 0x20 {
		bb = bb[:len(bb)-1]
	}
	return bb
}

func maybeDecompress(bb []byte) ([]byte, bool) {
	if len(bb) == 0 {
		return nil, false
	}

	if len(bb) >= 2 && bb[0] == 0x1f && bb[1] == 0x8b {
		if out, ok := decompressWith(func() (io.ReadCloser, error) {
			return gzip.NewReader(bytes.NewReader(bb))
		}); ok {
			return out, true
		}
	}

	if len(bb) >= 2 && bb[0] == 0x78 {
		if out, ok := decompressWith(func() (io.ReadCloser, error) {
			return zlib.NewReader(bytes.NewReader(bb))
		}); ok {
			return out, true
		}
	}

	return decompressWith(func() (io.ReadCloser, error) {
		return io.NopCloser(flate.NewReader(bytes.NewReader(bb))), nil
	})
}

func decompressWith(newReader func() (io.ReadCloser, error)) ([]byte, bool) {
	r, err := newReader()
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, 10<<20))
	if err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
