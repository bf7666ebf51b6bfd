// Package httpapi serves the signal history, on-demand scans, kline store
// stats and the manual notification route.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/metrics"
	"example.com/binance-pattern-signals/internal/notify"
	"example.com/binance-pattern-signals/internal/pattern"
	"example.com/binance-pattern-signals/internal/scanner"
	signalpkg "example.com/binance-pattern-signals/internal/signal"
)

// ScanRunner runs an on-demand scan. *scanner.Scanner implements it.
type ScanRunner interface {
	ScanLimit(ctx context.Context, t scanner.Target, limit int) scanner.Result
}

// TextSender forwards a free-form message. *notify.Manager implements it.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

type Server struct {
	History         *signalpkg.History
	Scanner         ScanRunner
	KlineStore      *kline.Store
	Notifier        TextSender
	AllowedOrigins  []string
	DefaultInterval string
	Logger          zerolog.Logger
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/signals", s.handleSignals)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/klines", s.handleKlines)
	mux.HandleFunc("/api/klines/stats", s.handleKlineStats)
	mux.HandleFunc("/api/send_message", s.handleSendMessage)
	mux.HandleFunc("/api/runtime", s.handleRuntime)
	mux.Handle("/metrics", metrics.Handler())
	return s.cors(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// handleSignals returns emitted signals, newest first.
// GET /api/signals?symbol=BTCUSDT&interval=15m&signal_type=hammer&direction=long&since=1700000000000&limit=100
func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.History == nil {
		writeJSON(w, http.StatusOK, []pattern.Signal{})
		return
	}

	q := r.URL.Query()
	opts := signalpkg.QueryOptions{
		Symbol:     strings.ToUpper(q.Get("symbol")),
		Interval:   q.Get("interval"),
		SignalType: pattern.SignalType(q.Get("signal_type")),
		Direction:  pattern.Direction(q.Get("direction")),
		Limit:      100,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		opts.Since = since
	}

	writeJSON(w, http.StatusOK, s.History.Query(opts))
}

// parseSince accepts unix milliseconds or RFC3339.
func parseSince(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}

// handleScan runs the pipeline for one symbol now.
// GET /api/scan?symbol=BTCUSDT&interval=15m&limit=120
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}

	q := r.URL.Query()
	symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter required")
		return
	}
	interval := q.Get("interval")
	if interval == "" {
		interval = s.DefaultInterval
	}
	if interval == "" {
		interval = "15m"
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 2 and 1000")
			return
		}
		limit = n
	}

	res := s.Scanner.ScanLimit(r.Context(), scanner.Target{Symbol: symbol, Interval: interval}, limit)
	if res.Error != "" {
		writeJSON(w, http.StatusBadGateway, pattern.ErrorSignal(symbol, interval, errors.New(res.Error)))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleKlines returns the stored klines for a symbol.
// GET /api/klines?symbol=BTCUSDT
func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.KlineStore == nil {
		writeJSON(w, http.StatusOK, []kline.Kline{})
		return
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter required")
		return
	}
	klines, ok := s.KlineStore.GetAllKlines(symbol)
	if !ok {
		klines = []kline.Kline{}
	}
	writeJSON(w, http.StatusOK, klines)
}

// handleKlineStats returns statistics about kline data in memory.
// GET /api/klines/stats
func (s *Server) handleKlineStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.KlineStore == nil {
		writeJSON(w, http.StatusOK, kline.StoreStats{Enabled: false})
		return
	}
	writeJSON(w, http.StatusOK, s.KlineStore.Stats())
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// handleSendMessage forwards a message to the configured notifiers.
// POST /api/send_message {"message": "..."}
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifier not configured")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if err := s.Notifier.SendText(r.Context(), req.Message); err != nil {
		s.Logger.Warn().Err(err).Msg("send_message failed")
		status := http.StatusBadGateway
		if errors.Is(err, notify.ErrNoNotifier) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "send message successful"})
}

// RuntimeStats contains runtime statistics.
type RuntimeStats struct {
	Goroutines   int     `json:"goroutines"`
	HeapMB       float64 `json:"heap_mb"`
	SysMB        float64 `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
	KlineSymbols int     `json:"kline_symbols"`
	Signals      int     `json:"signals"`
	Uptime       string  `json:"uptime"`
	Version      string  `json:"version"`
}

// Version can be set at build time via -ldflags
var Version = "dev"

var startTime = time.Now()

// handleRuntime returns runtime statistics.
// GET /api/runtime
func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := RuntimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		SysMB:      float64(m.Sys) / 1024 / 1024,
		NumGC:      m.NumGC,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Version:    Version,
	}
	if s.KlineStore != nil {
		stats.KlineSymbols = s.KlineStore.SymbolCount()
	}
	if s.History != nil {
		stats.Signals = s.History.Count()
	}
	writeJSON(w, http.StatusOK, stats)
}

func ParseAllowedOrigins(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{"*"}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowed := s.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowOrigin := ""
		for _, o := range allowed {
			if o == "*" {
				allowOrigin = "*"
				break
			}
			if o == origin {
				allowOrigin = origin
				break
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
