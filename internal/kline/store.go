package kline

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SymbolKlines holds kline data for a single trading pair.
type SymbolKlines struct {
	Symbol   string
	Current  *Kline  // Current forming kline
	History  []Kline // Closed klines (oldest first, newest last)
	LastSeen time.Time
}

// Store keeps a rolling window of closed klines per symbol, fed by the
// exchange kline stream.
type Store struct {
	mu       sync.RWMutex
	klines   map[string]*SymbolKlines
	interval time.Duration
	maxCount int
	onClose  func(symbol string, klines []Kline)
	log      zerolog.Logger
	now      func() time.Time
}

// DefaultKlineCount matches the REST fetch limit used by the scanner.
const DefaultKlineCount = 120

// NewStore creates a new kline store.
// interval: kline interval (e.g., 15 * time.Minute)
// maxCount: maximum number of closed klines to keep per symbol
func NewStore(interval time.Duration, maxCount int, logger zerolog.Logger) *Store {
	if maxCount <= 0 {
		logger.Warn().Int("max_count", maxCount).Int("default", DefaultKlineCount).Msg("invalid kline count, using default")
		maxCount = DefaultKlineCount
	}
	return &Store{
		klines:   make(map[string]*SymbolKlines),
		interval: interval,
		maxCount: maxCount,
		log:      logger.With().Str("component", "kline_store").Logger(),
		now:      time.Now,
	}
}

// SetOnClose sets the callback function called when a kline closes.
// The callback receives a deep copy snapshot whose last row is the freshly
// opened kline, so the just-closed kline sits at len-2.
func (s *Store) SetOnClose(fn func(symbol string, klines []Kline)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// getOrCreate returns the SymbolKlines for a symbol, creating if needed.
func (s *Store) getOrCreate(symbol string) *SymbolKlines {
	sk, ok := s.klines[symbol]
	if !ok {
		sk = &SymbolKlines{
			Symbol:  symbol,
			History: make([]Kline, 0, s.maxCount),
		}
		s.klines[symbol] = sk
	}
	return sk
}

// Seed replaces the closed history for a symbol, typically with a REST
// backfill. Unclosed klines in the input are ignored.
func (s *Store) Seed(symbol string, klines []Kline) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := s.getOrCreate(symbol)
	sk.History = sk.History[:0]
	for _, k := range klines {
		if !k.IsClosed {
			continue
		}
		k.Symbol = symbol
		sk.History = append(sk.History, k)
	}
	if len(sk.History) > s.maxCount {
		sk.History = append([]Kline(nil), sk.History[len(sk.History)-s.maxCount:]...)
	}
	sk.LastSeen = s.now()
	return len(sk.History)
}

// Update applies a stream kline. A forming kline replaces the current one;
// a closed kline is appended to history (or replaces the newest entry with the
// same open time) and triggers the close callback.
// Returns true if a kline was closed.
func (s *Store) Update(k Kline) bool {
	if k.Symbol == "" || k.Close <= 0 {
		return false
	}

	s.mu.Lock()

	sk := s.getOrCreate(k.Symbol)
	sk.LastSeen = s.now()

	if !k.IsClosed {
		cur := k
		sk.Current = &cur
		s.mu.Unlock()
		return false
	}

	if n := len(sk.History); n > 0 {
		last := sk.History[n-1]
		switch {
		case k.OpenTime.Equal(last.OpenTime):
			sk.History[n-1] = k
		case k.OpenTime.Before(last.OpenTime):
			s.mu.Unlock()
			s.log.Debug().Str("symbol", k.Symbol).Time("open_time", k.OpenTime).Msg("stale closed kline ignored")
			return false
		default:
			sk.History = append(sk.History, k)
		}
	} else {
		sk.History = append(sk.History, k)
	}

	// Maintain rolling window size
	if len(sk.History) > s.maxCount {
		sk.History = sk.History[len(sk.History)-s.maxCount:]
	}

	// Next kline opens at the last close
	forming := Kline{
		Symbol:   k.Symbol,
		Open:     k.Close,
		High:     k.Close,
		Low:      k.Close,
		Close:    k.Close,
		OpenTime: k.OpenTime.Add(s.interval),
	}
	sk.Current = &forming

	snapshot := make([]Kline, len(sk.History), len(sk.History)+1)
	copy(snapshot, sk.History)
	snapshot = append(snapshot, forming)

	onClose := s.onClose
	s.mu.Unlock()

	// Call callback outside lock to avoid deadlock
	if onClose != nil {
		go onClose(k.Symbol, snapshot)
	}
	return true
}

// GetKlines returns a copy of the closed klines of symbol, oldest first.
func (s *Store) GetKlines(symbol string) ([]Kline, bool) {
	return s.view(symbol, false)
}

// GetCurrentKline returns a copy of the forming kline of symbol.
func (s *Store) GetCurrentKline(symbol string) (*Kline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.klines[symbol]
	if !ok || sk.Current == nil {
		return nil, false
	}
	cur := *sk.Current
	return &cur, true
}

// GetAllKlines returns the closed klines followed by the forming one.
func (s *Store) GetAllKlines(symbol string) ([]Kline, bool) {
	return s.view(symbol, true)
}

func (s *Store) view(symbol string, withCurrent bool) ([]Kline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.klines[symbol]
	if !ok {
		return nil, false
	}
	n := len(sk.History)
	if withCurrent && sk.Current != nil {
		n++
	}
	if n == 0 {
		return nil, false
	}
	out := make([]Kline, 0, n)
	out = append(out, sk.History...)
	if withCurrent && sk.Current != nil {
		out = append(out, *sk.Current)
	}
	return out, true
}

// CleanupStale drops symbols without an update for longer than maxAge and
// returns how many were dropped.
func (s *Store) CleanupStale(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for symbol, sk := range s.klines {
		if sk.LastSeen.Before(cutoff) {
			delete(s.klines, symbol)
			removed++
		}
	}
	return removed
}

// SymbolCount returns the number of symbols being tracked.
func (s *Store) SymbolCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.klines)
}

// KlineCount returns the number of closed klines for a symbol.
func (s *Store) KlineCount(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, ok := s.klines[symbol]
	if !ok {
		return 0
	}
	return len(sk.History)
}

// StoreStats contains statistics about the kline store.
type StoreStats struct {
	Enabled     bool          `json:"enabled"`
	SymbolCount int           `json:"symbol_count"`
	Interval    string        `json:"interval"`
	MaxCount    int           `json:"max_count"`
	Symbols     []SymbolStats `json:"symbols,omitempty"`
}

// SymbolStats contains statistics for a single symbol.
type SymbolStats struct {
	Symbol       string    `json:"symbol"`
	KlineCount   int       `json:"kline_count"`
	HasCurrent   bool      `json:"has_current"`
	LastSeen     time.Time `json:"last_seen"`
	CurrentOpen  float64   `json:"current_open,omitempty"`
	CurrentClose float64   `json:"current_close,omitempty"`
}

// Stats reports per-symbol window sizes, sorted by symbol.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		Enabled:     true,
		SymbolCount: len(s.klines),
		Interval:    s.interval.String(),
		MaxCount:    s.maxCount,
		Symbols:     make([]SymbolStats, 0, len(s.klines)),
	}
	for symbol, sk := range s.klines {
		ss := SymbolStats{Symbol: symbol, KlineCount: len(sk.History), LastSeen: sk.LastSeen}
		if cur := sk.Current; cur != nil {
			ss.HasCurrent = true
			ss.CurrentOpen, ss.CurrentClose = cur.Open, cur.Close
		}
		stats.Symbols = append(stats.Symbols, ss)
	}
	sort.Slice(stats.Symbols, func(i, j int) bool { return stats.Symbols[i].Symbol < stats.Symbols[j].Symbol })
	return stats
}
