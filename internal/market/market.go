// Package market is the kline fetch boundary of the scanner: a Fetcher
// interface, a Redis-backed caching decorator and series construction.
package market

import (
	"context"
	"fmt"

	"example.com/binance-pattern-signals/internal/kline"
)

// Fetcher returns up to limit klines for symbol and interval, oldest first.
// *binance.RESTClient implements it.
type Fetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]kline.Kline, error)
}

// FetchSeries fetches klines and builds the immutable series the detectors
// consume.
func FetchSeries(ctx context.Context, f Fetcher, symbol, interval string, limit int) (*kline.Series, error) {
	klines, err := f.Klines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", symbol, interval, err)
	}
	s, err := kline.NewSeries(symbol, interval, klines)
	if err != nil {
		return nil, fmt.Errorf("series %s %s: %w", symbol, interval, err)
	}
	return s, nil
}
