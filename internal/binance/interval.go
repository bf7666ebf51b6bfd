package binance

import (
	"fmt"
	"strconv"
	"time"
)

// IntervalDuration converts a kline interval such as 15m, 4h or 1w into a
// duration. Monthly klines have no fixed length and are rejected.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("binance: invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("binance: invalid interval %q", interval)
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("binance: unsupported interval %q", interval)
	}
	return time.Duration(n) * unit, nil
}
