// Package binance talks to the Binance spot REST and websocket APIs.
package binance

import (
	"encoding/json"
	"strconv"
)

// Binance encodes prices as strings and times as numbers, but not
// consistently across endpoints, so both forms are accepted.

func parseFloatValue(v any) float64 {
	switch val := v.(type) {
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	}
	return 0
}

func parseIntValue(v any) int64 {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return int64(f)
	case string:
		i, _ := strconv.ParseInt(val, 10, 64)
		return i
	case float64:
		return int64(val)
	}
	return 0
}
