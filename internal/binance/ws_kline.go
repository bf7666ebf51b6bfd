package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"example.com/binance-pattern-signals/internal/kline"
)

const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

// KlineEvent K线推送事件
type KlineEvent struct {
	Stream    string      // 流名称, 如 btcusdt@kline_15m
	EventTime int64       // 事件时间
	Interval  string      // K线周期
	Kline     kline.Kline // K线数据, IsClosed 表示是否已收盘
}

// UnmarshalJSON accepts both the combined-stream envelope and a bare
// kline payload.
func (e *KlineEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	if inner, ok := raw["data"].(map[string]any); ok {
		if s, ok := raw["stream"].(string); ok {
			e.Stream = s
		}
		raw = inner
	}

	k, ok := raw["k"].(map[string]any)
	if !ok {
		return fmt.Errorf("binance: kline event without k payload")
	}

	e.EventTime = parseIntValue(raw["E"])
	symbol, _ := k["s"].(string)
	if symbol == "" {
		symbol, _ = raw["s"].(string)
	}
	e.Interval, _ = k["i"].(string)
	closed, _ := k["x"].(bool)

	e.Kline = kline.Kline{
		Symbol:    symbol,
		OpenTime:  time.UnixMilli(parseIntValue(k["t"])).UTC(),
		CloseTime: time.UnixMilli(parseIntValue(k["T"])).UTC(),
		Open:      parseFloatValue(k["o"]),
		High:      parseFloatValue(k["h"]),
		Low:       parseFloatValue(k["l"]),
		Close:     parseFloatValue(k["c"]),
		Volume:    parseFloatValue(k["v"]),
		IsClosed:  closed,
	}
	return nil
}

// KlineStreamName returns the stream name for symbol and interval.
func KlineStreamName(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

// DialKlineStreams 订阅多个交易对的K线推送
func DialKlineStreams(ctx context.Context, baseURL string, streams []string) (*websocket.Conn, *http.Response, error) {
	if len(streams) == 0 {
		return nil, nil, fmt.Errorf("binance: no streams to subscribe")
	}
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	url := baseURL + "?streams=" + strings.Join(streams, "/")
	return d.DialContext(ctx, url, nil)
}
