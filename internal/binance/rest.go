package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/binance-pattern-signals/internal/kline"
)

const (
	DefaultRESTBaseURL = "https://api.binance.com"
	MaxKlineLimit      = 1000
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("binance: http %d: %s", e.StatusCode, e.Body)
}

// RESTClient fetches klines from /api/v3/klines.
type RESTClient struct {
	BaseURL    string
	HTTPClient *http.Client

	now func() time.Time
}

// NewRESTClient creates a client with a proxy-aware transport.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if baseURL == "" {
		baseURL = DefaultRESTBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		now: time.Now,
	}
}

// Klines returns up to limit klines, oldest first. The last row is usually
// the still-forming candle and is marked IsClosed=false.
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]kline.Kline, error) {
	if limit <= 0 || limit > MaxKlineLimit {
		return nil, fmt.Errorf("binance: limit %d out of range [1, %d]", limit, MaxKlineLimit)
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return parseKlines(symbol, body, c.now())
}

func parseKlines(symbol string, body []byte, now time.Time) ([]kline.Kline, error) {
	var rows [][]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("binance: parse klines: %w", err)
	}

	out := make([]kline.Kline, 0, len(rows))
	for i, raw := range rows {
		if len(raw) < 7 {
			return nil, fmt.Errorf("binance: parse klines: row %d has %d fields", i, len(raw))
		}
		closeTime := time.UnixMilli(parseIntValue(raw[6])).UTC()
		out = append(out, kline.Kline{
			Symbol:    strings.ToUpper(symbol),
			OpenTime:  time.UnixMilli(parseIntValue(raw[0])).UTC(),
			Open:      parseFloatValue(raw[1]),
			High:      parseFloatValue(raw[2]),
			Low:       parseFloatValue(raw[3]),
			Close:     parseFloatValue(raw[4]),
			Volume:    parseFloatValue(raw[5]),
			CloseTime: closeTime,
			IsClosed:  closeTime.Before(now),
		})
	}
	return out, nil
}
