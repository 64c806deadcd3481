// Package binance fetches klines from the Binance REST and WebSocket APIs.
// Binance has better coverage of some historical ranges and serves as the
// backfill source for gaps in the Coinbase data.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"candlevault/pkg/candle"
	"candlevault/pkg/exchange"

	"golang.org/x/time/rate"
)

// MaxKlinesPerRequest is the Binance limit for one klines request.
const MaxKlinesPerRequest = 1000

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      exchange.RetryConfig
}

func NewClient(baseURL string, timeout time.Duration, requestsPerSecond float64) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 10),
		retry:      exchange.DefaultRetry,
	}
}

// GetKlines fetches 1m klines for symbol (e.g. "BTCUSDT") covering
// [start, end] inclusive, at most MaxKlinesPerRequest rows.
func (c *Client) GetKlines(ctx context.Context, symbol string, start, end time.Time) ([]candle.Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", "1m")
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(MaxKlinesPerRequest))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.baseURL, q.Encode())

	resp, err := exchange.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("binance klines %s: HTTP %d: %s", symbol, resp.StatusCode, body)
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return ParseKlines(rows)
}

// ParseKlines converts raw Binance kline rows to candles. A kline row is
// [openTimeMs, open, high, low, close, volume, closeTimeMs, ...] where the
// prices are JSON strings. Incomplete rows are skipped.
func ParseKlines(rows [][]json.RawMessage) ([]candle.Candle, error) {
	out := make([]candle.Candle, 0, len(rows))

	for _, row := range rows {
		if len(row) < 6 {
			continue // skip incomplete row
		}

		var openTimeMs int64
		if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
			continue
		}

		fields := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				ok = false
				break
			}
			fields[i] = v
		}
		if !ok {
			continue
		}

		out = append(out, candle.Candle{
			Time:   openTimeMs / 1000,
			Open:   fields[0],
			High:   fields[1],
			Low:    fields[2],
			Close:  fields[3],
			Volume: fields[4],
		})
	}

	return out, nil
}
