// Package coinbase fetches historical candles from the Coinbase Exchange
// REST API, the primary source of the dataset.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"candlevault/pkg/candle"
	"candlevault/pkg/exchange"

	"golang.org/x/time/rate"
)

// MaxCandlesPerRequest is the Coinbase limit for one candles request.
const MaxCandlesPerRequest = 300

const timeParamLayout = "2006-01-02T15:04:05Z"

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

// GetCandles fetches candles for product (e.g. "BTC-USD") between start and
// end at the given granularity in seconds. End is exclusive. The response
// is returned sorted by time ascending; Coinbase reports rows as
// [time, low, high, open, close, volume], newest first.
func (c *Client) GetCandles(ctx context.Context, product string, granularity int64, start, end time.Time) ([]candle.Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("start", start.UTC().Format(timeParamLayout))
	q.Set("end", end.UTC().Format(timeParamLayout))
	q.Set("granularity", fmt.Sprintf("%d", granularity))

	endpoint := fmt.Sprintf("%s/products/%s/candles?%s", c.baseURL, product, q.Encode())

	resp, err := exchange.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("coinbase candles %s: %w", product, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coinbase candles %s: HTTP %d: %s", product, resp.StatusCode, body)
	}

	var rows [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candles := make([]candle.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue // skip incomplete row
		}
		candles = append(candles, candle.Candle{
			Time:   int64(row[0]),
			Low:    row[1],
			High:   row[2],
			Open:   row[3],
			Close:  row[4],
			Volume: row[5],
		})
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })
	return candles, nil
}

// HasDailyData reports whether the product has any daily candle on the
// given UTC date. Used to probe backwards for an asset's listing date.
func (c *Client) HasDailyData(ctx context.Context, product string, date time.Time) (bool, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	candles, err := c.GetCandles(ctx, product, 86400, day, day.Add(24*time.Hour))
	if err != nil {
		return false, err
	}
	return len(candles) > 0, nil
}

// FindFirstDate walks backwards from the given date one day at a time and
// returns the earliest date for which the product has candle data.
func (c *Client) FindFirstDate(ctx context.Context, product string, from time.Time) (time.Time, error) {
	const maxLookbackDays = 365 * 10

	current := from.UTC().Truncate(24 * time.Hour)
	for i := 0; i < maxLookbackDays; i++ {
		has, err := c.HasDailyData(ctx, product, current)
		if err != nil {
			return time.Time{}, err
		}
		if !has {
			return current.Add(24 * time.Hour), nil
		}
		current = current.Add(-24 * time.Hour)
	}
	return time.Time{}, fmt.Errorf("no start of data found within %d days", maxLookbackDays)
}
