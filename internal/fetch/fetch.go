// Package fetch assembles yearly 1-minute candle files from the exchange
// REST APIs.
package fetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"candlevault/pkg/candle"
	"candlevault/pkg/exchange/coinbase"

	"go.uber.org/zap"
)

const granularity = 60 // 1 minute, in seconds

// window is one fetchable slice of a year, at most 300 minutes.
type window struct {
	start int64
	end   int64 // exclusive
}

// YearFetcher downloads a full year of 1-minute candles from Coinbase on a
// bounded worker pool.
type YearFetcher struct {
	client  *coinbase.Client
	workers int
	logger  *zap.Logger
}

func NewYearFetcher(client *coinbase.Client, workers int, logger *zap.Logger) *YearFetcher {
	if workers <= 0 {
		workers = 1
	}
	return &YearFetcher{client: client, workers: workers, logger: logger}
}

// FetchYear fetches every 1-minute candle of the given UTC year for
// product. For the current year it stops at the current minute. Holes
// inside successfully fetched windows are filled with zero-volume copies of
// the previous candle; windows that failed outright are left as gaps for
// the backfill step. failed reports how many windows could not be fetched.
func (f *YearFetcher) FetchYear(ctx context.Context, product string, year int) (candles []candle.Candle, failed int, err error) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)

	now := time.Now().UTC().Truncate(time.Minute)
	if end.After(now) {
		end = now
	}
	if !start.Before(end) {
		return nil, 0, nil
	}

	windows := splitWindows(start.Unix(), end.Unix(), granularity*coinbase.MaxCandlesPerRequest)

	f.logger.Info("fetching year",
		zap.String("product", product),
		zap.Int("year", year),
		zap.Int("windows", len(windows)),
		zap.Int("workers", f.workers))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[int64][]candle.Candle, len(windows))
	)

	sem := make(chan struct{}, f.workers)

	for _, w := range windows {
		w := w
		sem <- struct{}{}
		wg.Add(1)

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			raw, err := f.client.GetCandles(ctx, product, granularity,
				time.Unix(w.start, 0).UTC(), time.Unix(w.end, 0).UTC())
			if err != nil {
				f.logger.Warn("window fetch failed",
					zap.String("product", product),
					zap.Int64("start", w.start),
					zap.Error(err))

				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			filled := FillMissing(raw, w.start, w.end, granularity)

			mu.Lock()
			results[w.start] = filled
			mu.Unlock()
		}()
	}

	wg.Wait()

	starts := make([]int64, 0, len(results))
	for s := range results {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	for _, s := range starts {
		candles = append(candles, results[s]...)
	}

	f.logger.Info("year fetched",
		zap.String("product", product),
		zap.Int("year", year),
		zap.Int("candles", len(candles)),
		zap.Int("failed_windows", failed))

	return candles, failed, nil
}

func splitWindows(start, end, size int64) []window {
	var windows []window
	for cur := start; cur < end; cur += size {
		stop := cur + size
		if stop > end {
			stop = end
		}
		windows = append(windows, window{start: cur, end: stop})
	}
	return windows
}
