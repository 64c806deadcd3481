package fetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"candlevault/pkg/candle"
	"candlevault/pkg/dataset"
	"candlevault/pkg/exchange/binance"

	"go.uber.org/zap"
)

// Backfiller fills missing ranges from Binance, which covers some
// historical stretches the primary source is missing.
type Backfiller struct {
	client  *binance.Client
	workers int
	logger  *zap.Logger
}

func NewBackfiller(client *binance.Client, workers int, logger *zap.Logger) *Backfiller {
	if workers <= 0 {
		workers = 1
	}
	return &Backfiller{client: client, workers: workers, logger: logger}
}

// FetchRanges downloads the candles of every missing range for symbol.
// Ranges are inclusive on both ends (as produced by gap analysis). Holes
// within a chunk are zero-volume filled; chunks that fail are skipped and
// counted in failed.
func (b *Backfiller) FetchRanges(ctx context.Context, symbol string, ranges []dataset.Range) (candles []candle.Candle, failed int, err error) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	sem := make(chan struct{}, b.workers)

	for _, r := range ranges {
		// Ranges can exceed one request: chunk to the API limit.
		for cur := r.Start; cur <= r.End; cur += granularity * binance.MaxKlinesPerRequest {
			chunkEnd := cur + granularity*(binance.MaxKlinesPerRequest-1)
			if chunkEnd > r.End {
				chunkEnd = r.End
			}

			start, end := cur, chunkEnd
			sem <- struct{}{}
			wg.Add(1)

			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				raw, err := b.client.GetKlines(ctx, symbol,
					time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC())
				if err != nil {
					b.logger.Warn("backfill chunk failed",
						zap.String("symbol", symbol),
						zap.Int64("start", start),
						zap.Error(err))

					mu.Lock()
					failed++
					mu.Unlock()
					return
				}

				filled := FillMissing(raw, start, end+granularity, granularity)

				mu.Lock()
				candles = append(candles, filled...)
				mu.Unlock()
			}()
		}
	}

	wg.Wait()

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time < candles[j].Time })

	b.logger.Info("backfill finished",
		zap.String("symbol", symbol),
		zap.Int("ranges", len(ranges)),
		zap.Int("candles", len(candles)),
		zap.Int("failed_chunks", failed))

	return candles, failed, nil
}
