package dataset

import (
	"fmt"
	"sort"

	"candlevault/pkg/candle"
)

// BuildAggregates reads every 1-minute file of the asset and regenerates
// the coarser timeframe files from it: a single full-history file per
// timeframe, plus a per-year split for the 5-minute data. Returns the
// number of rows written per timeframe.
func BuildAggregates(l Layout, asset, symbol string) (map[candle.Timeframe]int, error) {
	entries, err := l.Years(asset, symbol, candle.Minute)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no 1min source files for %s", asset)
	}

	var minutes []candle.Candle
	for _, entry := range entries {
		candles, err := ReadFile(entry.Path)
		if err != nil {
			return nil, err
		}
		minutes = append(minutes, candles...)
	}
	sort.SliceStable(minutes, func(i, j int) bool { return minutes[i].Time < minutes[j].Time })

	written := make(map[candle.Timeframe]int)

	for _, tf := range candle.Timeframes {
		if tf == candle.Minute {
			continue
		}

		resampled := candle.Aggregate(minutes, tf)
		if err := WriteFile(l.FullFile(asset, symbol, tf), resampled); err != nil {
			return written, err
		}
		written[tf] = len(resampled)

		if tf.Yearly() {
			if _, err := SplitYearly(l, asset, symbol, tf); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}
