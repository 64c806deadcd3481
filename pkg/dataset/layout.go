package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"candlevault/pkg/candle"
)

// Layout resolves dataset file paths. The on-disk convention is
// <root>/<asset>/<timeframe>/<SYMBOL>_<code>_candles_<year|full>.csv,
// e.g. data/btc/1min/BTCUSD_1m_candles_2019.csv.
type Layout struct {
	Root string
}

func (l Layout) TimeframeDir(asset string, tf candle.Timeframe) string {
	return filepath.Join(l.Root, asset, string(tf))
}

// YearFile returns the path of a per-year file for yearly-partitioned
// timeframes (1min, 5min).
func (l Layout) YearFile(asset, symbol string, tf candle.Timeframe, year int) string {
	name := fmt.Sprintf("%s_%s_candles_%d.csv", symbol, tf.Code(), year)
	return filepath.Join(l.TimeframeDir(asset, tf), name)
}

// FullFile returns the path of the single full-history file used by the
// coarser timeframes.
func (l Layout) FullFile(asset, symbol string, tf candle.Timeframe) string {
	name := fmt.Sprintf("%s_%s_candles_full.csv", symbol, tf.Code())
	return filepath.Join(l.TimeframeDir(asset, tf), name)
}

// YearEntry describes one per-year CSV found on disk.
type YearEntry struct {
	Year int
	Path string
}

// Years lists the per-year files of an asset/timeframe, sorted by year.
func (l Layout) Years(asset, symbol string, tf candle.Timeframe) ([]YearEntry, error) {
	pattern := filepath.Join(l.TimeframeDir(asset, tf),
		fmt.Sprintf("%s_%s_candles_*.csv", symbol, tf.Code()))

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	var entries []YearEntry
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".csv")
		suffix := base[strings.LastIndex(base, "_")+1:]
		year, err := strconv.Atoi(suffix)
		if err != nil {
			continue // skip _full and scratch files
		}
		entries = append(entries, YearEntry{Year: year, Path: m})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Year < entries[j].Year })
	return entries, nil
}

// EnsureDir creates the directory for path if it does not exist.
func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	return nil
}
