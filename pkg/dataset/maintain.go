package dataset

import (
	"fmt"
	"os"
	"sort"
	"time"

	"candlevault/pkg/candle"
)

func yearStartUnix(year int) int64 {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
}

// Merge combines two candle sets, sorts by time and drops duplicate
// timestamps keeping the first occurrence. The inputs are not modified.
func Merge(original, extra []candle.Candle) (merged []candle.Candle, dropped int) {
	all := make([]candle.Candle, 0, len(original)+len(extra))
	all = append(all, original...)
	all = append(all, extra...)

	sort.SliceStable(all, func(i, j int) bool { return all[i].Time < all[j].Time })

	for i, c := range all {
		if i > 0 && c.Time == all[i-1].Time {
			dropped++
			continue
		}
		merged = append(merged, c)
	}
	return merged, dropped
}

// MergeFiles merges originalPath with extraPath into outPath. A missing
// extra file is not an error: the original content is rewritten as-is.
func MergeFiles(originalPath, extraPath, outPath string) (dropped int, err error) {
	original, err := ReadFile(originalPath)
	if err != nil {
		return 0, err
	}

	extra, err := ReadFile(extraPath)
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	merged, dropped := Merge(original, extra)
	if err := WriteFile(outPath, merged); err != nil {
		return 0, err
	}
	return dropped, nil
}

// Dedupe removes rows with duplicate timestamps from the file in place,
// keeping the first occurrence. When duplicates were found the original is
// preserved as <path>.backup.
func Dedupe(path string) (removed int, err error) {
	candles, err := ReadFile(path)
	if err != nil {
		return 0, err
	}

	unique, removed := Merge(candles, nil)
	if removed == 0 {
		return 0, nil
	}

	if err := os.Rename(path, path+".backup"); err != nil {
		return 0, fmt.Errorf("backup %s: %w", path, err)
	}
	if err := WriteFile(path, unique); err != nil {
		return 0, err
	}
	return removed, nil
}

// Combine concatenates every per-year file of asset/timeframe into a single
// CSV at outPath, in year order.
func Combine(l Layout, asset, symbol string, tf candle.Timeframe, outPath string) (rows int, err error) {
	entries, err := l.Years(asset, symbol, tf)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no %s files for %s", tf, asset)
	}

	var all []candle.Candle
	for _, entry := range entries {
		candles, err := ReadFile(entry.Path)
		if err != nil {
			return 0, err
		}
		all = append(all, candles...)
	}

	if err := WriteFile(outPath, all); err != nil {
		return 0, err
	}
	return len(all), nil
}

// SplitYearly splits the full-history file of asset/timeframe into per-year
// files alongside it.
func SplitYearly(l Layout, asset, symbol string, tf candle.Timeframe) ([]string, error) {
	candles, err := ReadFile(l.FullFile(asset, symbol, tf))
	if err != nil {
		return nil, err
	}

	byYear := make(map[int][]candle.Candle)
	var years []int
	for _, c := range candles {
		y := c.Year()
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], c)
	}
	sort.Ints(years)

	var written []string
	for _, y := range years {
		path := l.YearFile(asset, symbol, tf, y)
		if err := WriteFile(path, byYear[y]); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// FixZeroRows repairs corrupted all-zero price rows by copying the previous
// valid row's prices with zero volume. Rows before the first valid row are
// left untouched. The original file is preserved as <path>.backup when a
// repair happened.
func FixZeroRows(path string) (fixed int, err error) {
	candles, err := ReadFile(path)
	if err != nil {
		return 0, err
	}

	var prevValid *candle.Candle
	for i := range candles {
		c := &candles[i]
		if c.Open == 0 && c.Close == 0 && c.High == 0 && c.Low == 0 {
			if prevValid != nil {
				c.Open = prevValid.Open
				c.Close = prevValid.Close
				c.High = prevValid.High
				c.Low = prevValid.Low
				c.Volume = 0
				fixed++
			}
			continue
		}
		prevValid = c
	}

	if fixed == 0 {
		return 0, nil
	}

	if err := os.Rename(path, path+".backup"); err != nil {
		return 0, fmt.Errorf("backup %s: %w", path, err)
	}
	if err := WriteFile(path, candles); err != nil {
		return 0, err
	}
	return fixed, nil
}

// FillYearBoundaries inserts the missing first candle of a year by copying
// the previous year's closing prices with zero volume. Only the exact first
// step of the year is synthesized; anything larger is a real gap for the
// backfill path.
func FillYearBoundaries(l Layout, asset, symbol string, tf candle.Timeframe) (filled int, err error) {
	entries, err := l.Years(asset, symbol, tf)
	if err != nil {
		return 0, err
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].Year != entries[i-1].Year+1 {
			continue
		}

		candles, err := ReadFile(entries[i].Path)
		if err != nil {
			return filled, err
		}
		if len(candles) == 0 {
			continue
		}

		yearStart := yearStartUnix(entries[i].Year)
		if candles[0].Time == yearStart {
			continue
		}

		prev, err := lastCandle(entries[i-1].Path)
		if err != nil {
			return filled, err
		}

		row := candle.Candle{
			Time:   yearStart,
			Open:   prev.Open,
			Close:  prev.Close,
			High:   prev.High,
			Low:    prev.Low,
			Volume: 0,
		}

		candles = append([]candle.Candle{row}, candles...)
		if err := WriteFile(entries[i].Path, candles); err != nil {
			return filled, err
		}
		filled++
	}

	return filled, nil
}

func lastCandle(path string) (candle.Candle, error) {
	candles, err := ReadFile(path)
	if err != nil {
		return candle.Candle{}, err
	}
	if len(candles) == 0 {
		return candle.Candle{}, fmt.Errorf("%s: no data rows", path)
	}
	return candles[len(candles)-1], nil
}
