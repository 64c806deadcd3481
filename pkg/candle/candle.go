package candle

import (
	"fmt"
	"time"
)

// TimeLayout is the human-readable timestamp format used across the dataset.
// All timestamps are UTC.
const TimeLayout = "2006-01-02 15:04:05"

// Candle represents a single OHLCV record. Time is the bucket start
// (label) in unix seconds.
type Candle struct {
	Time   int64
	Open   float64
	Close  float64
	High   float64
	Low    float64
	Volume float64
}

// Timestamp returns the human-readable UTC form of the candle time.
func (c Candle) Timestamp() string {
	return time.Unix(c.Time, 0).UTC().Format(TimeLayout)
}

// Year returns the UTC calendar year the candle belongs to.
func (c Candle) Year() int {
	return time.Unix(c.Time, 0).UTC().Year()
}

// Check verifies the row-level invariants of a candle.
func (c Candle) Check() error {
	if c.Open <= 0 || c.Close <= 0 || c.High <= 0 || c.Low <= 0 {
		return fmt.Errorf("non-positive price: open=%g close=%g high=%g low=%g", c.Open, c.Close, c.High, c.Low)
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("high %g below open/close (%g/%g)", c.High, c.Open, c.Close)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("low %g above open/close (%g/%g)", c.Low, c.Open, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume %g", c.Volume)
	}
	return nil
}

// Timeframe is an aggregation interval of the dataset. Its string value is
// the directory name used in the on-disk layout.
type Timeframe string

const (
	Minute        Timeframe = "1min"
	FiveMinutes   Timeframe = "5min"
	ThirtyMinutes Timeframe = "30min"
	Hourly        Timeframe = "hourly"
	Daily         Timeframe = "daily"
	Weekly        Timeframe = "weekly"
)

// Timeframes lists all supported intervals, finest first.
var Timeframes = []Timeframe{Minute, FiveMinutes, ThirtyMinutes, Hourly, Daily, Weekly}

const (
	day  = 24 * 60 * 60
	week = 7 * day

	// 1970-01-04 00:00:00 UTC, the first Sunday after the epoch. Weekly
	// bucket edges are anchored here.
	sundayEpoch = 3 * day
)

// Code returns the short form used in file names (1m, 5m, 1h, ...).
func (tf Timeframe) Code() string {
	switch tf {
	case Minute:
		return "1m"
	case FiveMinutes:
		return "5m"
	case ThirtyMinutes:
		return "30m"
	case Hourly:
		return "1h"
	case Daily:
		return "1d"
	case Weekly:
		return "1w"
	}
	return string(tf)
}

// Step returns the interval length in seconds. Weekly steps are a flat
// seven days.
func (tf Timeframe) Step() int64 {
	switch tf {
	case Minute:
		return 60
	case FiveMinutes:
		return 5 * 60
	case ThirtyMinutes:
		return 30 * 60
	case Hourly:
		return 60 * 60
	case Daily:
		return day
	case Weekly:
		return week
	}
	return 0
}

// Yearly reports whether files of this timeframe are partitioned per year.
// Coarser timeframes ship a single full-history file.
func (tf Timeframe) Yearly() bool {
	return tf == Minute || tf == FiveMinutes
}

// Valid reports whether tf is a known interval.
func (tf Timeframe) Valid() bool {
	return tf.Step() != 0
}

// ParseTimeframe resolves a directory name or short code to a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	for _, tf := range Timeframes {
		if s == string(tf) || s == tf.Code() {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

// Bucket maps a unix timestamp to its bucket label for this timeframe.
// Intraday and daily buckets are labeled by their left edge. Weekly bins
// cover Monday through Sunday UTC and are labeled by that Sunday at
// midnight, matching the resampling that produced the historical weekly
// files: the whole Sunday still belongs to the bin it closes.
func (tf Timeframe) Bucket(ts int64) int64 {
	if tf == Weekly {
		dayStart := ts - ts%day
		if ts%day < 0 {
			dayStart -= day
		}
		offset := (dayStart - sundayEpoch) % week
		if offset < 0 {
			offset += week
		}
		if offset == 0 {
			return dayStart
		}
		return dayStart - offset + week
	}
	step := tf.Step()
	return ts - ts%step
}
