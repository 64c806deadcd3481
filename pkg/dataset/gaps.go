package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"candlevault/pkg/candle"
)

// Range is a run of consecutive missing timestamps, inclusive on both ends.
type Range struct {
	Start int64
	End   int64
}

// Count returns the number of missing steps covered by the range.
func (r Range) Count(step int64) int64 {
	return (r.End-r.Start)/step + 1
}

// MissingTimes returns every expected timestamp absent from times, which
// must be sorted ascending. Duplicates in the input are ignored.
func MissingTimes(times []int64, step int64) []int64 {
	if len(times) == 0 {
		return nil
	}

	var missing []int64
	expected := times[0]

	for _, ts := range times {
		for expected < ts {
			missing = append(missing, expected)
			expected += step
		}
		if expected == ts {
			expected += step
		}
	}
	return missing
}

// GroupRanges folds sorted missing timestamps into consecutive ranges.
func GroupRanges(missing []int64, step int64) []Range {
	if len(missing) == 0 {
		return nil
	}

	ranges := []Range{{Start: missing[0], End: missing[0]}}
	for _, ts := range missing[1:] {
		last := &ranges[len(ranges)-1]
		if ts == last.End+step {
			last.End = ts
			continue
		}
		ranges = append(ranges, Range{Start: ts, End: ts})
	}
	return ranges
}

// GapReport is the JSON artifact consumed by the backfill step. Field names
// match the historical report files.
type GapReport struct {
	Filename     string      `json:"filename"`
	TotalMissing int         `json:"total_missing_timestamps"`
	TotalRanges  int         `json:"total_ranges"`
	Ranges       []RangeInfo `json:"ranges"`
}

type RangeInfo struct {
	StartTimestamp  int64  `json:"start_timestamp"`
	EndTimestamp    int64  `json:"end_timestamp"`
	StartDatetime   string `json:"start_datetime"`
	EndDatetime     string `json:"end_datetime"`
	DurationMinutes int64  `json:"duration_minutes"`
}

// WriteGapReport saves the missing-timestamp list and grouped ranges next
// to the analyzed file as <base>_missing_timestamps.json and
// <base>_missing_ranges.json. It returns the ranges file path.
func WriteGapReport(csvPath string, missing []int64, ranges []Range) (string, error) {
	base := strings.TrimSuffix(csvPath, ".csv")

	tsReport := struct {
		Filename     string  `json:"filename"`
		TotalMissing int     `json:"total_missing"`
		Missing      []int64 `json:"missing_timestamps"`
	}{Filename: csvPath, TotalMissing: len(missing), Missing: missing}

	if err := writeJSON(base+"_missing_timestamps.json", tsReport); err != nil {
		return "", err
	}

	report := GapReport{
		Filename:     csvPath,
		TotalMissing: len(missing),
		TotalRanges:  len(ranges),
	}
	for _, r := range ranges {
		report.Ranges = append(report.Ranges, RangeInfo{
			StartTimestamp:  r.Start,
			EndTimestamp:    r.End,
			StartDatetime:   formatUTC(r.Start),
			EndDatetime:     formatUTC(r.End),
			DurationMinutes: r.Count(60),
		})
	}

	rangesFile := base + "_missing_ranges.json"
	if err := writeJSON(rangesFile, report); err != nil {
		return "", err
	}
	return rangesFile, nil
}

// ReadGapReport loads a ranges file produced by WriteGapReport.
func ReadGapReport(path string) (*GapReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var report GapReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode gap report %s: %w", path, err)
	}
	return &report, nil
}

// CleanupGapArtifacts removes the report files of csvPath, if any.
func CleanupGapArtifacts(csvPath string) {
	base := strings.TrimSuffix(csvPath, ".csv")
	os.Remove(base + "_missing_timestamps.json")
	os.Remove(base + "_missing_ranges.json")
	os.Remove(base + "_missing_data.csv")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatUTC(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(candle.TimeLayout) + " UTC"
}
