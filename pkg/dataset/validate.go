package dataset

import (
	"fmt"
	"io"
	"os"

	"candlevault/pkg/candle"
)

// Year-boundary gaps of up to five minutes are tolerated: the very first
// minutes of some years were never traded on the source exchange.
const boundaryGapAllowance = 5 * 60

// Issue is one validation finding, tied to a file line where possible.
type Issue struct {
	Line int
	Msg  string
}

func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("line %d: %s", i.Line, i.Msg)
	}
	return i.Msg
}

// Report collects the outcome of validating a single file.
type Report struct {
	Path       string
	Rows       int
	FirstTime  int64
	LastTime   int64
	Duplicates int
	Gaps       []Range
	Issues     []Issue
}

// OK reports whether the file passed every check. Gaps are reported
// separately because the caller may choose to backfill instead of fail.
func (r *Report) OK() bool {
	return len(r.Issues) == 0 && r.Duplicates == 0 && r.Rows > 0
}

// Complete reports whether the file is both valid and free of gaps.
func (r *Report) Complete() bool {
	return r.OK() && len(r.Gaps) == 0
}

const maxIssues = 100

func (r *Report) addIssue(line int, format string, args ...any) {
	if len(r.Issues) >= maxIssues {
		return
	}
	r.Issues = append(r.Issues, Issue{Line: line, Msg: fmt.Sprintf(format, args...)})
}

// ValidateFile checks a single dataset file: header and column layout,
// parseable rows, OHLC invariants, unique and strictly increasing
// timestamps. For yearly 1-minute files it also collects the missing
// timestamp ranges.
func ValidateFile(path string, tf candle.Timeframe) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report := &Report{Path: path}
	r := NewReader(f)

	var (
		prev  candle.Candle
		times []int64
		line  = 1 // header
	)

	for {
		line++
		c, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.addIssue(line, "%v", err)
			continue
		}

		report.Rows++

		if err := c.Check(); err != nil {
			report.addIssue(line, "%v", err)
		}

		if report.Rows > 1 {
			switch {
			case c.Time == prev.Time:
				report.Duplicates++
			case c.Time < prev.Time:
				report.addIssue(line, "timestamp %d out of order (previous %d)", c.Time, prev.Time)
			}
		} else {
			report.FirstTime = c.Time
		}

		report.LastTime = c.Time
		prev = c

		if tf == candle.Minute {
			times = append(times, c.Time)
		}
	}

	if report.Rows == 0 {
		report.addIssue(0, "no data rows")
		return report, nil
	}

	if tf == candle.Minute {
		missing := MissingTimes(times, tf.Step())
		report.Gaps = GroupRanges(missing, tf.Step())
	}

	return report, nil
}

// DatasetReport is the outcome of validating every year of one
// asset/timeframe, including cross-year continuity.
type DatasetReport struct {
	Asset  string
	Files  []*Report
	Rows   int
	Issues []Issue
}

func (d *DatasetReport) OK() bool {
	if len(d.Issues) > 0 || len(d.Files) == 0 {
		return false
	}
	for _, f := range d.Files {
		if !f.Complete() {
			return false
		}
	}
	return true
}

// ValidateYears validates every per-year file of asset/timeframe in order
// and checks continuity across year boundaries, allowing small gaps where
// the exchange had no trades around midnight on January 1st.
func ValidateYears(l Layout, asset, symbol string, tf candle.Timeframe) (*DatasetReport, error) {
	entries, err := l.Years(asset, symbol, tf)
	if err != nil {
		return nil, err
	}

	report := &DatasetReport{Asset: asset}
	if len(entries) == 0 {
		report.Issues = append(report.Issues, Issue{Msg: fmt.Sprintf("no %s files for %s", tf, asset)})
		return report, nil
	}

	step := tf.Step()
	var prev *Report
	prevYear := 0

	for _, entry := range entries {
		fr, err := ValidateFile(entry.Path, tf)
		if err != nil {
			return nil, err
		}
		report.Files = append(report.Files, fr)
		report.Rows += fr.Rows

		if prev != nil {
			if entry.Year != prevYear+1 {
				report.Issues = append(report.Issues, Issue{
					Msg: fmt.Sprintf("missing year between %d and %d", prevYear, entry.Year),
				})
			} else if fr.Rows > 0 && prev.Rows > 0 {
				gap := fr.FirstTime - (prev.LastTime + step)
				if gap > boundaryGapAllowance {
					report.Issues = append(report.Issues, Issue{
						Msg: fmt.Sprintf("gap of %ds between %d and %d", gap, prevYear, entry.Year),
					})
				}
			}
		}

		prev = fr
		prevYear = entry.Year
	}

	return report, nil
}
