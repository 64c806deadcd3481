package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"candlevault/pkg/candle"
)

func TestMergeKeepsFirst(t *testing.T) {
	original := testCandles(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 5, 60)
	extra := testCandles(time.Date(2020, 1, 1, 0, 3, 0, 0, time.UTC), 5, 60)
	extra[0].Open = 999 // overlaps original[3]; the original row must win

	merged, dropped := Merge(original, extra)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if len(merged) != 8 {
		t.Fatalf("len(merged) = %d, want 8", len(merged))
	}
	if merged[3].Open == 999 {
		t.Error("duplicate resolution kept the extra row instead of the original")
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Time <= merged[i-1].Time {
			t.Fatalf("merged not strictly increasing at %d", i)
		}
	}
}

func TestMergeFilesMissingExtra(t *testing.T) {
	dir := t.TempDir()
	originalPath := filepath.Join(dir, "orig.csv")
	outPath := filepath.Join(dir, "out.csv")

	rows := testCandles(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 4, 60)
	if err := WriteFile(originalPath, rows); err != nil {
		t.Fatal(err)
	}

	dropped, err := MergeFiles(originalPath, filepath.Join(dir, "nope.csv"), outPath)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}

	out, err := ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Errorf("len(out) = %d, want 4", len(out))
	}
}

func TestDedupe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	rows := testCandles(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 6, 60)
	rows = append(rows, rows[2], rows[4])
	if err := WriteFile(path, rows); err != nil {
		t.Fatal(err)
	}

	removed, err := Dedupe(path)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(path + ".backup"); err != nil {
		t.Errorf("backup file missing: %v", err)
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 6 {
		t.Errorf("len(out) = %d, want 6", len(out))
	}

	// A clean file must be left alone, with no backup.
	removed, err = Dedupe(path)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("second pass removed = %d, want 0", removed)
	}
}

func TestCombineAndSplitYearly(t *testing.T) {
	dir := t.TempDir()
	l := Layout{Root: dir}

	rows2019 := testCandles(time.Date(2019, 12, 31, 23, 58, 0, 0, time.UTC), 2, 60)
	rows2020 := testCandles(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 3, 60)
	if err := WriteFile(l.YearFile("btc", "BTCUSD", candle.FiveMinutes, 2019), rows2019); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(l.YearFile("btc", "BTCUSD", candle.FiveMinutes, 2020), rows2020); err != nil {
		t.Fatal(err)
	}

	full := l.FullFile("btc", "BTCUSD", candle.FiveMinutes)
	rows, err := Combine(l, "btc", "BTCUSD", candle.FiveMinutes, full)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 5 {
		t.Errorf("combined rows = %d, want 5", rows)
	}

	// Remove the year files and rebuild them from the combined file.
	os.Remove(l.YearFile("btc", "BTCUSD", candle.FiveMinutes, 2019))
	os.Remove(l.YearFile("btc", "BTCUSD", candle.FiveMinutes, 2020))

	written, err := SplitYearly(l, "btc", "BTCUSD", candle.FiveMinutes)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 2 {
		t.Fatalf("split wrote %d files, want 2", len(written))
	}

	back2020, err := ReadFile(l.YearFile("btc", "BTCUSD", candle.FiveMinutes, 2020))
	if err != nil {
		t.Fatal(err)
	}
	if len(back2020) != 3 {
		t.Errorf("2020 rows after split = %d, want 3", len(back2020))
	}
}

func TestFixZeroRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	rows := testCandles(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 5, 60)
	rows[2] = candle.Candle{Time: rows[2].Time} // corrupted all-zero row
	if err := WriteFile(path, rows); err != nil {
		t.Fatal(err)
	}

	fixed, err := FixZeroRows(path)
	if err != nil {
		t.Fatal(err)
	}
	if fixed != 1 {
		t.Fatalf("fixed = %d, want 1", fixed)
	}
	if _, err := os.Stat(path + ".backup"); err != nil {
		t.Errorf("backup file missing: %v", err)
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if out[2].Open != out[1].Open || out[2].Close != out[1].Close {
		t.Errorf("row not repaired from previous: %+v", out[2])
	}
	if out[2].Volume != 0 {
		t.Errorf("repaired row volume = %v, want 0", out[2].Volume)
	}
}

func TestFillYearBoundaries(t *testing.T) {
	dir := t.TempDir()
	l := Layout{Root: dir}

	rows2019 := testCandles(time.Date(2019, 12, 31, 23, 55, 0, 0, time.UTC), 5, 60)
	// 2020 file misses its very first minute.
	rows2020 := testCandles(time.Date(2020, 1, 1, 0, 1, 0, 0, time.UTC), 5, 60)

	if err := WriteFile(l.YearFile("btc", "BTCUSD", candle.Minute, 2019), rows2019); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(l.YearFile("btc", "BTCUSD", candle.Minute, 2020), rows2020); err != nil {
		t.Fatal(err)
	}

	filled, err := FillYearBoundaries(l, "btc", "BTCUSD", candle.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if filled != 1 {
		t.Fatalf("filled = %d, want 1", filled)
	}

	out, err := ReadFile(l.YearFile("btc", "BTCUSD", candle.Minute, 2020))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 6 {
		t.Fatalf("len(out) = %d, want 6", len(out))
	}
	first := out[0]
	last2019 := rows2019[len(rows2019)-1]
	if first.Time != time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix() {
		t.Errorf("synthesized time = %d", first.Time)
	}
	if first.Close != last2019.Close || first.Volume != 0 {
		t.Errorf("synthesized row = %+v, want prices of %+v with zero volume", first, last2019)
	}

	// Nothing left to fill on a second run.
	filled, err = FillYearBoundaries(l, "btc", "BTCUSD", candle.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if filled != 0 {
		t.Errorf("second run filled = %d, want 0", filled)
	}
}
