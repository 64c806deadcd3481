package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"candlevault/config"
	"candlevault/internal/fetch"
	"candlevault/pkg/candle"
	"candlevault/pkg/dataset"
	"candlevault/pkg/exchange/binance"

	"go.uber.org/zap"
)

func testProduct() config.ProductConfig {
	return config.ProductConfig{
		Asset:           "btc",
		Symbol:          "BTCUSD",
		CoinbaseProduct: "BTC-USD",
		BinanceSymbol:   "BTCUSDT",
	}
}

func writeYearWithGap(t *testing.T, l dataset.Layout, year int) (path string, missing []int64) {
	t.Helper()

	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	var rows []candle.Candle
	for i := int64(0); i < 10; i++ {
		ts := start + i*60
		if i == 3 || i == 4 {
			missing = append(missing, ts)
			continue
		}
		rows = append(rows, candle.Candle{
			Time: ts, Open: 10, Close: 11, High: 12, Low: 9, Volume: 1,
		})
	}

	path = l.YearFile("btc", "BTCUSD", candle.Minute, year)
	if err := dataset.WriteFile(path, rows); err != nil {
		t.Fatal(err)
	}
	return path, missing
}

func TestProcessYearRepairsGaps(t *testing.T) {
	l := dataset.Layout{Root: t.TempDir()}
	path, missing := writeYearWithGap(t, l, 2020)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rows []string
		for _, ts := range missing {
			rows = append(rows, fmt.Sprintf(`[%d, "10.5", "12.5", "9.5", "11.5", "0.8"]`, ts*1000))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	defer srv.Close()

	client := binance.NewClient(srv.URL, 5*time.Second, 1000)
	p := &Pipeline{
		Layout:     l,
		Product:    testProduct(),
		Backfiller: fetch.NewBackfiller(client, 2, zap.NewNop()),
		Logger:     zap.NewNop(),
	}

	if err := p.ProcessYear(context.Background(), 2020); err != nil {
		t.Fatal(err)
	}

	report, err := dataset.ValidateFile(path, candle.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Complete() {
		t.Errorf("file not complete after repair: gaps=%v issues=%v", report.Gaps, report.Issues)
	}
	if report.Rows != 10 {
		t.Errorf("rows = %d, want 10", report.Rows)
	}

	out, err := dataset.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if out[3].Open != 10.5 || out[3].Volume != 0.8 {
		t.Errorf("backfilled row wrong: %+v", out[3])
	}

	// Intermediate artifacts are cleaned up after the repair.
	base := strings.TrimSuffix(path, ".csv")
	for _, leftover := range []string{
		base + "_missing_data.csv",
		base + "_complete.csv",
		base + "_missing_timestamps.json",
		base + "_missing_ranges.json",
	} {
		if _, err := os.Stat(leftover); !os.IsNotExist(err) {
			t.Errorf("artifact not cleaned up: %s", leftover)
		}
	}
}

func TestProcessYearLeavesCompleteFileAlone(t *testing.T) {
	l := dataset.Layout{Root: t.TempDir()}

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	var rows []candle.Candle
	for i := int64(0); i < 5; i++ {
		rows = append(rows, candle.Candle{
			Time: start + i*60, Open: 10, Close: 11, High: 12, Low: 9, Volume: 1,
		})
	}
	path := l.YearFile("btc", "BTCUSD", candle.Minute, 2020)
	if err := dataset.WriteFile(path, rows); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Layout: l, Product: testProduct(), Logger: zap.NewNop()}
	if err := p.ProcessYear(context.Background(), 2020); err != nil {
		t.Fatal(err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("complete file was rewritten")
	}
}

func TestProcessYearFailsWhenBackfillFails(t *testing.T) {
	l := dataset.Layout{Root: t.TempDir()}
	writeYearWithGap(t, l, 2020)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := binance.NewClient(srv.URL, 5*time.Second, 1000)
	p := &Pipeline{
		Layout:     l,
		Product:    testProduct(),
		Backfiller: fetch.NewBackfiller(client, 2, zap.NewNop()),
		Logger:     zap.NewNop(),
	}

	if err := p.ProcessYear(context.Background(), 2020); err == nil {
		t.Fatal("expected error when every backfill chunk fails")
	}
}
