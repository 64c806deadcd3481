package live

import (
	"fmt"
	"testing"

	"candlevault/config"
	"candlevault/pkg/candle"
	"candlevault/pkg/dataset"

	"go.uber.org/zap"
)

func klineMsg(symbol string, startMs int64, closed bool) []byte {
	return fmt.Appendf(nil, `{
		"e": "kline", "E": %d, "s": %q,
		"k": {"t": %d, "T": %d, "s": %q, "i": "1m",
			"o": "100.0", "c": "101.0", "h": "102.0", "l": "99.0", "v": "3.5",
			"x": %t}
	}`, startMs+60000, symbol, startMs, startMs+59999, symbol, closed)
}

func newTestTailer(t *testing.T) (*Tailer, dataset.Layout) {
	t.Helper()

	cfg := &config.Config{
		Dataset: config.DatasetConfig{
			Root: t.TempDir(),
			Products: []config.ProductConfig{{
				Asset:         "btc",
				Symbol:        "BTCUSD",
				BinanceSymbol: "BTCUSDT",
			}},
		},
	}
	tailer := NewTailer(cfg, nil, zap.NewNop())
	return tailer, dataset.Layout{Root: cfg.Dataset.Root}
}

func TestHandleMessageAppends(t *testing.T) {
	tailer, l := newTestTailer(t)

	// 2020-01-01 00:00 UTC in milliseconds.
	start := int64(1577836800000)
	tailer.handleMessage(klineMsg("BTCUSDT", start, true))
	tailer.handleMessage(klineMsg("BTCUSDT", start+60000, true))

	candles, err := dataset.ReadFile(l.YearFile("btc", "BTCUSD", candle.Minute, 2020))
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	if candles[0].Time != start/1000 || candles[1].Time != start/1000+60 {
		t.Errorf("times = %d, %d", candles[0].Time, candles[1].Time)
	}
	if candles[0].Open != 100.0 || candles[0].Volume != 3.5 {
		t.Errorf("candle fields wrong: %+v", candles[0])
	}
}

func TestHandleMessageDropsDuplicatesAndOpenCandles(t *testing.T) {
	tailer, l := newTestTailer(t)

	start := int64(1577836800000)
	tailer.handleMessage(klineMsg("BTCUSDT", start, true))
	tailer.handleMessage(klineMsg("BTCUSDT", start, true))        // duplicate
	tailer.handleMessage(klineMsg("BTCUSDT", start-60000, true))  // late
	tailer.handleMessage(klineMsg("BTCUSDT", start+60000, false)) // still open

	candles, err := dataset.ReadFile(l.YearFile("btc", "BTCUSD", candle.Minute, 2020))
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1 {
		t.Errorf("len(candles) = %d, want 1", len(candles))
	}
}

func TestHandleMessageIgnoresUnknownSymbol(t *testing.T) {
	tailer, l := newTestTailer(t)

	tailer.handleMessage(klineMsg("ETHUSDT", 1577836800000, true))

	if _, err := dataset.ReadFile(l.YearFile("btc", "BTCUSD", candle.Minute, 2020)); err == nil {
		t.Error("file created for unknown symbol")
	}
}
