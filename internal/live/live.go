// Package live keeps the current-year files fresh by tailing the Binance
// kline WebSocket stream.
package live

import (
	"context"
	"strings"
	"sync"
	"time"

	"candlevault/config"
	"candlevault/pkg/candle"
	"candlevault/pkg/dataset"
	"candlevault/pkg/exchange/binance"
	"candlevault/pkg/storage/postgres"

	"go.uber.org/zap"
)

// Tailer appends confirmed 1-minute candles from the stream to the
// dataset, and to the Postgres mirror when one is configured.
type Tailer struct {
	layout   dataset.Layout
	products map[string]config.ProductConfig // keyed by upper-case Binance symbol
	mirror   *postgres.PostgresClient        // optional
	logger   *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]int64
}

// NewTailer wires a tailer for the configured products. mirror may be nil.
func NewTailer(cfg *config.Config, mirror *postgres.PostgresClient, logger *zap.Logger) *Tailer {
	products := make(map[string]config.ProductConfig, len(cfg.Dataset.Products))
	for _, p := range cfg.Dataset.Products {
		products[strings.ToUpper(p.BinanceSymbol)] = p
	}

	return &Tailer{
		layout:   dataset.Layout{Root: cfg.Dataset.Root},
		products: products,
		mirror:   mirror,
		logger:   logger,
		lastSeen: make(map[string]int64),
	}
}

// Start connects the WebSocket stream and begins appending candles. It
// returns once the listener goroutine is running.
func (t *Tailer) Start(wsURL string) error {
	symbols := make([]string, 0, len(t.products))
	for s := range t.products {
		symbols = append(symbols, s)
	}

	ws := binance.NewWSClient(wsURL, symbols, t.logger)
	ws.SetMessageHandler(t.handleMessage)

	if err := ws.Connect(); err != nil {
		return err
	}
	go ws.Listen()

	t.logger.Info("live tail started", zap.Strings("symbols", symbols))
	return nil
}

func (t *Tailer) handleMessage(msg []byte) {
	ev, ok, err := binance.ParseKlineEvent(msg)
	if err != nil {
		t.logger.Warn("bad stream message", zap.Error(err))
		return
	}
	if !ok || !ev.Kline.Closed {
		return // subscription ack or still-open candle
	}

	product, ok := t.products[strings.ToUpper(ev.Symbol)]
	if !ok {
		return
	}

	c, err := ev.Kline.Candle()
	if err != nil {
		t.logger.Warn("bad kline payload", zap.String("symbol", ev.Symbol), zap.Error(err))
		return
	}

	// Drop duplicate or late candles.
	t.mu.Lock()
	if last, seen := t.lastSeen[ev.Symbol]; seen && c.Time <= last {
		t.mu.Unlock()
		return
	}
	t.lastSeen[ev.Symbol] = c.Time
	t.mu.Unlock()

	path := t.layout.YearFile(product.Asset, product.Symbol, candle.Minute, c.Year())
	if err := dataset.AppendCandle(path, c); err != nil {
		t.logger.Error("append failed", zap.String("file", path), zap.Error(err))
		return
	}

	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		record := postgres.ToCandleRecord(product.Symbol, candle.Minute, c)
		if _, err := t.mirror.InsertCandle(ctx, record); err != nil {
			t.logger.Warn("mirror insert failed", zap.String("symbol", ev.Symbol), zap.Error(err))
		}
	}

	t.logger.Debug("candle appended",
		zap.String("asset", product.Asset),
		zap.Int64("time", c.Time))
}
