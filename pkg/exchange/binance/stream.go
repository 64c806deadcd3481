package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	"candlevault/pkg/candle"
)

// KlineEvent is the payload of a kline stream message.
type KlineEvent struct {
	EventType string      `json:"e"` // "kline"
	EventTime int64       `json:"E"` // event time in milliseconds
	Symbol    string      `json:"s"` // e.g. "BTCUSDT"
	Kline     StreamKline `json:"k"`
}

// StreamKline is the candle body inside a kline event. Prices arrive as
// JSON strings.
type StreamKline struct {
	StartMs  int64  `json:"t"`
	EndMs    int64  `json:"T"`
	Symbol   string `json:"s"`
	Interval string `json:"i"` // e.g. "1m"
	Open     string `json:"o"`
	Close    string `json:"c"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"` // true once the interval is final
}

// ParseKlineEvent decodes a raw WebSocket message into a kline event.
// Subscription acks and other stream messages return ok=false.
func ParseKlineEvent(msg []byte) (ev KlineEvent, ok bool, err error) {
	if err := json.Unmarshal(msg, &ev); err != nil {
		return ev, false, fmt.Errorf("decode stream message: %w", err)
	}
	if ev.EventType != "kline" {
		return ev, false, nil
	}
	return ev, true, nil
}

// Candle converts the stream kline to the dataset candle type.
func (k StreamKline) Candle() (candle.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse open: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse close: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse low: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse volume: %w", err)
	}

	return candle.Candle{
		Time:   k.StartMs / 1000,
		Open:   open,
		Close:  closePrice,
		High:   high,
		Low:    low,
		Volume: volume,
	}, nil
}
