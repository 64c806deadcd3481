package binance

import "testing"

const closedKlineMsg = `{
	"e": "kline",
	"E": 1672515782136,
	"s": "BTCUSDT",
	"k": {
		"t": 1672515720000,
		"T": 1672515779999,
		"s": "BTCUSDT",
		"i": "1m",
		"o": "16580.00",
		"c": "16585.50",
		"h": "16590.00",
		"l": "16575.25",
		"v": "12.5",
		"x": true
	}
}`

func TestParseKlineEvent(t *testing.T) {
	ev, ok, err := ParseKlineEvent([]byte(closedKlineMsg))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("kline event not recognized")
	}
	if ev.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s", ev.Symbol)
	}
	if !ev.Kline.Closed {
		t.Error("closed flag not decoded")
	}

	c, err := ev.Kline.Candle()
	if err != nil {
		t.Fatal(err)
	}
	if c.Time != 1672515720 {
		t.Errorf("time = %d, want seconds", c.Time)
	}
	if c.Open != 16580.0 || c.Close != 16585.5 || c.High != 16590.0 || c.Low != 16575.25 || c.Volume != 12.5 {
		t.Errorf("price mapping wrong: %+v", c)
	}
}

func TestParseKlineEventIgnoresAck(t *testing.T) {
	_, ok, err := ParseKlineEvent([]byte(`{"result":null,"id":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("subscription ack treated as kline event")
	}
}

func TestStreamKlineCandleBadPrice(t *testing.T) {
	k := StreamKline{Open: "nope", Close: "1", High: "1", Low: "1", Volume: "1"}
	if _, err := k.Candle(); err == nil {
		t.Error("expected parse error")
	}
}
