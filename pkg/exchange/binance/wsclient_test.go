package binance

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func TestWSClientSubscribesAndDelivers(t *testing.T) {
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub struct {
			Method string   `json:"method"`
			Params []string `json:"params"`
			ID     int      `json:"id"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub.Method != "SUBSCRIBE" {
			t.Errorf("method = %s", sub.Method)
		}
		if len(sub.Params) != 1 || sub.Params[0] != "btcusdt@kline_1m" {
			t.Errorf("params = %v", sub.Params)
		}

		ack, _ := json.Marshal(map[string]any{"result": nil, "id": sub.ID})
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(closedKlineMsg)); err != nil {
			return
		}

		// Keep the connection open until the client is done.
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewWSClient(wsURL, []string{"BTCUSDT"}, zap.NewNop())

	received := make(chan []byte, 2)
	client.SetMessageHandler(func(msg []byte) { received <- msg })

	if err := client.Connect(); err != nil {
		t.Fatal(err)
	}
	go client.Listen()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-received:
			ev, ok, err := ParseKlineEvent(msg)
			if err != nil {
				t.Fatal(err)
			}
			if !ok {
				continue // subscription ack
			}
			if ev.Symbol != "BTCUSDT" || !ev.Kline.Closed {
				t.Errorf("unexpected event: %+v", ev)
			}
			return
		case <-deadline:
			t.Fatal("no kline event received")
		}
	}
}
