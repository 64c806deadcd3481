package binance

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient handles the WebSocket connection to Binance and message routing.
type WSClient struct {
	url     string
	streams []string
	conn    *websocket.Conn
	handler func([]byte)
	logger  *zap.Logger
}

// NewWSClient creates a WebSocket client subscribing to 1m kline streams
// for the given symbols.
func NewWSClient(url string, symbols []string, logger *zap.Logger) *WSClient {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@kline_1m")
	}

	return &WSClient{
		url:     url,
		streams: streams,
		logger:  logger,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect establishes the WebSocket connection and subscribes to the kline
// streams. It does not start the listener.
func (c *WSClient) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}
	c.conn = conn
	c.logger.Info("WebSocket connected", zap.String("url", c.url))

	return c.subscribe(conn)
}

// Listen reads messages until the connection drops, then reconnects and
// resubscribes indefinitely.
func (c *WSClient) Listen() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Error("WebSocket read error", zap.Error(err))

			for {
				time.Sleep(3 * time.Second)
				if err := c.reconnectAndResubscribe(); err != nil {
					c.logger.Warn("Retrying reconnect...")
					continue
				}
				c.logger.Info("Reconnected successfully")
				break
			}
			continue
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *WSClient) subscribe(conn *websocket.Conn) error {
	subMsg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": c.streams,
		"id":     1,
	}

	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}
	return nil
}

func (c *WSClient) reconnectAndResubscribe() error {
	newConn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = newConn

	return c.subscribe(newConn)
}
