// Package api exposes the Postgres candle mirror over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"candlevault/pkg/candle"
	"candlevault/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	client *postgres.PostgresClient
}

func NewHandler(client *postgres.PostgresClient) *Handler {
	return &Handler{client: client}
}

// NewRouter builds the HTTP routes over the mirror.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.Default()

	v1 := router.Group("/v1")
	v1.GET("/price", h.GetPrice)
	v1.GET("/healthz", h.Health)

	return router
}

// GetPrice returns the mirrored candle at an exact bucket start time.
// Query parameters: timestamp (unix seconds, required), product (default
// BTCUSD), timeframe (default 1m).
func (h *Handler) GetPrice(c *gin.Context) {
	tsParam := c.Query("timestamp")
	if tsParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing timestamp parameter"})
		return
	}

	ts, err := strconv.ParseInt(tsParam, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp"})
		return
	}

	product := c.DefaultQuery("product", "BTCUSD")

	tf, err := candle.ParseTimeframe(c.DefaultQuery("timeframe", "1m"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.client.GetCandle(c.Request.Context(), product, tf.Code(), time.Unix(ts, 0).UTC())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data found for this timestamp"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":     record.Product,
		"timeframe":   record.Timeframe,
		"timestamp":   record.Start.UTC().Format(candle.TimeLayout),
		"unix":        record.Start.Unix(),
		"open":        record.Open,
		"close":       record.Close,
		"high":        record.High,
		"low":         record.Low,
		"volume":      record.Volume,
		"recorded_at": record.RecordedAt.UTC(),
	})
}

// Health pings the database.
func (h *Handler) Health(c *gin.Context) {
	if !h.client.IsHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
