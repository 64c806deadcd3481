package postgres

import (
	"time"

	"candlevault/pkg/candle"
)

// CandleRecord is one mirrored candlestick row.
type CandleRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	Product   string    `gorm:"type:text;not null;index:idx_candle_product;index:idx_product_timeframe_start,unique"`
	Timeframe string    `gorm:"type:varchar(10);not null;index:idx_product_timeframe_start,unique"`
	Start     time.Time `gorm:"not null;index:idx_product_timeframe_start,unique"`

	Open  float64 `gorm:"type:numeric;not null"`
	Close float64 `gorm:"type:numeric;not null"`
	High  float64 `gorm:"type:numeric;not null"`
	Low   float64 `gorm:"type:numeric;not null"`

	Volume float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (CandleRecord) TableName() string {
	return "candle_record"
}

// ToCandleRecord converts a dataset candle into a DB record.
func ToCandleRecord(product string, tf candle.Timeframe, c candle.Candle) *CandleRecord {
	return &CandleRecord{
		Product:   product,
		Timeframe: tf.Code(),
		Start:     time.Unix(c.Time, 0).UTC(),
		Open:      c.Open,
		Close:     c.Close,
		High:      c.High,
		Low:       c.Low,
		Volume:    c.Volume,
	}
}
