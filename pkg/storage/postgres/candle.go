package postgres

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

// InsertCandle inserts one record. It reports whether the row was actually
// written; a false return without error means an identical
// (product, timeframe, start) row already exists.
func (p *PostgresClient) InsertCandle(ctx context.Context, record *CandleRecord) (bool, error) {
	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "product"},
			{Name: "timeframe"},
			{Name: "start"},
		},
		DoNothing: true,
	}).Create(record)

	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// InsertCandleBatch bulk-inserts records, skipping rows that already exist.
// Returns the number of rows written.
func (p *PostgresClient) InsertCandleBatch(ctx context.Context, records []*CandleRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx := p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "product"},
			{Name: "timeframe"},
			{Name: "start"},
		},
		DoNothing: true,
	}).CreateInBatches(records, 500)

	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

// GetCandle looks up one mirrored candle by its bucket start time.
func (p *PostgresClient) GetCandle(ctx context.Context, product, timeframe string, start time.Time) (*CandleRecord, error) {
	var record CandleRecord
	err := p.DB.WithContext(ctx).
		Where("product = ? AND timeframe = ? AND start = ?", product, timeframe, start).
		First(&record).Error

	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteDuplicates removes rows sharing a (product, timeframe, start) key,
// keeping the one with the smallest id. Returns the number of rows removed.
func (p *PostgresClient) DeleteDuplicates(ctx context.Context) (int64, error) {
	tx := p.DB.WithContext(ctx).Exec(`
		DELETE FROM candle_record a
		USING candle_record b
		WHERE a.product = b.product
		  AND a.timeframe = b.timeframe
		  AND a.start = b.start
		  AND a.id > b.id`)

	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

// DeleteOldCandles removes mirrored rows older than the given time.
func (p *PostgresClient) DeleteOldCandles(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("start < ?", before).
		Delete(&CandleRecord{}).Error
}
