package fetch

import "candlevault/pkg/candle"

// FillMissing returns one candle per step in [start, end), copying the
// previous candle's prices with zero volume where the exchange returned
// nothing. Leading holes with no previous candle become all-zero
// placeholder rows; the repair pass patches those afterwards. Input must be
// sorted by time ascending.
func FillMissing(candles []candle.Candle, start, end, step int64) []candle.Candle {
	filled := make([]candle.Candle, 0, (end-start)/step)

	var last *candle.Candle
	idx := 0

	for expected := start; expected < end; expected += step {
		for idx < len(candles) && candles[idx].Time < expected {
			idx++ // drop rows outside the window
		}

		if idx < len(candles) && candles[idx].Time == expected {
			filled = append(filled, candles[idx])
			last = &candles[idx]
			idx++
			continue
		}

		row := candle.Candle{Time: expected}
		if last != nil {
			row.Open = last.Open
			row.Close = last.Close
			row.High = last.High
			row.Low = last.Low
		}
		filled = append(filled, row)
	}

	return filled
}
