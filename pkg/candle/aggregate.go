package candle

// Aggregate resamples candles into a coarser timeframe: open is the first
// value of the bucket, close the last, high/low the extremes, volume the
// sum. Empty buckets produce no output row. Input must be sorted by time
// ascending.
func Aggregate(src []Candle, tf Timeframe) []Candle {
	if len(src) == 0 {
		return nil
	}

	out := make([]Candle, 0, len(src)/int(tf.Step()/60)+1)

	cur := Candle{Time: tf.Bucket(src[0].Time)}
	open := false

	flush := func() {
		if open {
			out = append(out, cur)
		}
	}

	for _, c := range src {
		label := tf.Bucket(c.Time)
		if label != cur.Time {
			flush()
			cur = Candle{Time: label}
			open = false
		}

		if !open {
			cur.Open = c.Open
			cur.High = c.High
			cur.Low = c.Low
			open = true
		} else {
			if c.High > cur.High {
				cur.High = c.High
			}
			if c.Low < cur.Low {
				cur.Low = c.Low
			}
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()

	return out
}
