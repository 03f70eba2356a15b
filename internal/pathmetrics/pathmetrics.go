// Package pathmetrics computes policy-independent truth statistics over a call's price path.
package pathmetrics

import (
	"math"

	"alertlab/internal/domain"
	"alertlab/internal/series"
)

// Multiples tracked by the truth layer.
var Multiples = []float64{2, 3, 4}

// Compute returns the truth row for one call. The anchor is the first candle at or after
// the call's entry timestamp and the entry price is its open. The result depends only on
// the call and the candles.
func Compute(call domain.Call, candles []domain.Candle) (*domain.PathMetricsRow, error) {
	if err := series.Validate(call.CallID, candles); err != nil {
		return nil, err
	}
	anchor := series.AnchorIndex(candles, call.EntryTimestampMs)
	if anchor < 0 {
		return nil, &domain.DataError{CallID: call.CallID, Reason: "no candle at or after call entry"}
	}

	entry := candles[anchor].Open
	row := &domain.PathMetricsRow{
		CallID:           call.CallID,
		EntryTimestampMs: candles[anchor].TimestampMs,
		EntryPrice:       entry,
	}

	var hitTs [3]*int64
	peak := 0.0
	minLowBefore2x := math.Inf(1)

	cur := series.NewCursor(candles, anchor)
	for cur.Advance() {
		c := cur.Current()

		for i, m := range Multiples {
			if hitTs[i] == nil && c.High >= entry*m {
				ts := c.TimestampMs
				hitTs[i] = &ts
			}
		}

		// Lows count only while 2x has not been reached, the 2x candle itself excluded.
		if hitTs[0] == nil && c.Low < minLowBefore2x {
			minLowBefore2x = c.Low
		}

		if c.High > peak {
			peak = c.High
			row.PeakTimestampMs = c.TimestampMs
		}

		row.CandleCount++
		row.WindowEndMs = c.TimestampMs
	}

	row.PeakMultiple = peak / entry
	row.MaxAdverseExcursionBps = adverseBps(minLowBefore2x, entry)

	row.Hit2x, row.Hit2xTimestampMs, row.TimeTo2xMs = hit(hitTs[0], row.EntryTimestampMs)
	row.Hit3x, row.Hit3xTimestampMs, row.TimeTo3xMs = hit(hitTs[1], row.EntryTimestampMs)
	row.Hit4x, row.Hit4xTimestampMs, row.TimeTo4xMs = hit(hitTs[2], row.EntryTimestampMs)

	return row, nil
}

// adverseBps converts a low into basis points from entry, clamped to <= 0.
// No qualifying low yields 0.
func adverseBps(low, entry float64) float64 {
	if math.IsInf(low, 1) {
		return 0
	}
	return math.Min(0, (low/entry-1)*10_000)
}

func hit(ts *int64, entryTs int64) (bool, *int64, *int64) {
	if ts == nil {
		return false, nil, nil
	}
	d := *ts - entryTs
	return true, ts, &d
}

// Equal reports whether two truth rows carry identical values.
func Equal(a, b *domain.PathMetricsRow) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.CallID == b.CallID &&
		a.EntryTimestampMs == b.EntryTimestampMs &&
		a.EntryPrice == b.EntryPrice &&
		a.Hit2x == b.Hit2x && a.Hit3x == b.Hit3x && a.Hit4x == b.Hit4x &&
		eqPtr(a.Hit2xTimestampMs, b.Hit2xTimestampMs) &&
		eqPtr(a.Hit3xTimestampMs, b.Hit3xTimestampMs) &&
		eqPtr(a.Hit4xTimestampMs, b.Hit4xTimestampMs) &&
		eqPtr(a.TimeTo2xMs, b.TimeTo2xMs) &&
		eqPtr(a.TimeTo3xMs, b.TimeTo3xMs) &&
		eqPtr(a.TimeTo4xMs, b.TimeTo4xMs) &&
		a.MaxAdverseExcursionBps == b.MaxAdverseExcursionBps &&
		a.PeakMultiple == b.PeakMultiple &&
		a.PeakTimestampMs == b.PeakTimestampMs &&
		a.CandleCount == b.CandleCount &&
		a.WindowEndMs == b.WindowEndMs
}

func eqPtr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
