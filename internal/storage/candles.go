package storage

import (
	"context"
	"math"

	"alertlab/internal/domain"
)

// CallCandles loads the candles of a call's analysis window: from the call's entry
// timestamp through windowMs after it. windowMs <= 0 loads everything after entry.
func CallCandles(ctx context.Context, store CandleStore, call *domain.Call, interval string, windowMs int64) ([]domain.Candle, error) {
	end := int64(math.MaxInt64)
	if windowMs > 0 && call.EntryTimestampMs <= math.MaxInt64-windowMs {
		end = call.EntryTimestampMs + windowMs
	}
	return store.GetRange(ctx, call.Symbol, interval, call.EntryTimestampMs, end)
}
