package domain

// Candle represents one OHLCV bar of an instrument.
// Corresponds to candles table in ClickHouse.
type Candle struct {
	TimestampMs int64   // bar open time, Unix milliseconds
	Open        float64 // first traded price
	High        float64 // highest traded price
	Low         float64 // lowest traded price
	Close       float64 // last traded price
	Volume      float64 // traded base volume
}

// Candle intervals supported by the candle store.
const (
	Interval1m  = "1m"
	Interval5m  = "5m"
	Interval15m = "15m"
	Interval1h  = "1h"
)

// IntervalMs returns the bar length of an interval, or 0 if unknown.
func IntervalMs(interval string) int64 {
	switch interval {
	case Interval1m:
		return 60_000
	case Interval5m:
		return 300_000
	case Interval15m:
		return 900_000
	case Interval1h:
		return 3_600_000
	default:
		return 0
	}
}
