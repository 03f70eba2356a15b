package domain

// PathMetricsRow holds policy-independent truth statistics for one call.
// Corresponds to path_metrics table in ClickHouse.
type PathMetricsRow struct {
	CallID           string
	EntryTimestampMs int64   // anchor candle timestamp
	EntryPrice       float64 // anchor candle open

	Hit2x bool
	Hit3x bool
	Hit4x bool

	Hit2xTimestampMs *int64 // first candle whose high reached 2x, NULL if never
	Hit3xTimestampMs *int64
	Hit4xTimestampMs *int64

	TimeTo2xMs *int64 // Hit2xTimestampMs - EntryTimestampMs
	TimeTo3xMs *int64
	TimeTo4xMs *int64

	MaxAdverseExcursionBps float64 // lowest low before the first 2x, always <= 0
	PeakMultiple           float64 // max high / entry price
	PeakTimestampMs        int64

	CandleCount int   // candles in the analysis window
	WindowEndMs int64 // last candle timestamp
}
