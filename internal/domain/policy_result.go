package domain

// PolicyResultRow is the realized outcome of one exit policy on one call.
// Corresponds to policy_results table in PostgreSQL.
type PolicyResultRow struct {
	PolicyID string
	CallID   string
	RunID    string

	RealizedReturnBps      float64 // net of costs
	PeakReturnBps          float64 // max high during exposure vs entry
	StopOut                bool
	MaxAdverseExcursionBps float64 // always <= 0
	TimeExposedMs          int64
	TailCapture            float64 // realized / peak, [0, 1]
	TimeTo2xMs             *int64  // NULL if 2x not reached while exposed

	EntryTimestampMs int64
	EntryPrice       float64 // raw fill price
	ExitTimestampMs  int64
	ExitPrice        float64 // size-weighted raw exit price
	ExitReason       string
}
