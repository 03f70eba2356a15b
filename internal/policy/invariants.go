package policy

import (
	"math"

	"alertlab/internal/domain"
	"alertlab/internal/execution"
)

// returnTolerance absorbs float rounding between the decimal ledger and float path statistics.
const returnTolerance = 1e-6

// CheckInvariants verifies a result row and the cost multipliers it was computed with.
// The first breached invariant is returned as *domain.InvariantViolation.
func CheckInvariants(row *domain.PolicyResultRow, costs domain.CostConfig) error {
	violation := func(name string) error {
		return &domain.InvariantViolation{
			Invariant: name,
			Context: map[string]any{
				"policy_id":                 row.PolicyID,
				"call_id":                   row.CallID,
				"run_id":                    row.RunID,
				"realized_return_bps":       row.RealizedReturnBps,
				"peak_return_bps":           row.PeakReturnBps,
				"tail_capture":              row.TailCapture,
				"time_exposed_ms":           row.TimeExposedMs,
				"max_adverse_excursion_bps": row.MaxAdverseExcursionBps,
				"entry_ts":                  row.EntryTimestampMs,
				"exit_ts":                   row.ExitTimestampMs,
				"exit_reason":               row.ExitReason,
			},
		}
	}

	exitMul := execution.ExitCostMultiplier(costs)
	switch {
	case !finite(row.RealizedReturnBps) || !finite(row.PeakReturnBps):
		return violation("returns are finite")
	case row.RealizedReturnBps > row.PeakReturnBps+returnTolerance*math.Max(1, math.Abs(row.PeakReturnBps)):
		return violation("realized_return_bps <= peak_return_bps")
	case row.TailCapture < 0 || row.TailCapture > 1:
		return violation("tail_capture in [0, 1]")
	case row.TimeExposedMs < 0:
		return violation("time_exposed_ms >= 0")
	case row.MaxAdverseExcursionBps > 0:
		return violation("max_adverse_excursion_bps <= 0")
	case row.ExitTimestampMs < row.EntryTimestampMs:
		return violation("exit_ts >= entry_ts")
	case execution.EntryCostMultiplier(costs) < 1:
		return violation("entry cost multiplier >= 1")
	case exitMul < 0 || exitMul > 1:
		return violation("exit cost multiplier in [0, 1]")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
