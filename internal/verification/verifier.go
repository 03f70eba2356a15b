// Package verification replays stored truth and policy rows and reports any field
// that no longer reproduces.
package verification

import (
	"context"
	"math"

	"alertlab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// Row kinds.
const (
	KindTruth  = "truth"
	KindPolicy = "policy"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // stored value
	Actual   any    // replayed value
}

// VerificationResult contains the result of verifying a single stored row.
type VerificationResult struct {
	Kind        string            // truth | policy
	CallID      string            // verified call
	PolicyID    string            // empty for truth rows
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRows     int                  // total rows verified
	MatchedRows   int                  // rows that matched
	DivergentRows int                  // rows with divergences or replay errors
	Results       []VerificationResult // individual results
}

func (r *VerificationReport) add(res VerificationResult) {
	r.TotalRows++
	if res.Match {
		r.MatchedRows++
	} else {
		r.DivergentRows++
	}
	r.Results = append(r.Results, res)
}

// Verifier replays stored rows.
type Verifier interface {
	// VerifyTruth recomputes the stored path metrics of one call.
	VerifyTruth(ctx context.Context, callID string) (*VerificationResult, error)

	// VerifyPolicyResult re-evaluates one stored policy result.
	VerifyPolicyResult(ctx context.Context, runID, policyID, callID string) (*VerificationResult, error)

	// VerifyRun verifies every truth row of the run's calls and every policy result of the run.
	VerifyRun(ctx context.Context, runID string) (*VerificationReport, error)
}

type comparer struct {
	divergences []FieldDivergence
}

func (c *comparer) str(field, stored, replayed string) {
	if stored != replayed {
		c.divergences = append(c.divergences, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
}

func (c *comparer) int(field string, stored, replayed int64) {
	if stored != replayed {
		c.divergences = append(c.divergences, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
}

func (c *comparer) bool(field string, stored, replayed bool) {
	if stored != replayed {
		c.divergences = append(c.divergences, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
}

func (c *comparer) float(field string, stored, replayed float64) {
	if !floatEquals(stored, replayed) {
		c.divergences = append(c.divergences, FieldDivergence{Field: field, Expected: stored, Actual: replayed})
	}
}

func (c *comparer) intPtr(field string, stored, replayed *int64) {
	if stored == nil && replayed == nil {
		return
	}
	if stored == nil || replayed == nil || *stored != *replayed {
		c.divergences = append(c.divergences, FieldDivergence{Field: field, Expected: derefOrNil(stored), Actual: derefOrNil(replayed)})
	}
}

// ComparePathMetrics compares two truth rows and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func ComparePathMetrics(stored, replayed *domain.PathMetricsRow) []FieldDivergence {
	var c comparer

	c.str("CallID", stored.CallID, replayed.CallID)
	c.int("EntryTimestampMs", stored.EntryTimestampMs, replayed.EntryTimestampMs)
	c.float("EntryPrice", stored.EntryPrice, replayed.EntryPrice)

	c.bool("Hit2x", stored.Hit2x, replayed.Hit2x)
	c.bool("Hit3x", stored.Hit3x, replayed.Hit3x)
	c.bool("Hit4x", stored.Hit4x, replayed.Hit4x)
	c.intPtr("Hit2xTimestampMs", stored.Hit2xTimestampMs, replayed.Hit2xTimestampMs)
	c.intPtr("Hit3xTimestampMs", stored.Hit3xTimestampMs, replayed.Hit3xTimestampMs)
	c.intPtr("Hit4xTimestampMs", stored.Hit4xTimestampMs, replayed.Hit4xTimestampMs)
	c.intPtr("TimeTo2xMs", stored.TimeTo2xMs, replayed.TimeTo2xMs)
	c.intPtr("TimeTo3xMs", stored.TimeTo3xMs, replayed.TimeTo3xMs)
	c.intPtr("TimeTo4xMs", stored.TimeTo4xMs, replayed.TimeTo4xMs)

	c.float("MaxAdverseExcursionBps", stored.MaxAdverseExcursionBps, replayed.MaxAdverseExcursionBps)
	c.float("PeakMultiple", stored.PeakMultiple, replayed.PeakMultiple)
	c.int("PeakTimestampMs", stored.PeakTimestampMs, replayed.PeakTimestampMs)
	c.int("CandleCount", int64(stored.CandleCount), int64(replayed.CandleCount))
	c.int("WindowEndMs", stored.WindowEndMs, replayed.WindowEndMs)

	return c.divergences
}

// ComparePolicyResults compares two policy result rows and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func ComparePolicyResults(stored, replayed *domain.PolicyResultRow) []FieldDivergence {
	var c comparer

	c.str("PolicyID", stored.PolicyID, replayed.PolicyID)
	c.str("CallID", stored.CallID, replayed.CallID)
	c.str("RunID", stored.RunID, replayed.RunID)

	c.float("RealizedReturnBps", stored.RealizedReturnBps, replayed.RealizedReturnBps)
	c.float("PeakReturnBps", stored.PeakReturnBps, replayed.PeakReturnBps)
	c.bool("StopOut", stored.StopOut, replayed.StopOut)
	c.float("MaxAdverseExcursionBps", stored.MaxAdverseExcursionBps, replayed.MaxAdverseExcursionBps)
	c.int("TimeExposedMs", stored.TimeExposedMs, replayed.TimeExposedMs)
	c.float("TailCapture", stored.TailCapture, replayed.TailCapture)
	c.intPtr("TimeTo2xMs", stored.TimeTo2xMs, replayed.TimeTo2xMs)

	c.int("EntryTimestampMs", stored.EntryTimestampMs, replayed.EntryTimestampMs)
	c.float("EntryPrice", stored.EntryPrice, replayed.EntryPrice)
	c.int("ExitTimestampMs", stored.ExitTimestampMs, replayed.ExitTimestampMs)
	c.float("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	c.str("ExitReason", stored.ExitReason, replayed.ExitReason)

	return c.divergences
}

// floatEquals compares two floats with tolerance.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= FloatTolerance
}

func derefOrNil(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
