// Package metrics aggregates policy results into distribution statistics.
package metrics

import (
	"sort"

	"alertlab/internal/domain"
)

// Summary holds distribution statistics over a set of policy results.
type Summary struct {
	Count int

	MeanReturnBps   float64
	MedianReturnBps float64
	P10ReturnBps    float64
	P90ReturnBps    float64
	StddevReturnBps float64
	WinRate         float64 // share of rows with realized return > 0

	StopOutRate float64

	// Drawdowns are magnitudes of MaxAdverseExcursionBps, >= 0.
	MedianDrawdownBps float64
	P95DrawdownBps    float64

	MedianTimeExposedMs float64
	MeanTailCapture     float64
	MedianTimeTo2xMs    *float64 // over rows that reached 2x while exposed, nil if none

	// Order-dependent, over rows sorted by entry timestamp then call id.
	MaxDrawdownBps       float64
	MaxConsecutiveLosses int
}

// Summarize computes a Summary. Rows are sorted by EntryTimestampMs ASC, CallID ASC
// before order-dependent metrics, so input order never matters.
func Summarize(rows []*domain.PolicyResultRow) Summary {
	n := len(rows)
	if n == 0 {
		return Summary{}
	}

	sorted := make([]*domain.PolicyResultRow, n)
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EntryTimestampMs != sorted[j].EntryTimestampMs {
			return sorted[i].EntryTimestampMs < sorted[j].EntryTimestampMs
		}
		return sorted[i].CallID < sorted[j].CallID
	})

	returns := make([]float64, n)
	drawdowns := make([]float64, n)
	exposed := make([]float64, n)
	tails := make([]float64, n)
	var to2x []float64
	wins, stops := 0, 0

	for i, r := range sorted {
		returns[i] = r.RealizedReturnBps
		drawdowns[i] = -r.MaxAdverseExcursionBps
		exposed[i] = float64(r.TimeExposedMs)
		tails[i] = r.TailCapture
		if r.TimeTo2xMs != nil {
			to2x = append(to2x, float64(*r.TimeTo2xMs))
		}
		if r.RealizedReturnBps > 0 {
			wins++
		}
		if r.StopOut {
			stops++
		}
	}

	sortedReturns := Sorted(returns)
	sortedDrawdowns := Sorted(drawdowns)
	mean := Mean(returns)

	s := Summary{
		Count:                n,
		MeanReturnBps:        mean,
		MedianReturnBps:      Percentile(sortedReturns, 0.50),
		P10ReturnBps:         Percentile(sortedReturns, 0.10),
		P90ReturnBps:         Percentile(sortedReturns, 0.90),
		StddevReturnBps:      Stddev(returns, mean),
		WinRate:              float64(wins) / float64(n),
		StopOutRate:          float64(stops) / float64(n),
		MedianDrawdownBps:    Percentile(sortedDrawdowns, 0.50),
		P95DrawdownBps:       Percentile(sortedDrawdowns, 0.95),
		MedianTimeExposedMs:  Median(exposed),
		MeanTailCapture:      Mean(tails),
		MaxDrawdownBps:       MaxDrawdown(returns),
		MaxConsecutiveLosses: MaxConsecutiveLosses(returns),
	}
	if len(to2x) > 0 {
		m := Median(to2x)
		s.MedianTimeTo2xMs = &m
	}
	return s
}
