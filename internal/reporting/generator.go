package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alertlab/internal/domain"
	"alertlab/internal/metrics"
	"alertlab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	callStore      storage.CallStore
	resultStore    storage.PolicyResultStore
	optimizerStore storage.OptimizerResultStore
	now            func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. optimizerStore may be nil.
func NewGenerator(
	callStore storage.CallStore,
	resultStore storage.PolicyResultStore,
	optimizerStore storage.OptimizerResultStore,
) *Generator {
	return &Generator{
		callStore:      callStore,
		resultStore:    resultStore,
		optimizerStore: optimizerStore,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report of one run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	rows, err := g.resultStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load policy results: %w", err)
	}

	calls, err := g.callStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}

	byPolicy := groupByPolicy(rows)
	policyIDs := make([]string, 0, len(byPolicy))
	for id := range byPolicy {
		policyIDs = append(policyIDs, id)
	}
	sort.Strings(policyIDs)

	agg := metrics.NewAggregator(g.resultStore, g.callStore)
	var callerRows []CallerMetricRow
	policyRows := make([]PolicyMetricRow, 0, len(policyIDs))
	for _, id := range policyIDs {
		policyRows = append(policyRows, policyMetricRow(id, metrics.Summarize(byPolicy[id])))

		byCaller, err := agg.ComputeByCaller(ctx, runID, id)
		if err != nil {
			return nil, fmt.Errorf("caller metrics for %s: %w", id, err)
		}
		for _, cs := range byCaller {
			callerRows = append(callerRows, CallerMetricRow{
				PolicyID:        id,
				CallerID:        cs.CallerID,
				Calls:           cs.Summary.Count,
				WinRate:         cs.Summary.WinRate,
				MedianReturnBps: cs.Summary.MedianReturnBps,
				MeanTailCapture: cs.Summary.MeanTailCapture,
			})
		}
	}

	var optimizerRows []*domain.OptimizerResultRow
	if g.optimizerStore != nil {
		optimizerRows, err = g.optimizerStore.GetByRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("load optimizer results: %w", err)
		}
	}

	return &Report{
		GeneratedAt:      g.now(),
		RunID:            runID,
		PolicyCount:      len(policyIDs),
		DataSummary:      dataSummary(calls, rows),
		DataQuality:      DataQualitySection{IntegrityErrors: agg.GetMissingCallErrors()},
		PolicyMetrics:    policyRows,
		CallerMetrics:    callerRows,
		OptimizerResults: optimizerRows,
	}, nil
}

func groupByPolicy(rows []*domain.PolicyResultRow) map[string][]*domain.PolicyResultRow {
	out := make(map[string][]*domain.PolicyResultRow)
	for _, r := range rows {
		out[r.PolicyID] = append(out[r.PolicyID], r)
	}
	return out
}

// dataSummary describes the calls referenced by the run's results.
func dataSummary(calls []*domain.Call, rows []*domain.PolicyResultRow) DataSummary {
	referenced := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		referenced[r.CallID] = struct{}{}
	}

	callers := make(map[string]struct{})
	s := DataSummary{PolicyResults: len(rows)}
	for _, c := range calls {
		if _, ok := referenced[c.CallID]; !ok {
			continue
		}
		if s.TotalCalls == 0 || c.EntryTimestampMs < s.DateRangeStart {
			s.DateRangeStart = c.EntryTimestampMs
		}
		if s.TotalCalls == 0 || c.EntryTimestampMs > s.DateRangeEnd {
			s.DateRangeEnd = c.EntryTimestampMs
		}
		s.TotalCalls++
		callers[c.CallerID] = struct{}{}
	}
	s.TotalCallers = len(callers)
	return s
}

func policyMetricRow(policyID string, s metrics.Summary) PolicyMetricRow {
	return PolicyMetricRow{
		PolicyID:             policyID,
		Calls:                s.Count,
		WinRate:              s.WinRate,
		StopOutRate:          s.StopOutRate,
		MeanReturnBps:        s.MeanReturnBps,
		MedianReturnBps:      s.MedianReturnBps,
		P10ReturnBps:         s.P10ReturnBps,
		P90ReturnBps:         s.P90ReturnBps,
		P95DrawdownBps:       s.P95DrawdownBps,
		MeanTailCapture:      s.MeanTailCapture,
		MedianTimeTo2xMs:     s.MedianTimeTo2xMs,
		MaxDrawdownBps:       s.MaxDrawdownBps,
		MaxConsecutiveLosses: s.MaxConsecutiveLosses,
	}
}
