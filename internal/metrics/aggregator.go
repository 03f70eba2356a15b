package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

// ErrNoResults is returned when no policy results are available for aggregation.
var ErrNoResults = errors.New("no policy results available for aggregation")

// CallerSummary is a Summary restricted to the calls of one caller.
type CallerSummary struct {
	CallerID string
	Summary  Summary
}

// Aggregator computes summaries from stored policy results.
type Aggregator struct {
	resultStore storage.PolicyResultStore
	callStore   storage.CallStore

	// MissingCalls tracks call_ids referenced by results but absent from the call store.
	// Key: call_id, Value: count of rows referencing it.
	MissingCalls map[string]int
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(resultStore storage.PolicyResultStore, callStore storage.CallStore) *Aggregator {
	return &Aggregator{
		resultStore:  resultStore,
		callStore:    callStore,
		MissingCalls: make(map[string]int),
	}
}

// ComputeSummary summarizes all results of one policy within a run.
// Returns ErrNoResults if the run has no rows for the policy.
func (a *Aggregator) ComputeSummary(ctx context.Context, runID, policyID string) (Summary, error) {
	rows, err := a.resultStore.GetByRunPolicy(ctx, runID, policyID)
	if err != nil {
		return Summary{}, fmt.Errorf("load policy results: %w", err)
	}
	if len(rows) == 0 {
		return Summary{}, ErrNoResults
	}
	return Summarize(rows), nil
}

// ComputeByCaller summarizes one policy's results per caller, sorted by caller id.
// Rows whose call is missing are recorded in MissingCalls and excluded.
func (a *Aggregator) ComputeByCaller(ctx context.Context, runID, policyID string) ([]CallerSummary, error) {
	rows, err := a.resultStore.GetByRunPolicy(ctx, runID, policyID)
	if err != nil {
		return nil, fmt.Errorf("load policy results: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoResults
	}

	grouped := make(map[string][]*domain.PolicyResultRow)
	for _, row := range rows {
		call, err := a.callStore.GetByID(ctx, row.CallID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Record missing call (don't silently skip)
				a.MissingCalls[row.CallID]++
				continue
			}
			return nil, fmt.Errorf("load call %s: %w", row.CallID, err)
		}
		grouped[call.CallerID] = append(grouped[call.CallerID], row)
	}

	callers := make([]string, 0, len(grouped))
	for callerID := range grouped {
		callers = append(callers, callerID)
	}
	sort.Strings(callers)

	out := make([]CallerSummary, 0, len(callers))
	for _, callerID := range callers {
		out = append(out, CallerSummary{CallerID: callerID, Summary: Summarize(grouped[callerID])})
	}
	return out, nil
}

// GetMissingCallErrors returns sorted descriptions of missing calls.
func (a *Aggregator) GetMissingCallErrors() []string {
	if len(a.MissingCalls) == 0 {
		return nil
	}

	ids := make([]string, 0, len(a.MissingCalls))
	for id := range a.MissingCalls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	errs := make([]string, len(ids))
	for i, id := range ids {
		errs[i] = fmt.Sprintf("call %s not found (referenced by %d results)", id, a.MissingCalls[id])
	}
	return errs
}
