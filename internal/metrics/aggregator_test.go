package metrics

import (
	"context"
	"errors"
	"testing"

	"alertlab/internal/domain"
	"alertlab/internal/storage/memory"
)

func makeCall(id, callerID string, entryTs int64) *domain.Call {
	return &domain.Call{
		CallID:           id,
		CallerID:         callerID,
		Symbol:           "SYM-" + id,
		EntryTimestampMs: entryTs,
	}
}

func makeResult(callID string, entryTs int64, returnBps float64, stopOut bool) *domain.PolicyResultRow {
	return &domain.PolicyResultRow{
		RunID:             "run-1",
		PolicyID:          "fixed_stop_a",
		CallID:            callID,
		RealizedReturnBps: returnBps,
		StopOut:           stopOut,
		EntryTimestampMs:  entryTs,
	}
}

func seedAggregator(t *testing.T) *Aggregator {
	t.Helper()
	ctx := context.Background()

	calls := memory.NewCallStore()
	results := memory.NewPolicyResultStore()

	for _, c := range []*domain.Call{
		makeCall("c1", "alice", 1000),
		makeCall("c2", "alice", 2000),
		makeCall("c3", "bob", 3000),
	} {
		if err := calls.Insert(ctx, c); err != nil {
			t.Fatalf("insert call: %v", err)
		}
	}

	rows := []*domain.PolicyResultRow{
		makeResult("c1", 1000, 1000, false),
		makeResult("c2", 2000, -3000, true),
		makeResult("c3", 3000, 500, false),
		makeResult("c4", 4000, 200, false), // call never stored
	}
	if err := results.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("insert results: %v", err)
	}

	return NewAggregator(results, calls)
}

func TestComputeSummary(t *testing.T) {
	agg := seedAggregator(t)

	s, err := agg.ComputeSummary(context.Background(), "run-1", "fixed_stop_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Count != 4 {
		t.Errorf("Count = %d, want 4", s.Count)
	}
	if s.StopOutRate != 0.25 {
		t.Errorf("StopOutRate = %v, want 0.25", s.StopOutRate)
	}
	if s.MaxConsecutiveLosses != 1 {
		t.Errorf("MaxConsecutiveLosses = %d, want 1", s.MaxConsecutiveLosses)
	}
}

func TestComputeSummary_NoResults(t *testing.T) {
	agg := seedAggregator(t)

	_, err := agg.ComputeSummary(context.Background(), "run-1", "unknown")
	if !errors.Is(err, ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

func TestComputeByCaller(t *testing.T) {
	agg := seedAggregator(t)

	got, err := agg.ComputeByCaller(context.Background(), "run-1", "fixed_stop_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 callers, got %d", len(got))
	}

	if got[0].CallerID != "alice" || got[1].CallerID != "bob" {
		t.Errorf("callers = %s,%s, want alice,bob", got[0].CallerID, got[1].CallerID)
	}
	if got[0].Summary.Count != 2 || got[0].Summary.MeanReturnBps != -1000 {
		t.Errorf("alice summary = %+v", got[0].Summary)
	}
	if got[1].Summary.WinRate != 1 {
		t.Errorf("bob WinRate = %v, want 1", got[1].Summary.WinRate)
	}

	if agg.MissingCalls["c4"] != 1 {
		t.Errorf("expected c4 recorded as missing, got %v", agg.MissingCalls)
	}
	errs := agg.GetMissingCallErrors()
	if len(errs) != 1 || errs[0] != "call c4 not found (referenced by 1 results)" {
		t.Errorf("unexpected missing call errors: %v", errs)
	}
}
