package verification

import (
	"context"
	"math"
	"testing"

	"alertlab/internal/domain"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/policy"
	"alertlab/internal/storage/memory"
)

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt64(v int64) *int64       { return &v }

var testCosts = domain.CostConfig{EntrySlippageBps: 50, ExitSlippageBps: 50, TakerFeeBps: 10}

var testExecution = domain.ExecutionConfig{
	Latency: domain.LatencyConfig{P50Ms: 100, P90Ms: 400, P99Ms: 1000},
}

// rampCandles rises from 1.0 to 2.6 and back, one candle per minute from start.
func rampCandles(start int64) []domain.Candle {
	closes := []float64{1.1, 1.3, 1.6, 2.0, 2.4, 2.6, 2.2, 1.8, 1.5, 1.2}
	candles := make([]domain.Candle, len(closes))
	open := 1.0
	for i, c := range closes {
		candles[i] = domain.Candle{
			TimestampMs: start + int64(i)*60_000,
			Open:        open,
			High:        math.Max(open, c) * 1.02,
			Low:         math.Min(open, c) * 0.98,
			Close:       c,
			Volume:      1000,
		}
		open = c
	}
	return candles
}

type fixture struct {
	verifier *ReplayVerifier
	results  *memory.PolicyResultStore
	truth    *memory.PathMetricsStore
	policy   policy.Policy
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	calls := memory.NewCallStore()
	candles := memory.NewCandleStore()
	truth := memory.NewPathMetricsStore()
	results := memory.NewPolicyResultStore()

	p := policy.NewFixedStop(-0.3, ptrFloat64(2))

	for i, id := range []string{"c1", "c2"} {
		call := &domain.Call{CallID: id, CallerID: "alice", Symbol: "SYM" + id, EntryTimestampMs: int64(i+1) * 600_000}
		if err := calls.Insert(ctx, call); err != nil {
			t.Fatal(err)
		}
		series := rampCandles(call.EntryTimestampMs)
		if err := candles.InsertBulk(ctx, call.Symbol, domain.Interval1m, series); err != nil {
			t.Fatal(err)
		}

		row, err := pathmetrics.Compute(*call, series)
		if err != nil {
			t.Fatal(err)
		}
		if err := truth.Put(ctx, row); err != nil {
			t.Fatal(err)
		}

		res, err := policy.EvaluatePolicy(*call, series, p, testCosts, testExecution, policy.Seed("run-1", p, call.CallID))
		if err != nil {
			t.Fatal(err)
		}
		res.RunID = "run-1"
		if err := results.InsertBulk(ctx, []*domain.PolicyResultRow{res}); err != nil {
			t.Fatal(err)
		}
	}

	v := NewReplayVerifier(ReplayVerifierOptions{
		CallStore:   calls,
		CandleStore: candles,
		TruthStore:  truth,
		ResultStore: results,
		Policies:    []policy.Policy{p},
		Costs:       testCosts,
		Execution:   testExecution,
		Interval:    domain.Interval1m,
		WindowMs:    3_600_000,
	})
	return &fixture{verifier: v, results: results, truth: truth, policy: p}
}

func TestVerifyRun_AllMatch(t *testing.T) {
	f := setupFixture(t)

	report, err := f.verifier.VerifyRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}

	// 2 truth rows + 2 policy rows
	if report.TotalRows != 4 || report.MatchedRows != 4 || report.DivergentRows != 0 {
		for _, r := range report.Results {
			t.Logf("%s %s %s: %v", r.Kind, r.CallID, r.PolicyID, r.Divergences)
		}
		t.Fatalf("unexpected report totals: %d/%d/%d", report.TotalRows, report.MatchedRows, report.DivergentRows)
	}
	if report.Results[0].Kind != KindTruth || report.Results[3].Kind != KindPolicy {
		t.Errorf("expected truth rows before policy rows")
	}
}

func TestVerifyPolicyResult_Tampered(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	rows, err := f.results.GetByRunPolicy(ctx, "run-1", f.policy.ID())
	if err != nil || len(rows) == 0 {
		t.Fatalf("load rows: %v", err)
	}

	// Store a tampered copy under another run: the seed differs, and so does the return.
	tampered := *rows[0]
	tampered.RunID = "run-2"
	tampered.RealizedReturnBps += 1
	if err := f.results.InsertBulk(ctx, []*domain.PolicyResultRow{&tampered}); err != nil {
		t.Fatal(err)
	}

	res, err := f.verifier.VerifyPolicyResult(ctx, "run-2", f.policy.ID(), tampered.CallID)
	if err != nil {
		t.Fatalf("VerifyPolicyResult: %v", err)
	}
	if res.Match {
		t.Fatal("expected divergence")
	}
	found := false
	for _, d := range res.Divergences {
		if d.Field == "RealizedReturnBps" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected RealizedReturnBps divergence, got %v", res.Divergences)
	}
}

func TestVerifyPolicyResult_NotFound(t *testing.T) {
	f := setupFixture(t)

	if _, err := f.verifier.VerifyPolicyResult(context.Background(), "run-1", f.policy.ID(), "missing"); err != ErrRowNotFound {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
}

func TestVerifyRun_UnknownPolicy(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	row := &domain.PolicyResultRow{RunID: "run-3", PolicyID: "ghost", CallID: "c1"}
	if err := f.results.InsertBulk(ctx, []*domain.PolicyResultRow{row}); err != nil {
		t.Fatal(err)
	}

	report, err := f.verifier.VerifyRun(ctx, "run-3")
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}
	if report.TotalRows != 2 || report.DivergentRows != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	last := report.Results[1]
	if last.Kind != KindPolicy || len(last.Divergences) != 1 || last.Divergences[0].Field != "Error" {
		t.Errorf("expected recorded replay error, got %+v", last)
	}
}

func TestVerifyTruth_NotFound(t *testing.T) {
	f := setupFixture(t)

	if _, err := f.verifier.VerifyTruth(context.Background(), "missing"); err != ErrRowNotFound {
		t.Errorf("expected ErrRowNotFound, got %v", err)
	}
}

func TestComparePathMetrics(t *testing.T) {
	base := &domain.PathMetricsRow{
		CallID:           "c1",
		EntryTimestampMs: 1000,
		EntryPrice:       1,
		Hit2x:            true,
		Hit2xTimestampMs: ptrInt64(5000),
		TimeTo2xMs:       ptrInt64(4000),
		PeakMultiple:     2.5,
		CandleCount:      10,
	}

	tests := []struct {
		name   string
		mutate func(r *domain.PathMetricsRow)
		fields []string
	}{
		{"identical", func(r *domain.PathMetricsRow) {}, nil},
		{"within tolerance", func(r *domain.PathMetricsRow) { r.PeakMultiple += 1e-9 }, nil},
		{"peak", func(r *domain.PathMetricsRow) { r.PeakMultiple = 3 }, []string{"PeakMultiple"}},
		{"2x lost", func(r *domain.PathMetricsRow) {
			r.Hit2x = false
			r.Hit2xTimestampMs = nil
			r.TimeTo2xMs = nil
		}, []string{"Hit2x", "Hit2xTimestampMs", "TimeTo2xMs"}},
		{"candle count", func(r *domain.PathMetricsRow) { r.CandleCount = 9 }, []string{"CandleCount"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replayed := *base
			tt.mutate(&replayed)

			got := ComparePathMetrics(base, &replayed)
			if len(got) != len(tt.fields) {
				t.Fatalf("expected %d divergences, got %v", len(tt.fields), got)
			}
			for i, f := range tt.fields {
				if got[i].Field != f {
					t.Errorf("divergence %d = %s, want %s", i, got[i].Field, f)
				}
			}
		})
	}
}

func TestComparePolicyResults(t *testing.T) {
	stored := &domain.PolicyResultRow{
		RunID: "r", PolicyID: "p", CallID: "c",
		RealizedReturnBps: 100, TailCapture: 0.5, TimeTo2xMs: ptrInt64(60_000),
		ExitReason: domain.ExitReasonProfitTarget,
	}

	same := *stored
	same.TimeTo2xMs = ptrInt64(60_000)
	if d := ComparePolicyResults(stored, &same); len(d) != 0 {
		t.Errorf("expected no divergences, got %v", d)
	}

	diff := *stored
	diff.ExitReason = domain.ExitReasonStopLoss
	diff.TimeTo2xMs = nil
	d := ComparePolicyResults(stored, &diff)
	if len(d) != 2 || d[0].Field != "TimeTo2xMs" || d[1].Field != "ExitReason" {
		t.Errorf("unexpected divergences: %v", d)
	}
	if d[0].Expected != int64(60_000) || d[0].Actual != nil {
		t.Errorf("unexpected TimeTo2xMs divergence values: %+v", d[0])
	}
}
