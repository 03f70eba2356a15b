package sufficiency

import (
	"context"
	"strings"
	"testing"

	"alertlab/internal/domain"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/storage/memory"
)

const dayMs = 24 * 60 * 60 * 1000

func flatCandles(start int64) []domain.Candle {
	out := make([]domain.Candle, 5)
	for i := range out {
		out[i] = domain.Candle{TimestampMs: start + int64(i)*60_000, Open: 1, High: 1.1, Low: 0.9, Close: 1, Volume: 1}
	}
	return out
}

type fixture struct {
	calls   *memory.CallStore
	candles *memory.CandleStore
	truth   *memory.PathMetricsStore
}

// newFixture stores n calls spread one day apart over callers distinct callers,
// each with candles and a truth row.
func newFixture(t *testing.T, n, callers int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{calls: memory.NewCallStore(), candles: memory.NewCandleStore(), truth: memory.NewPathMetricsStore()}

	for i := 0; i < n; i++ {
		call := &domain.Call{
			CallID:           "c" + string(rune('a'+i)),
			CallerID:         "caller" + string(rune('a'+i%callers)),
			Symbol:           "S" + string(rune('a'+i)),
			EntryTimestampMs: int64(i) * dayMs,
		}
		if err := f.calls.Insert(ctx, call); err != nil {
			t.Fatal(err)
		}
		bars := flatCandles(call.EntryTimestampMs)
		if err := f.candles.InsertBulk(ctx, call.Symbol, domain.Interval1m, bars); err != nil {
			t.Fatal(err)
		}
		row, err := pathmetrics.Compute(*call, bars)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.truth.Put(ctx, row); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) checker(th Thresholds) *Checker {
	return NewChecker(f.calls, f.candles, f.truth, domain.Interval1m, 3_600_000).WithThresholds(th)
}

func TestCheck_AllPass(t *testing.T) {
	f := newFixture(t, 6, 3)

	res, err := f.checker(Thresholds{MinCalls: 6, MinCallers: 3, MinCoverageDays: 5}).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.AllPass {
		t.Fatalf("expected all checks to pass: %+v", res.Checks)
	}
	if len(res.Checks) != 6 {
		t.Errorf("checks = %d, want 6", len(res.Checks))
	}
	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors: %v", res.Errors)
	}
}

func TestCheck_Thresholds(t *testing.T) {
	f := newFixture(t, 3, 1)

	res, err := f.checker(DefaultThresholds()).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.AllPass {
		t.Fatal("expected failure with default thresholds")
	}

	want := map[string]bool{
		"Calls":                            false,
		"Distinct callers":                 false,
		"Call coverage":                    false,
		"Calls without candles":            true,
		"Calls without truth row":          true,
		"Truth rows that do not reproduce": true,
	}
	for _, c := range res.Checks {
		if c.Pass != want[c.Name] {
			t.Errorf("%s: pass = %v, want %v (actual %s)", c.Name, c.Pass, want[c.Name], c.Actual)
		}
	}
}

func TestCheck_IntegrityErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, 2)

	// A call with no candles, and one whose truth row is missing.
	if err := f.calls.Insert(ctx, &domain.Call{CallID: "bare", CallerID: "x", Symbol: "NONE", EntryTimestampMs: 0}); err != nil {
		t.Fatal(err)
	}
	call := &domain.Call{CallID: "notruth", CallerID: "y", Symbol: "NT", EntryTimestampMs: dayMs}
	if err := f.calls.Insert(ctx, call); err != nil {
		t.Fatal(err)
	}
	if err := f.candles.InsertBulk(ctx, call.Symbol, domain.Interval1m, flatCandles(call.EntryTimestampMs)); err != nil {
		t.Fatal(err)
	}

	res, err := f.checker(Thresholds{MinCalls: 1, MinCallers: 1}).Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.AllPass {
		t.Fatal("expected failure")
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", res.Errors)
	}
	if !strings.Contains(res.Errors[0], "bare") || !strings.Contains(res.Errors[1], "notruth") {
		t.Errorf("unexpected errors: %v", res.Errors)
	}

	md := res.Markdown()
	for _, s := range []string{"## Data Sufficiency", "| Calls without candles | = 0 | 1 | FAIL |", "### Integrity Errors"} {
		if !strings.Contains(md, s) {
			t.Errorf("markdown missing %q:\n%s", s, md)
		}
	}
}

func TestCheck_Empty(t *testing.T) {
	f := &fixture{calls: memory.NewCallStore(), candles: memory.NewCandleStore(), truth: memory.NewPathMetricsStore()}

	res, err := f.checker(DefaultThresholds()).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.AllPass {
		t.Error("empty store must not pass")
	}
	if res.Checks[2].Actual != "0 days (no calls)" {
		t.Errorf("coverage actual = %q", res.Checks[2].Actual)
	}
}
