package memory

import (
	"context"
	"errors"
	"testing"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

func TestCallStore_InsertAndGet(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	calls := []*domain.Call{
		{CallID: "c2", CallerID: "alice", Symbol: "A", EntryTimestampMs: 2000},
		{CallID: "c1", CallerID: "alice", Symbol: "B", EntryTimestampMs: 1000},
		{CallID: "c3", CallerID: "bob", Symbol: "A", EntryTimestampMs: 1000},
	}
	if err := store.InsertBulk(ctx, calls); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Symbol != "B" {
		t.Errorf("Symbol = %s, want B", got.Symbol)
	}

	byCaller, _ := store.GetByCaller(ctx, "alice")
	if len(byCaller) != 2 || byCaller[0].CallID != "c1" {
		t.Errorf("GetByCaller order wrong: %+v", byCaller)
	}

	all, _ := store.GetAll(ctx)
	want := []string{"c1", "c3", "c2"}
	for i, w := range want {
		if all[i].CallID != w {
			t.Errorf("GetAll[%d] = %s, want %s", i, all[i].CallID, w)
		}
	}
}

func TestCallStore_Errors(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.Call{CallID: "c1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, &domain.Call{CallID: "c1"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Call{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// intra-batch duplicate leaves the store unchanged
	err := store.InsertBulk(ctx, []*domain.Call{{CallID: "c2"}, {CallID: "c2"}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByID(ctx, "c2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("batch was partially applied")
	}
}

func TestCandleStore_Range(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []domain.Candle{
		{TimestampMs: 120_000, Open: 3, High: 3, Low: 3, Close: 3},
		{TimestampMs: 0, Open: 1, High: 1, Low: 1, Close: 1},
		{TimestampMs: 60_000, Open: 2, High: 2, Low: 2, Close: 2},
	}
	if err := store.InsertBulk(ctx, "SYM", domain.Interval1m, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetRange(ctx, "SYM", domain.Interval1m, 60_000, 120_000)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 2 || got[0].Open != 2 || got[1].Open != 3 {
		t.Errorf("GetRange = %+v", got)
	}

	if got, _ := store.GetRange(ctx, "SYM", domain.Interval5m, 0, 1e9); len(got) != 0 {
		t.Errorf("other interval returned %d candles", len(got))
	}

	err = store.InsertBulk(ctx, "SYM", domain.Interval1m, []domain.Candle{{TimestampMs: 60_000}})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.InsertBulk(ctx, "SYM", "7m", candles); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestPathMetricsStore_Idempotent(t *testing.T) {
	store := NewPathMetricsStore()
	ctx := context.Background()

	ts := int64(5000)
	row := &domain.PathMetricsRow{CallID: "c1", EntryPrice: 1, Hit2x: true, Hit2xTimestampMs: &ts, PeakMultiple: 2.4}

	if err := store.Put(ctx, row); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	same := *row
	if err := store.Put(ctx, &same); err != nil {
		t.Errorf("identical Put should be a no-op, got %v", err)
	}

	changed := *row
	changed.PeakMultiple = 2.5
	if err := store.Put(ctx, &changed); !errors.Is(err, storage.ErrTruthConflict) {
		t.Errorf("Expected ErrTruthConflict, got %v", err)
	}

	got, err := store.GetByCallID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByCallID failed: %v", err)
	}
	if got.PeakMultiple != 2.4 {
		t.Errorf("truth was altered: PeakMultiple = %v", got.PeakMultiple)
	}
}

func TestPathMetricsStore_CopiesTimestamps(t *testing.T) {
	store := NewPathMetricsStore()
	ctx := context.Background()

	hit, tt := int64(5000), int64(4000)
	row := &domain.PathMetricsRow{CallID: "c1", EntryPrice: 1, Hit2x: true, Hit2xTimestampMs: &hit, TimeTo2xMs: &tt}
	if err := store.Put(ctx, row); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Caller mutations after Put must not reach the stored row.
	hit, tt = 1, 1
	got, err := store.GetByCallID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByCallID failed: %v", err)
	}
	if *got.Hit2xTimestampMs != 5000 || *got.TimeTo2xMs != 4000 {
		t.Fatalf("stored row changed with caller: hit=%d time_to=%d", *got.Hit2xTimestampMs, *got.TimeTo2xMs)
	}

	// Nor may mutations of a returned row.
	*got.Hit2xTimestampMs = 7
	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if *all[0].Hit2xTimestampMs != 5000 {
		t.Errorf("stored row changed through a read: hit=%d", *all[0].Hit2xTimestampMs)
	}
	if all[0].Hit3xTimestampMs != nil {
		t.Errorf("nil timestamp became %v", all[0].Hit3xTimestampMs)
	}
}

func TestPolicyResultStore(t *testing.T) {
	store := NewPolicyResultStore()
	ctx := context.Background()

	rows := []*domain.PolicyResultRow{
		{RunID: "r1", PolicyID: "p2", CallID: "c1", EntryTimestampMs: 10},
		{RunID: "r1", PolicyID: "p1", CallID: "c2", EntryTimestampMs: 20},
		{RunID: "r1", PolicyID: "p1", CallID: "c1", EntryTimestampMs: 10},
		{RunID: "r2", PolicyID: "p1", CallID: "c1", EntryTimestampMs: 10},
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, _ := store.GetByRun(ctx, "r1")
	if len(got) != 3 {
		t.Fatalf("GetByRun len = %d, want 3", len(got))
	}
	if got[0].PolicyID != "p1" || got[0].CallID != "c1" || got[2].PolicyID != "p2" {
		t.Errorf("GetByRun order wrong")
	}

	byPolicy, _ := store.GetByRunPolicy(ctx, "r1", "p1")
	if len(byPolicy) != 2 {
		t.Errorf("GetByRunPolicy len = %d, want 2", len(byPolicy))
	}

	if err := store.InsertBulk(ctx, rows[:1]); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestOptimizerResultStore(t *testing.T) {
	store := NewOptimizerResultStore()
	ctx := context.Background()

	rows := []*domain.OptimizerResultRow{
		{RunID: "r1", ConfigKey: "b", Rank: 2, Violations: []string{"x"}},
		{RunID: "r1", ConfigKey: "a", Rank: 1},
	}
	if err := store.InsertBulk(ctx, rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	rows[0].Violations[0] = "mutated"

	got, _ := store.GetByRun(ctx, "r1")
	if len(got) != 2 || got[0].ConfigKey != "a" {
		t.Fatalf("GetByRun = %+v", got)
	}
	if got[1].Violations[0] != "x" {
		t.Errorf("stored violations aliased caller slice")
	}
}
