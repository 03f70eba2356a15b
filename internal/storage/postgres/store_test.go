package postgres_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
	"alertlab/internal/storage/postgres"
)

func seedCalls(t *testing.T, ctx context.Context, pool *postgres.Pool) []*domain.Call {
	t.Helper()

	calls := []*domain.Call{
		{CallID: "call-b", CallerID: "alice", Symbol: "AAA", EntryTimestampMs: 2000, ReferencePrice: 1.5, CreatedAt: 10},
		{CallID: "call-a", CallerID: "alice", Symbol: "BBB", EntryTimestampMs: 1000, CreatedAt: 10},
		{CallID: "call-c", CallerID: "bob", Symbol: "AAA", EntryTimestampMs: 1000, CreatedAt: 10},
	}
	require.NoError(t, postgres.NewCallStore(pool).InsertBulk(ctx, calls))
	return calls
}

func TestCallStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewCallStore(pool)
	calls := seedCalls(t, ctx, pool)

	got, err := store.GetByID(ctx, "call-b")
	require.NoError(t, err)
	assert.Equal(t, calls[0], got)

	byCaller, err := store.GetByCaller(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byCaller, 2)
	assert.Equal(t, "call-a", byCaller[0].CallID)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"call-a", "call-c", "call-b"}, []string{all[0].CallID, all[1].CallID, all[2].CallID})

	assert.ErrorIs(t, store.Insert(ctx, calls[0]), storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPolicyResultStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedCalls(t, ctx, pool)
	store := postgres.NewPolicyResultStore(pool)

	rows := []*domain.PolicyResultRow{
		{
			RunID: "run-1", PolicyID: "fixed_stop_x", CallID: "call-b",
			RealizedReturnBps: 9500, PeakReturnBps: 12000, MaxAdverseExcursionBps: -300,
			TimeExposedMs: 60_000, TailCapture: 0.79, TimeTo2xMs: ptr(int64(30_000)),
			EntryTimestampMs: 2000, EntryPrice: 1, ExitTimestampMs: 62_000, ExitPrice: 2,
			ExitReason: domain.ExitReasonProfitTarget,
		},
		{
			RunID: "run-1", PolicyID: "fixed_stop_x", CallID: "call-a",
			RealizedReturnBps: -3000, StopOut: true, MaxAdverseExcursionBps: -3100,
			EntryTimestampMs: 1000, EntryPrice: 1, ExitTimestampMs: 1000, ExitPrice: 0.7,
			ExitReason: domain.ExitReasonStopLoss,
		},
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	got, err := store.GetByRunPolicy(ctx, "run-1", "fixed_stop_x")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "call-a", got[0].CallID)
	assert.Nil(t, got[0].TimeTo2xMs)
	assert.Equal(t, rows[0], got[1])

	assert.ErrorIs(t, store.InsertBulk(ctx, rows[:1]), storage.ErrDuplicateKey)

	byRun, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, byRun, 2)

	// Unknown call and out-of-range tail capture are rejected by constraints.
	orphan := *rows[0]
	orphan.RunID, orphan.CallID = "run-2", "call-missing"
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.PolicyResultRow{&orphan}), storage.ErrInvalidInput)

	bad := *rows[0]
	bad.RunID, bad.TailCapture = "run-2", 1.5
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.PolicyResultRow{&bad}), storage.ErrInvalidInput)
}

func TestOptimizerResultStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewOptimizerResultStore(pool)

	rows := []*domain.OptimizerResultRow{
		{
			RunID: "run-1", Rank: 2, ConfigKey: "stop_pct=-0.1", PolicyID: "p2",
			Status: domain.ConfigStatusEvaluated, Score: math.Inf(-1),
			ConstraintViolated: true, Violations: []string{"stop_out_rate 0.6 > 0.3"},
			CallsEvaluated: 5,
		},
		{
			RunID: "run-1", Rank: 1, ConfigKey: "stop_pct=-0.3", PolicyID: "p1",
			Status: domain.ConfigStatusEvaluated, Score: 1200, CallsEvaluated: 5,
			MedianReturnBps: 1200, MedianTimeTo2xMs: ptr(45_000.0),
		},
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	got, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "stop_pct=-0.3", got[0].ConfigKey)
	assert.True(t, math.IsInf(got[1].Score, -1))
	assert.Equal(t, rows[0].Violations, got[1].Violations)
	require.NotNil(t, got[0].MedianTimeTo2xMs)
	assert.InDelta(t, 45_000.0, *got[0].MedianTimeTo2xMs, 1e-9)

	assert.ErrorIs(t, store.InsertBulk(ctx, rows[1:]), storage.ErrDuplicateKey)
}
