package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
	"alertlab/internal/storage/clickhouse"
)

func TestCandleStore_InsertAndRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewCandleStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, "SYM", domain.Interval1m, nil))

	candles := []domain.Candle{
		{TimestampMs: 0, Open: 1, High: 1.2, Low: 0.9, Close: 1.1, Volume: 100},
		{TimestampMs: 60_000, Open: 1.1, High: 1.5, Low: 1.0, Close: 1.4, Volume: 250},
		{TimestampMs: 120_000, Open: 1.4, High: 2.1, Low: 1.3, Close: 2.0, Volume: 400},
	}
	require.NoError(t, store.InsertBulk(ctx, "SYM", domain.Interval1m, candles))

	got, err := store.GetRange(ctx, "SYM", domain.Interval1m, 60_000, 120_000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, candles[1], got[0])
	assert.Equal(t, candles[2], got[1])

	err = store.InsertBulk(ctx, "SYM", domain.Interval1m, candles[:1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// another interval is a distinct series
	require.NoError(t, store.InsertBulk(ctx, "SYM", domain.Interval5m, candles[:1]))
}

func TestPathMetricsStore_PutIdempotent(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewPathMetricsStore(conn)
	ctx := context.Background()

	row := &domain.PathMetricsRow{
		CallID:                 "call-1",
		EntryTimestampMs:       1000,
		EntryPrice:             1.0,
		Hit2x:                  true,
		Hit2xTimestampMs:       ptr(int64(61_000)),
		TimeTo2xMs:             ptr(int64(60_000)),
		MaxAdverseExcursionBps: -500,
		PeakMultiple:           2.3,
		PeakTimestampMs:        121_000,
		CandleCount:            3,
		WindowEndMs:            121_000,
	}

	require.NoError(t, store.Put(ctx, row))
	require.NoError(t, store.Put(ctx, row), "identical put must be a no-op")

	changed := *row
	changed.PeakMultiple = 2.4
	assert.ErrorIs(t, store.Put(ctx, &changed), storage.ErrTruthConflict)

	got, err := store.GetByCallID(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, row, got)
	assert.Nil(t, got.Hit3xTimestampMs)

	_, err = store.GetByCallID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
