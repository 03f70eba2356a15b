package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertlab/internal/domain"
	"alertlab/internal/idhash"
	"alertlab/internal/storage"
	"alertlab/internal/storage/memory"
)

const sample = `{
  "calls": [
    {"call_id": "c1", "caller_id": "alice", "symbol": "ABC", "entry_ts_ms": 60000},
    {"caller_id": "bob", "symbol": "XYZ", "entry_ts_ms": 120000, "reference_price": 1.5}
  ],
  "series": [
    {"symbol": "ABC", "candles": [
      {"ts_ms": 60000, "open": 1, "high": 1.2, "low": 0.9, "close": 1.1, "volume": 10},
      {"ts_ms": 120000, "open": 1.1, "high": 1.3, "low": 1.0, "close": 1.2, "volume": 12}
    ]},
    {"symbol": "XYZ", "interval": "5m", "candles": [
      {"ts_ms": 0, "open": 1.5, "high": 1.6, "low": 1.4, "close": 1.5, "volume": 3}
    ]}
  ]
}`

func TestDecode(t *testing.T) {
	f, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, f.Calls, 2)
	require.Len(t, f.Series, 2)
	assert.Equal(t, "5m", f.Series[1].Interval)
	assert.Equal(t, 1.5, f.Calls[1].ReferencePrice)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"calls": [], "trades": []}`))
	assert.Error(t, err)
}

func TestDomainCalls_DerivesMissingID(t *testing.T) {
	f, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	calls := f.DomainCalls()
	assert.Equal(t, "c1", calls[0].CallID)
	assert.Equal(t, idhash.ComputeCallID("bob", "XYZ", 120000), calls[1].CallID)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	f, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	calls := memory.NewCallStore()
	candles := memory.NewCandleStore()

	st, err := f.Import(ctx, calls, candles)
	require.NoError(t, err)
	assert.Equal(t, Stats{Calls: 2, Series: 2, Candles: 3}, st)

	got, err := calls.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.CallerID)

	bars, err := candles.GetRange(ctx, "ABC", domain.Interval1m, 0, 1_000_000)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, domain.Candle{TimestampMs: 120000, Open: 1.1, High: 1.3, Low: 1.0, Close: 1.2, Volume: 12}, bars[1])

	bars, err = candles.GetRange(ctx, "XYZ", domain.Interval5m, 0, 1_000_000)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	// A second import collides on call ids.
	_, err = f.Import(ctx, calls, candles)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Calls, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
