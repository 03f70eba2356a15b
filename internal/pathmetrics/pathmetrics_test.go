package pathmetrics

import (
	"errors"
	"math"
	"testing"

	"alertlab/internal/domain"
)

const minute = int64(60_000)

func cdl(i int, o, h, l, c float64) domain.Candle {
	return domain.Candle{TimestampMs: int64(i) * minute, Open: o, High: h, Low: l, Close: c, Volume: 1}
}

func TestCompute(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 0.9, 0.95, 0.85, 0.9), // before the call
		cdl(1, 1.0, 1.2, 0.8, 1.1),
		cdl(2, 1.1, 2.1, 0.7, 2.0), // 2x candle, its low is excluded
		cdl(3, 2.0, 3.5, 0.5, 3.0), // 3x
		cdl(4, 3.0, 3.2, 2.5, 2.6),
	}
	call := domain.Call{CallID: "c1", EntryTimestampMs: 30_000}

	row, err := Compute(call, candles)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if row.EntryTimestampMs != minute || row.EntryPrice != 1.0 {
		t.Errorf("anchor = %d @ %v, want %d @ 1.0", row.EntryTimestampMs, row.EntryPrice, minute)
	}
	if !row.Hit2x || *row.Hit2xTimestampMs != 2*minute || *row.TimeTo2xMs != minute {
		t.Errorf("2x = %v %v %v", row.Hit2x, row.Hit2xTimestampMs, row.TimeTo2xMs)
	}
	if !row.Hit3x || *row.TimeTo3xMs != 2*minute {
		t.Errorf("3x = %v %v", row.Hit3x, row.TimeTo3xMs)
	}
	if row.Hit4x || row.Hit4xTimestampMs != nil || row.TimeTo4xMs != nil {
		t.Error("4x should not be hit")
	}
	if math.Abs(row.MaxAdverseExcursionBps-(-2000)) > 1e-6 {
		t.Errorf("MaxAdverseExcursionBps = %v, want -2000", row.MaxAdverseExcursionBps)
	}
	if math.Abs(row.PeakMultiple-3.5) > 1e-12 || row.PeakTimestampMs != 3*minute {
		t.Errorf("peak = %v at %d", row.PeakMultiple, row.PeakTimestampMs)
	}
	if row.CandleCount != 4 || row.WindowEndMs != 4*minute {
		t.Errorf("window = %d candles ending %d", row.CandleCount, row.WindowEndMs)
	}
}

func TestCompute_No2xUsesWholeWindow(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1.1, 0.9, 1),
		cdl(1, 1, 1.5, 0.6, 1.2),
		cdl(2, 1.2, 1.3, 1.1, 1.2),
	}

	row, err := Compute(domain.Call{CallID: "c"}, candles)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if row.Hit2x {
		t.Error("2x should not be hit")
	}
	if math.Abs(row.MaxAdverseExcursionBps-(-4000)) > 1e-6 {
		t.Errorf("MaxAdverseExcursionBps = %v, want -4000", row.MaxAdverseExcursionBps)
	}
}

func TestCompute_MAEClampedAtZero(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1.5, 1, 1.4),
		cdl(1, 1.4, 1.6, 1.3, 1.5),
	}

	row, err := Compute(domain.Call{CallID: "c"}, candles)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if row.MaxAdverseExcursionBps != 0 {
		t.Errorf("MaxAdverseExcursionBps = %v, want 0", row.MaxAdverseExcursionBps)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 2.2, 0.9, 2),
		cdl(1, 2, 4.5, 1.9, 4),
	}
	call := domain.Call{CallID: "c"}

	a, err := Compute(call, candles)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(call, candles)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(a, b) {
		t.Error("repeated Compute() produced different rows")
	}

	b.PeakMultiple++
	if Equal(a, b) {
		t.Error("Equal() should detect a changed field")
	}
}

func TestCompute_DataErrors(t *testing.T) {
	tests := []struct {
		name    string
		call    domain.Call
		candles []domain.Candle
	}{
		{"empty", domain.Call{CallID: "c"}, nil},
		{"non-monotonic", domain.Call{CallID: "c"}, []domain.Candle{cdl(1, 1, 1, 1, 1), cdl(0, 1, 1, 1, 1)}},
		{"no anchor", domain.Call{CallID: "c", EntryTimestampMs: 10 * minute}, []domain.Candle{cdl(0, 1, 1, 1, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.call, tt.candles)
			if !errors.Is(err, domain.ErrData) {
				t.Errorf("Compute() error = %v, want data error", err)
			}
		})
	}
}
