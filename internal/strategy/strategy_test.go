package strategy

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"alertlab/internal/clock"
	"alertlab/internal/domain"
	"alertlab/internal/execution"
)

const minute = int64(60_000)

func cdl(i int, o, h, l, c float64) domain.Candle {
	return domain.Candle{TimestampMs: int64(i) * minute, Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

func ptr[T any](v T) *T {
	return &v
}

func testCall() domain.Call {
	return domain.Call{CallID: "call-1", CallerID: "caller", Symbol: "TEST", EntryTimestampMs: 0}
}

func newModel(t *testing.T, costs domain.CostConfig, exec domain.ExecutionConfig, seed uint64) *execution.Model {
	t.Helper()
	m, err := execution.NewModel(costs, exec, clock.NewRNG(seed))
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	return m
}

func perfect(t *testing.T) *execution.Model {
	return newModel(t, domain.CostConfig{}, domain.ExecutionConfig{}, 1)
}

func fixtureCosts() domain.CostConfig {
	return domain.CostConfig{EntrySlippageBps: 125, ExitSlippageBps: 125, TakerFeeBps: 25}
}

func countEvents(r *Result, typ domain.SimulationEventType) int {
	n := 0
	for ev := range r.Events() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestEvaluate_UptrendTakeProfit(t *testing.T) {
	var candles []domain.Candle
	for i := 0; i < 15; i++ {
		o := float64(10+i) / 10
		h := float64(11+i) / 10
		candles = append(candles, cdl(i, o, h, o, h))
	}
	cfg := domain.StrategyConfig{
		StrategyID: "take_2x",
		Legs:       []domain.StrategyLeg{{Percent: 1, Target: 2}},
	}

	r, err := Evaluate(testCall(), candles, cfg, newModel(t, fixtureCosts(), domain.ExecutionConfig{}, 1))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if r.ExitReason != domain.ExitReasonProfitTarget {
		t.Errorf("ExitReason = %s, want profit_target", r.ExitReason)
	}
	if math.Abs(r.ExitPrice-2.0) > 1e-9 {
		t.Errorf("ExitPrice = %v, want 2.0", r.ExitPrice)
	}
	if math.Abs(r.NetMultiple()-1.95) > 0.015 {
		t.Errorf("NetMultiple() = %v, want ~1.95", r.NetMultiple())
	}
	if r.ExitIndex != 9 {
		t.Errorf("ExitIndex = %d, want 9", r.ExitIndex)
	}
}

func TestEvaluate_DowntrendStopLoss(t *testing.T) {
	var candles []domain.Candle
	for i := 0; i < 15; i++ {
		o := float64(100-4*i) / 100
		l := o - 0.04
		candles = append(candles, cdl(i, o, o, l, l))
	}
	cfg := domain.StrategyConfig{
		StrategyID: "stop_30",
		StopLoss:   domain.StopLossConfig{Initial: -0.30},
	}

	r, err := Evaluate(testCall(), candles, cfg, newModel(t, fixtureCosts(), domain.ExecutionConfig{}, 1))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if r.ExitReason != domain.ExitReasonStopLoss {
		t.Errorf("ExitReason = %s, want stop_loss", r.ExitReason)
	}
	if math.Abs(r.ExitPrice-0.70) > 1e-9 {
		t.Errorf("ExitPrice = %v, want 0.70", r.ExitPrice)
	}
	if math.Abs(r.NetMultiple()-0.69) > 0.015 {
		t.Errorf("NetMultiple() = %v, want ~0.69", r.NetMultiple())
	}
}

func TestEvaluate_StopWinsSameCandleTie(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1.05, 0.98, 1),
		cdl(1, 1, 2.5, 0.6, 1),
		cdl(2, 1, 1.1, 0.9, 1),
	}
	cfg := domain.StrategyConfig{
		StrategyID: "tie",
		Legs:       []domain.StrategyLeg{{Percent: 1, Target: 2}},
		StopLoss:   domain.StopLossConfig{Initial: -0.30},
	}

	r, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if r.ExitReason != domain.ExitReasonStopLoss {
		t.Errorf("ExitReason = %s, want stop_loss", r.ExitReason)
	}
	if n := countEvents(r, domain.EventTargetHit); n != 0 {
		t.Errorf("target events = %d, want 0", n)
	}
	if math.Abs(r.ExitPrice-0.7) > 1e-9 || r.ExitIndex != 1 {
		t.Errorf("exit = %v at %d, want 0.7 at 1", r.ExitPrice, r.ExitIndex)
	}
}

func TestEvaluate_LadderExits(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1.2, 1, 1.2),
		cdl(1, 1.2, 1.6, 1.2, 1.6),
		cdl(2, 1.6, 2.1, 1.6, 2.1),
		cdl(3, 2.1, 3.2, 2.1, 3.2),
		cdl(4, 3.2, 3.3, 3.1, 3.2),
	}
	cfg := domain.StrategyConfig{
		StrategyID: "ladder",
		Legs: []domain.StrategyLeg{
			{Percent: 0.33, Target: 1.5},
			{Percent: 0.33, Target: 2},
			{Percent: 0.34, Target: 3},
		},
	}

	r, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	var sizes []float64
	total := 0.0
	for ev := range r.Events() {
		if ev.Type == domain.EventTargetHit {
			sizes = append(sizes, ev.Size)
			total += ev.Size
		}
	}
	if len(sizes) != 3 {
		t.Fatalf("target exits = %d, want 3", len(sizes))
	}
	if math.Abs(total-1) > 1e-12 {
		t.Errorf("exited size = %v, want 1", total)
	}

	want := 0.33*0.5 + 0.33*1.0 + 0.34*2.0
	if math.Abs(r.RealizedPnl-want) > 1e-9 {
		t.Errorf("RealizedPnl = %v, want %v", r.RealizedPnl, want)
	}
	if len(r.Trades) != 1 || r.Trades[0].Status != domain.PositionClosed {
		t.Errorf("Trades = %+v", r.Trades)
	}
	if r.ExitIndex != 3 {
		t.Errorf("ExitIndex = %d, want 3", r.ExitIndex)
	}
}

func TestEvaluate_EntryTimeout(t *testing.T) {
	var candles []domain.Candle
	for i := 0; i < 6; i++ {
		candles = append(candles, cdl(i, 1, 1.01, 0.99, 1))
	}
	cfg := domain.StrategyConfig{
		StrategyID: "wait_drop",
		Entry:      domain.EntryConfig{InitialEntryDropPct: ptr(0.5), MaxWaitMs: 2 * minute},
	}

	r, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if r.Outcome != domain.OutcomeNoEntry || r.Entered() {
		t.Errorf("Outcome = %s, want no_entry", r.Outcome)
	}
	if countEvents(r, domain.EventEntryTimeout) != 1 {
		t.Error("expected one entry_timeout event")
	}
}

func TestEvaluate_DropAndReboundEntry(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1, 0.9, 0.9),
		cdl(1, 0.9, 0.9, 0.75, 0.8),
		cdl(2, 0.8, 0.85, 0.78, 0.85),
		cdl(3, 0.85, 0.9, 0.84, 0.88),
	}

	t.Run("drop", func(t *testing.T) {
		cfg := domain.StrategyConfig{
			StrategyID: "drop",
			Entry:      domain.EntryConfig{InitialEntryDropPct: ptr(0.2)},
		}
		r, err := Evaluate(testCall(), candles, cfg, perfect(t))
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if r.EntryIndex != 1 || math.Abs(r.EntryPrice-0.8) > 1e-9 {
			t.Errorf("entry = %v at %d, want 0.8 at 1", r.EntryPrice, r.EntryIndex)
		}
		if r.ExitReason != domain.ExitReasonEndOfData || math.Abs(r.ExitPrice-0.88) > 1e-9 {
			t.Errorf("exit = %s at %v", r.ExitReason, r.ExitPrice)
		}
	})

	t.Run("rebound after drop", func(t *testing.T) {
		cfg := domain.StrategyConfig{
			StrategyID: "rebound",
			Entry: domain.EntryConfig{
				InitialEntryDropPct:     ptr(0.2),
				TrailingEntryReboundPct: ptr(0.1),
			},
		}
		r, err := Evaluate(testCall(), candles, cfg, perfect(t))
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if r.EntryIndex != 2 || math.Abs(r.EntryPrice-0.825) > 1e-9 {
			t.Errorf("entry = %v at %d, want 0.825 at 2", r.EntryPrice, r.EntryIndex)
		}
	})
}

func TestEvaluate_ReEntryAfterTarget(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1.1, 1, 1.1),
		cdl(1, 1.1, 1.6, 1.1, 1.5),
		cdl(2, 1.5, 1.5, 1.3, 1.3),
		cdl(3, 1.3, 1.3, 1.1, 1.15),
		cdl(4, 1.15, 1.25, 1.1, 1.2),
	}
	cfg := domain.StrategyConfig{
		StrategyID: "reentry",
		Legs:       []domain.StrategyLeg{{Percent: 1, Target: 1.5}},
		ReEntry: domain.ReEntryConfig{
			TrailingReEntryPct: ptr(0.2),
			MaxReEntries:       1,
			SizePercent:        0.5,
		},
	}

	r, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if countEvents(r, domain.EventReEntry) != 1 {
		t.Fatal("expected one re_entry event")
	}
	if len(r.Trades) != 2 {
		t.Fatalf("Trades = %d, want 2", len(r.Trades))
	}
	if r.Trades[1].ReEntryCount != 1 || math.Abs(r.Trades[1].EnteredSize-0.5) > 1e-12 {
		t.Errorf("second trade = %+v", r.Trades[1])
	}
	if math.Abs(r.RealizedPnl-0.5) > 1e-9 {
		t.Errorf("RealizedPnl = %v, want 0.5", r.RealizedPnl)
	}
	if r.ExitReason != domain.ExitReasonEndOfData {
		t.Errorf("ExitReason = %s, want end_of_data", r.ExitReason)
	}
}

func TestEvaluate_TrailingStop(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1.2, 1, 1.2),
		cdl(1, 1.2, 1.6, 1.2, 1.6),
		cdl(2, 1.6, 2.0, 1.5, 1.9),
		cdl(3, 1.9, 1.95, 1.55, 1.6),
		cdl(4, 1.6, 1.7, 1.5, 1.6),
	}
	cfg := domain.StrategyConfig{
		StrategyID: "trail",
		StopLoss: domain.StopLossConfig{
			Trailing: &domain.TrailingStopConfig{ActivationPct: 0.5, TrailPct: 0.2},
		},
	}

	r, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if r.ExitReason != domain.ExitReasonTrailingStop {
		t.Errorf("ExitReason = %s, want trailing_stop", r.ExitReason)
	}
	if math.Abs(r.ExitPrice-1.6) > 1e-9 || r.ExitIndex != 3 {
		t.Errorf("exit = %v at %d, want 1.6 at 3", r.ExitPrice, r.ExitIndex)
	}
	if countEvents(r, domain.EventTrailingArmed) != 1 {
		t.Error("expected one trailing_armed event")
	}
}

func TestEvaluate_RiskRules(t *testing.T) {
	t.Run("circuit breaker", func(t *testing.T) {
		candles := []domain.Candle{
			cdl(0, 1, 1, 0.95, 0.95),
			cdl(1, 0.95, 0.95, 0.75, 0.78),
			cdl(2, 0.78, 0.8, 0.7, 0.7),
		}
		cfg := domain.StrategyConfig{
			StrategyID: "breaker",
			Risk:       domain.RiskConfig{MaxLossPct: ptr(0.2)},
		}
		r, err := Evaluate(testCall(), candles, cfg, perfect(t))
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if r.ExitReason != domain.ExitReasonCircuitBreaker || r.ExitIndex != 1 {
			t.Errorf("exit = %s at %d", r.ExitReason, r.ExitIndex)
		}
	})

	t.Run("time stop", func(t *testing.T) {
		var candles []domain.Candle
		for i := 0; i < 5; i++ {
			candles = append(candles, cdl(i, 1, 1.01, 0.99, 1))
		}
		cfg := domain.StrategyConfig{
			StrategyID: "time",
			Risk:       domain.RiskConfig{MaxHoldMs: ptr(2 * minute)},
		}
		r, err := Evaluate(testCall(), candles, cfg, perfect(t))
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if r.ExitReason != domain.ExitReasonTimeStop || r.ExitIndex != 2 {
			t.Errorf("exit = %s at %d", r.ExitReason, r.ExitIndex)
		}
	})
}

func TestEvaluate_Short(t *testing.T) {
	candles := []domain.Candle{
		cdl(0, 1, 1, 0.9, 0.9),
		cdl(1, 0.9, 0.9, 0.7, 0.7),
		cdl(2, 0.7, 0.7, 0.45, 0.5),
		cdl(3, 0.5, 0.55, 0.5, 0.5),
	}
	cfg := domain.StrategyConfig{
		StrategyID: "short",
		Side:       domain.SideShort,
		Legs:       []domain.StrategyLeg{{Percent: 1, Target: 2}},
		StopLoss:   domain.StopLossConfig{Initial: -0.3},
	}

	r, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if r.ExitReason != domain.ExitReasonProfitTarget || math.Abs(r.ExitPrice-0.5) > 1e-9 {
		t.Errorf("exit = %s at %v", r.ExitReason, r.ExitPrice)
	}
	if math.Abs(r.RealizedPnl-0.5) > 1e-9 {
		t.Errorf("RealizedPnl = %v, want 0.5", r.RealizedPnl)
	}
}

func TestEvaluate_DataErrors(t *testing.T) {
	cfg := domain.StrategyConfig{StrategyID: "s"}

	if _, err := Evaluate(testCall(), nil, cfg, perfect(t)); !errors.Is(err, domain.ErrData) {
		t.Errorf("empty series error = %v, want data error", err)
	}

	late := domain.Call{CallID: "late", EntryTimestampMs: 10 * minute}
	candles := []domain.Candle{cdl(0, 1, 1, 1, 1)}
	if _, err := Evaluate(late, candles, cfg, perfect(t)); !errors.Is(err, domain.ErrData) {
		t.Errorf("no anchor error = %v, want data error", err)
	}

	if _, err := Evaluate(testCall(), candles, cfg, nil); !errors.Is(err, ErrNilModel) {
		t.Errorf("nil model error = %v", err)
	}
}

func wavyCandles(n int) []domain.Candle {
	candles := make([]domain.Candle, n)
	for i := range candles {
		base := 1 + 0.4*math.Sin(float64(i)/3) + float64(i)*0.03
		candles[i] = cdl(i, base, base*1.08, base*0.93, base*1.02)
	}
	return candles
}

func TestEvaluate_Deterministic(t *testing.T) {
	cfg := domain.StrategyConfig{
		StrategyID: "det",
		Legs:       []domain.StrategyLeg{{Percent: 0.5, Target: 1.3}, {Percent: 0.5, Target: 1.8}},
		StopLoss:   domain.StopLossConfig{Initial: -0.25},
		ReEntry:    domain.ReEntryConfig{TrailingReEntryPct: ptr(0.1), MaxReEntries: 2, SizePercent: 0.5},
	}
	exec := domain.ExecutionConfig{
		Latency:      domain.LatencyConfig{P50Ms: 200, P90Ms: 800, P99Ms: 2000, JitterMs: 50},
		Slippage:     domain.SlippageConfig{Model: domain.SlippageSqrt, CoeffBps: 30, ReferenceNotional: 1},
		Failures:     domain.FailureConfig{Base: 0.2, MaxProbability: 0.5},
		PartialFills: domain.PartialFillConfig{Probability: 0.3, MinRatio: 0.4, MaxRatio: 0.9},
	}
	candles := wavyCandles(60)

	r1, err := Evaluate(testCall(), candles, cfg, newModel(t, fixtureCosts(), exec, 42))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	r2, err := Evaluate(testCall(), candles, cfg, newModel(t, fixtureCosts(), exec, 42))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if !reflect.DeepEqual(r1, r2) {
		t.Error("identical inputs produced different results")
	}
	for _, tr := range r1.Trades {
		if tr.Size < 0 {
			t.Errorf("negative size in trade %+v", tr)
		}
	}
}

func TestEvaluate_FutureScramble(t *testing.T) {
	const k = 10
	var candles []domain.Candle
	for i := 0; i < 30; i++ {
		var o float64
		if i <= k {
			o = 1 + float64(i)*0.01
		} else {
			o = 1.1 + float64(i-k)*0.05
		}
		candles = append(candles, cdl(i, o, o*1.02, o*0.99, o*1.01))
	}

	scrambled := make([]domain.Candle, len(candles))
	copy(scrambled, candles)
	for i := k + 1; i < len(scrambled); i++ {
		o := 1.1 - float64(i-k)*0.03
		scrambled[i] = cdl(i, o, o*1.01, o*0.97, o*0.98)
	}

	cfg := domain.StrategyConfig{
		StrategyID: "scramble",
		Legs:       []domain.StrategyLeg{{Percent: 0.5, Target: 1.5}, {Percent: 0.5, Target: 2}},
		StopLoss:   domain.StopLossConfig{Initial: -0.5},
	}

	orig, err := Evaluate(testCall(), candles, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	alt, err := Evaluate(testCall(), scrambled, cfg, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	prefix := func(r *Result) []domain.SimulationEvent {
		var out []domain.SimulationEvent
		for ev := range r.Events() {
			if ev.TimestampMs <= candles[k].TimestampMs {
				out = append(out, ev)
			}
		}
		return out
	}

	if !reflect.DeepEqual(prefix(orig), prefix(alt)) {
		t.Error("events up to the perturbation point changed: future candles leaked into past decisions")
	}
	if reflect.DeepEqual(orig, alt) {
		t.Error("perturbed future produced identical output")
	}
}

func TestResult_EventsRestartable(t *testing.T) {
	r, err := Evaluate(testCall(), wavyCandles(20), domain.StrategyConfig{
		StrategyID: "events",
		Legs:       []domain.StrategyLeg{{Percent: 1, Target: 1.3}},
	}, perfect(t))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	first, second := 0, 0
	for ev := range r.Events() {
		if ev.Seq != first {
			t.Errorf("event seq = %d, want %d", ev.Seq, first)
		}
		first++
	}
	for range r.Events() {
		second++
	}
	if first == 0 || first != second || first != r.EventCount() {
		t.Errorf("event counts: %d, %d, %d", first, second, r.EventCount())
	}

	rec := NewSliceRecorder()
	if err := rec.Record(context.Background(), r.CallID, r.Events()); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(rec.Events(r.CallID)) != first {
		t.Errorf("recorded %d events, want %d", len(rec.Events(r.CallID)), first)
	}

	ch := make(chan CallEvent, first)
	if err := NewChannelRecorder(ch).Record(context.Background(), r.CallID, r.Events()); err != nil {
		t.Fatalf("ChannelRecorder.Record() error = %v", err)
	}
	if len(ch) != first {
		t.Errorf("channel holds %d events, want %d", len(ch), first)
	}
}
