package policy

import (
	"errors"
	"math"

	"alertlab/internal/clock"
	"alertlab/internal/domain"
	"alertlab/internal/execution"
	"alertlab/internal/strategy"
)

// ErrNoEntry is returned when the entry never filled, e.g. every attempt failed.
var ErrNoEntry = errors.New("policy entry never filled")

// Seed returns the RNG seed of one (run, policy, call) evaluation. Batch runs and replay
// verification derive seeds the same way so stored rows can be reproduced.
func Seed(runID string, p Policy, callID string) uint64 {
	return clock.NewRunRNG(runID, p.ID()).Derive(callID).Seed()
}

// EvaluatePolicy replays candles against one policy and returns its result row.
// It is pure: identical arguments always produce an identical row. RunID is left
// for the caller to set.
//
// Errors:
//   - *domain.ValidationError for an invalid policy or cost/execution config
//   - *domain.DataError for an unusable series
//   - ErrNoEntry when no entry fill happened
//   - *domain.InvariantViolation when the row breaks a result invariant
func EvaluatePolicy(
	call domain.Call,
	candles []domain.Candle,
	p Policy,
	costs domain.CostConfig,
	exec domain.ExecutionConfig,
	seed uint64,
) (*domain.PolicyResultRow, error) {
	row, _, err := EvaluateTrace(call, candles, p, costs, exec, seed)
	return row, err
}

// EvaluateTrace is EvaluatePolicy that also returns the strategy result, whose event
// sequence can be handed to a strategy.Recorder. The result is set whenever the
// evaluation itself ran, including ErrNoEntry and invariant failures.
func EvaluateTrace(
	call domain.Call,
	candles []domain.Candle,
	p Policy,
	costs domain.CostConfig,
	exec domain.ExecutionConfig,
	seed uint64,
) (*domain.PolicyResultRow, *strategy.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	plan, err := strategy.FromConfig(p.StrategyConfig())
	if err != nil {
		return nil, nil, err
	}
	model, err := execution.NewModel(costs, exec, clock.NewRNG(seed))
	if err != nil {
		return nil, nil, err
	}

	res, err := strategy.EvaluatePlan(call, candles, plan, model)
	if err != nil {
		return nil, nil, err
	}
	if !res.Entered() {
		return nil, res, ErrNoEntry
	}

	row := buildRow(p.ID(), call, candles, res)
	if err := CheckInvariants(row, costs); err != nil {
		var iv *domain.InvariantViolation
		if errors.As(err, &iv) {
			iv.Context["seed"] = seed
			iv.Context["policy_kind"] = string(p.Kind)
			iv.Context["policy_params"] = p.CanonicalParams()
		}
		return nil, res, err
	}
	return row, res, nil
}

// buildRow derives the result row. Peak and adverse excursion cover the candles
// from the entry candle through the exit candle.
func buildRow(policyID string, call domain.Call, candles []domain.Candle, res *strategy.Result) *domain.PolicyResultRow {
	entry := res.EntryPrice
	window := candles[res.EntryIndex : res.ExitIndex+1]

	peakHigh := 0.0
	minLow := math.Inf(1)
	var timeTo2x *int64
	for _, c := range window {
		if c.High > peakHigh {
			peakHigh = c.High
		}
		if c.Low < minLow {
			minLow = c.Low
		}
		if timeTo2x == nil && c.High >= 2*entry {
			d := c.TimestampMs - res.EntryTimestampMs
			timeTo2x = &d
		}
	}

	realized := res.ReturnBps()
	peak := (peakHigh/entry - 1) * 10_000

	return &domain.PolicyResultRow{
		PolicyID:               policyID,
		CallID:                 call.CallID,
		RealizedReturnBps:      realized,
		PeakReturnBps:          peak,
		StopOut:                res.ExitReason == domain.ExitReasonStopLoss,
		MaxAdverseExcursionBps: math.Min(0, (minLow/entry-1)*10_000),
		TimeExposedMs:          res.ExitTimestampMs - res.EntryTimestampMs,
		TailCapture:            tailCapture(realized, peak),
		TimeTo2xMs:             timeTo2x,
		EntryTimestampMs:       res.EntryTimestampMs,
		EntryPrice:             entry,
		ExitTimestampMs:        res.ExitTimestampMs,
		ExitPrice:              res.ExitPrice,
		ExitReason:             res.ExitReason,
	}
}

// tailCapture is realized / peak clamped to [0, 1], 0 when either is <= 0.
func tailCapture(realized, peak float64) float64 {
	if realized <= 0 || peak <= 0 {
		return 0
	}
	return math.Min(1, realized/peak)
}
