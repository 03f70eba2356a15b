package strategy

import (
	"alertlab/internal/domain"
)

// ExitKind identifies an exit-condition variant.
type ExitKind string

const (
	ExitKindProfitTarget   ExitKind = "profit_target"
	ExitKindStopLoss       ExitKind = "stop_loss"
	ExitKindTrailingStop   ExitKind = "trailing_stop"
	ExitKindTime           ExitKind = "time"
	ExitKindSignal         ExitKind = "signal"
	ExitKindLadder         ExitKind = "ladder"
	ExitKindCircuitBreaker ExitKind = "circuit_breaker"
)

// ExitCondition is the closed set of exit rules a plan can hold.
// Only types in this package implement it.
type ExitCondition interface {
	Kind() ExitKind
	exitCondition()
}

// ExitProfitTarget sells Percent of the position once price reaches Target times entry.
type ExitProfitTarget struct {
	Percent float64
	Target  float64
}

// ExitStopLoss closes the position at entry * (1 + Initial) for longs.
type ExitStopLoss struct {
	Initial float64 // in (-1, 0)
}

// ExitTrailingStop arms after an ActivationPct favourable move and trails the peak by TrailPct.
// A TrailPct of 0 moves the stop to break-even.
type ExitTrailingStop struct {
	ActivationPct float64
	TrailPct      float64
}

// ExitTime closes the position MaxHoldMs after the first fill.
type ExitTime struct {
	MaxHoldMs int64
}

// ExitSignal is an exit driven by an external signal. Signals are resolved outside the
// simulation core, so plans containing one are rejected.
type ExitSignal struct {
	Name string
}

// ExitLadder sells partial size at ascending targets.
type ExitLadder struct {
	Legs []ExitProfitTarget
}

// ExitCircuitBreaker closes the position once its mark-to-market loss reaches MaxLossPct of entry notional.
type ExitCircuitBreaker struct {
	MaxLossPct float64
}

func (ExitProfitTarget) Kind() ExitKind   { return ExitKindProfitTarget }
func (ExitStopLoss) Kind() ExitKind       { return ExitKindStopLoss }
func (ExitTrailingStop) Kind() ExitKind   { return ExitKindTrailingStop }
func (ExitTime) Kind() ExitKind           { return ExitKindTime }
func (ExitSignal) Kind() ExitKind         { return ExitKindSignal }
func (ExitLadder) Kind() ExitKind         { return ExitKindLadder }
func (ExitCircuitBreaker) Kind() ExitKind { return ExitKindCircuitBreaker }

func (ExitProfitTarget) exitCondition()   {}
func (ExitStopLoss) exitCondition()       {}
func (ExitTrailingStop) exitCondition()   {}
func (ExitTime) exitCondition()           {}
func (ExitSignal) exitCondition()         {}
func (ExitLadder) exitCondition()         {}
func (ExitCircuitBreaker) exitCondition() {}

// ValidateConditions rejects unsupported variants and duplicate kinds.
func ValidateConditions(conds []ExitCondition) error {
	seen := make(map[ExitKind]bool, len(conds))
	for _, c := range conds {
		switch c.(type) {
		case ExitProfitTarget, ExitStopLoss, ExitTrailingStop, ExitTime, ExitLadder, ExitCircuitBreaker:
		case ExitSignal:
			return domain.NewValidationError("exit.signal", "signal exits are not supported by the simulation core")
		default:
			return domain.NewValidationError("exit", "unknown exit condition %T", c)
		}
		if seen[c.Kind()] {
			return domain.NewValidationError("exit."+string(c.Kind()), "duplicate exit condition")
		}
		seen[c.Kind()] = true
	}
	if seen[ExitKindProfitTarget] && seen[ExitKindLadder] {
		return domain.NewValidationError("exit", "profit target and ladder are mutually exclusive")
	}
	return nil
}
