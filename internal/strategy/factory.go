package strategy

import (
	"math"

	"alertlab/internal/domain"
)

// sumTolerance absorbs float error when leg percentages add up to exactly 1.
const sumTolerance = 1e-9

// Plan is a validated strategy: entry rules plus a closed set of exit conditions.
type Plan struct {
	StrategyID   string
	Side         domain.Side
	PositionSize float64
	Entry        domain.EntryConfig
	ReEntry      domain.ReEntryConfig
	Conditions   []ExitCondition

	legs       []ExitProfitTarget
	stop       *ExitStopLoss
	trailing   *ExitTrailingStop
	timeStop   *ExitTime
	breaker    *ExitCircuitBreaker
	fullLadder bool // leg percentages sum to 1
}

// Validate checks a strategy config without building a plan.
func Validate(cfg domain.StrategyConfig) error {
	_, err := FromConfig(cfg)
	return err
}

// FromConfig validates a StrategyConfig and compiles it into a Plan.
// Errors are *domain.ValidationError.
func FromConfig(cfg domain.StrategyConfig) (*Plan, error) {
	if cfg.StrategyID == "" {
		return nil, domain.NewValidationError("strategy_id", "required")
	}

	side := cfg.Side
	if side == "" {
		side = domain.SideLong
	}
	if !side.IsValid() {
		return nil, domain.NewValidationError("side", "unknown side %q", cfg.Side)
	}

	size := cfg.PositionSize
	if size == 0 {
		size = 1
	}
	if !positiveFinite(size) {
		return nil, domain.NewValidationError("position_size", "must be positive and finite, got %v", cfg.PositionSize)
	}

	plan := &Plan{
		StrategyID:   cfg.StrategyID,
		Side:         side,
		PositionSize: size,
		Entry:        cfg.Entry,
		ReEntry:      cfg.ReEntry,
	}

	if err := plan.compileLegs(cfg.Legs); err != nil {
		return nil, err
	}
	if err := plan.compileStops(cfg.StopLoss); err != nil {
		return nil, err
	}
	if err := validateEntry(cfg.Entry); err != nil {
		return nil, err
	}
	if err := validateReEntry(cfg.ReEntry); err != nil {
		return nil, err
	}
	if err := plan.compileRisk(cfg.Risk); err != nil {
		return nil, err
	}

	if err := ValidateConditions(plan.Conditions); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Plan) compileLegs(legs []domain.StrategyLeg) error {
	if len(legs) == 0 {
		return nil
	}

	sum := 0.0
	prevTarget := 0.0
	out := make([]ExitProfitTarget, 0, len(legs))
	for i, leg := range legs {
		if !(leg.Percent > 0 && leg.Percent <= 1) {
			return domain.NewValidationError("legs.percent", "leg %d percent must be in (0, 1], got %v", i, leg.Percent)
		}
		if !positiveFinite(leg.Target) || leg.Target <= 1 {
			return domain.NewValidationError("legs.target", "leg %d target must be a multiple above 1, got %v", i, leg.Target)
		}
		if leg.Target <= prevTarget {
			return domain.NewValidationError("legs.target", "leg targets must be strictly ascending (leg %d)", i)
		}
		prevTarget = leg.Target
		sum += leg.Percent
		out = append(out, ExitProfitTarget{Percent: leg.Percent, Target: leg.Target})
	}
	if sum > 1+sumTolerance {
		return domain.NewValidationError("legs.percent", "leg percentages sum to %v, must be <= 1", sum)
	}

	p.legs = out
	p.fullLadder = sum >= 1-sumTolerance
	if len(out) == 1 {
		p.Conditions = append(p.Conditions, out[0])
	} else {
		p.Conditions = append(p.Conditions, ExitLadder{Legs: out})
	}
	return nil
}

func (p *Plan) compileStops(cfg domain.StopLossConfig) error {
	if cfg.Initial != 0 {
		if !(cfg.Initial > -1 && cfg.Initial < 0) {
			return domain.NewValidationError("stop_loss.initial", "must be in (-1, 0), got %v", cfg.Initial)
		}
		p.stop = &ExitStopLoss{Initial: cfg.Initial}
		p.Conditions = append(p.Conditions, *p.stop)
	}

	if t := cfg.Trailing; t != nil {
		if !positiveFinite(t.ActivationPct) {
			return domain.NewValidationError("stop_loss.trailing.activation_pct", "must be positive, got %v", t.ActivationPct)
		}
		if p.Side == domain.SideShort && t.ActivationPct >= 1 {
			return domain.NewValidationError("stop_loss.trailing.activation_pct", "must be below 1 for short positions")
		}
		if !(t.TrailPct >= 0 && t.TrailPct < 1) {
			return domain.NewValidationError("stop_loss.trailing.trail_pct", "must be in [0, 1), got %v", t.TrailPct)
		}
		p.trailing = &ExitTrailingStop{ActivationPct: t.ActivationPct, TrailPct: t.TrailPct}
		p.Conditions = append(p.Conditions, *p.trailing)
	}
	return nil
}

func (p *Plan) compileRisk(cfg domain.RiskConfig) error {
	if cfg.MaxLossPct != nil {
		v := *cfg.MaxLossPct
		if !(v > 0 && v <= 1) {
			return domain.NewValidationError("risk.max_loss_pct", "must be in (0, 1], got %v", v)
		}
		p.breaker = &ExitCircuitBreaker{MaxLossPct: v}
		p.Conditions = append(p.Conditions, *p.breaker)
	}
	if cfg.MaxHoldMs != nil {
		if *cfg.MaxHoldMs <= 0 {
			return domain.NewValidationError("risk.max_hold_ms", "must be positive, got %d", *cfg.MaxHoldMs)
		}
		p.timeStop = &ExitTime{MaxHoldMs: *cfg.MaxHoldMs}
		p.Conditions = append(p.Conditions, *p.timeStop)
	}
	return nil
}

func validateEntry(cfg domain.EntryConfig) error {
	if d := cfg.InitialEntryDropPct; d != nil && !(*d > 0 && *d < 1) {
		return domain.NewValidationError("entry.initial_entry_drop_pct", "must be in (0, 1), got %v", *d)
	}
	if r := cfg.TrailingEntryReboundPct; r != nil && !(positiveFinite(*r) && *r < 1) {
		return domain.NewValidationError("entry.trailing_entry_rebound_pct", "must be in (0, 1), got %v", *r)
	}
	if cfg.MaxWaitMs < 0 {
		return domain.NewValidationError("entry.max_wait_ms", "must be non-negative, got %d", cfg.MaxWaitMs)
	}
	return nil
}

func validateReEntry(cfg domain.ReEntryConfig) error {
	if cfg.TrailingReEntryPct == nil {
		if cfg.MaxReEntries != 0 {
			return domain.NewValidationError("re_entry.max_re_entries", "requires trailing_re_entry_pct")
		}
		return nil
	}
	if v := *cfg.TrailingReEntryPct; !(v > 0 && v < 1) {
		return domain.NewValidationError("re_entry.trailing_re_entry_pct", "must be in (0, 1), got %v", v)
	}
	if cfg.MaxReEntries < 1 {
		return domain.NewValidationError("re_entry.max_re_entries", "must be >= 1 when re-entry is enabled")
	}
	if !(cfg.SizePercent > 0 && cfg.SizePercent <= 1) {
		return domain.NewValidationError("re_entry.size_percent", "must be in (0, 1], got %v", cfg.SizePercent)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
