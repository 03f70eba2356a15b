// Package policy evaluates concrete exit policies against a call's candles
// and enforces the result invariants as post-conditions.
package policy

import (
	"errors"
	"strconv"
	"strings"

	"alertlab/internal/domain"
	"alertlab/internal/idhash"
	"alertlab/internal/strategy"
)

// Kind identifies a policy variant.
type Kind string

const (
	KindFixedStop    Kind = "fixed_stop"
	KindTimeStop     Kind = "time_stop"
	KindTrailingStop Kind = "trailing_stop"
	KindLadder       Kind = "ladder"
)

// ErrUnknownKind is returned for a Kind outside the closed set.
var ErrUnknownKind = errors.New("unknown policy kind")

// FixedStop exits at a fixed stop or an optional take-profit multiple.
type FixedStop struct {
	StopPct    float64  // negative fraction, e.g. -0.3
	TakeProfit *float64 // price multiple, nil = hold to end of data
}

// TimeStop exits after a fixed hold, with an optional protective stop.
type TimeStop struct {
	MaxHoldMs int64
	StopPct   *float64
}

// TrailingStop starts with a fixed stop and trails the peak once activated.
type TrailingStop struct {
	InitialStopPct float64
	ActivationPct  float64
	TrailPct       float64
}

// Ladder takes partial profits at ascending targets with an optional stop.
type Ladder struct {
	Legs    []domain.StrategyLeg
	StopPct *float64
}

// Policy is one exit policy. Exactly the variant named by Kind is set.
type Policy struct {
	Kind         Kind
	FixedStop    *FixedStop
	TimeStop     *TimeStop
	TrailingStop *TrailingStop
	Ladder       *Ladder
}

// NewFixedStop builds a fixed-stop policy.
func NewFixedStop(stopPct float64, takeProfit *float64) Policy {
	return Policy{Kind: KindFixedStop, FixedStop: &FixedStop{StopPct: stopPct, TakeProfit: takeProfit}}
}

// NewTimeStop builds a time-stop policy.
func NewTimeStop(maxHoldMs int64, stopPct *float64) Policy {
	return Policy{Kind: KindTimeStop, TimeStop: &TimeStop{MaxHoldMs: maxHoldMs, StopPct: stopPct}}
}

// NewTrailingStop builds a trailing-stop policy.
func NewTrailingStop(initialStopPct, activationPct, trailPct float64) Policy {
	return Policy{Kind: KindTrailingStop, TrailingStop: &TrailingStop{
		InitialStopPct: initialStopPct,
		ActivationPct:  activationPct,
		TrailPct:       trailPct,
	}}
}

// NewLadder builds a ladder policy.
func NewLadder(legs []domain.StrategyLeg, stopPct *float64) Policy {
	return Policy{Kind: KindLadder, Ladder: &Ladder{Legs: legs, StopPct: stopPct}}
}

// Validate checks that exactly the named variant is set and that it translates
// into a valid strategy.
func (p Policy) Validate() error {
	set := 0
	for _, ok := range []bool{p.FixedStop != nil, p.TimeStop != nil, p.TrailingStop != nil, p.Ladder != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return domain.NewValidationError("policy", "exactly one variant must be set, got %d", set)
	}

	var ok bool
	switch p.Kind {
	case KindFixedStop:
		ok = p.FixedStop != nil
	case KindTimeStop:
		ok = p.TimeStop != nil
	case KindTrailingStop:
		ok = p.TrailingStop != nil
	case KindLadder:
		ok = p.Ladder != nil && len(p.Ladder.Legs) > 0
	default:
		return domain.NewValidationError("policy.kind", "%v: %q", ErrUnknownKind, p.Kind)
	}
	if !ok {
		return domain.NewValidationError("policy."+string(p.Kind), "variant parameters missing")
	}
	if p.Kind == KindFixedStop && p.FixedStop.StopPct == 0 {
		return domain.NewValidationError("policy.fixed_stop.stop_pct", "required")
	}
	if p.Kind == KindTrailingStop && p.TrailingStop.InitialStopPct == 0 {
		return domain.NewValidationError("policy.trailing_stop.initial_stop_pct", "required")
	}

	return strategy.Validate(p.StrategyConfig())
}

// StrategyConfig translates the policy into a strategy: immediate entry of one unit,
// no re-entry.
func (p Policy) StrategyConfig() domain.StrategyConfig {
	cfg := domain.StrategyConfig{
		StrategyID:   p.ID(),
		Side:         domain.SideLong,
		PositionSize: 1,
	}

	switch p.Kind {
	case KindFixedStop:
		if v := p.FixedStop; v != nil {
			cfg.StopLoss.Initial = v.StopPct
			if v.TakeProfit != nil {
				cfg.Legs = []domain.StrategyLeg{{Percent: 1, Target: *v.TakeProfit}}
			}
		}
	case KindTimeStop:
		if v := p.TimeStop; v != nil {
			hold := v.MaxHoldMs
			cfg.Risk.MaxHoldMs = &hold
			if v.StopPct != nil {
				cfg.StopLoss.Initial = *v.StopPct
			}
		}
	case KindTrailingStop:
		if v := p.TrailingStop; v != nil {
			cfg.StopLoss.Initial = v.InitialStopPct
			cfg.StopLoss.Trailing = &domain.TrailingStopConfig{
				ActivationPct: v.ActivationPct,
				TrailPct:      v.TrailPct,
			}
		}
	case KindLadder:
		if v := p.Ladder; v != nil {
			cfg.Legs = append([]domain.StrategyLeg(nil), v.Legs...)
			if v.StopPct != nil {
				cfg.StopLoss.Initial = *v.StopPct
			}
		}
	}
	return cfg
}

// CanonicalParams renders the parameters in a fixed order, e.g. "stop_pct=-0.3,take_profit=2".
func (p Policy) CanonicalParams() string {
	var parts []string
	add := func(name string, v float64) {
		parts = append(parts, name+"="+formatFloat(v))
	}
	addOpt := func(name string, v *float64) {
		if v == nil {
			parts = append(parts, name+"=none")
			return
		}
		add(name, *v)
	}

	switch p.Kind {
	case KindFixedStop:
		if v := p.FixedStop; v != nil {
			add("stop_pct", v.StopPct)
			addOpt("take_profit", v.TakeProfit)
		}
	case KindTimeStop:
		if v := p.TimeStop; v != nil {
			parts = append(parts, "max_hold_ms="+strconv.FormatInt(v.MaxHoldMs, 10))
			addOpt("stop_pct", v.StopPct)
		}
	case KindTrailingStop:
		if v := p.TrailingStop; v != nil {
			add("initial_stop_pct", v.InitialStopPct)
			add("activation_pct", v.ActivationPct)
			add("trail_pct", v.TrailPct)
		}
	case KindLadder:
		if v := p.Ladder; v != nil {
			legs := make([]string, len(v.Legs))
			for i, l := range v.Legs {
				legs[i] = formatFloat(l.Percent) + "@" + formatFloat(l.Target)
			}
			parts = append(parts, "legs="+strings.Join(legs, "|"))
			addOpt("stop_pct", v.StopPct)
		}
	}
	return strings.Join(parts, ",")
}

// ID returns the deterministic policy id.
func (p Policy) ID() string {
	return idhash.ComputePolicyID(string(p.Kind), p.CanonicalParams())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
