// Package optimizer searches policy parameter spaces and ranks configurations
// under risk constraints.
package optimizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"alertlab/internal/domain"
	"alertlab/internal/policy"
)

// Dimension is one named parameter with its candidate values.
type Dimension struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

// ParameterSpace is the cartesian product of its dimensions.
// The last dimension varies fastest.
type ParameterSpace struct {
	Dimensions []Dimension `yaml:"dimensions"`
}

// Validate checks that dimensions are named, unique and non-empty.
func (s ParameterSpace) Validate() error {
	if len(s.Dimensions) == 0 {
		return domain.NewValidationError("space.dimensions", "at least one dimension is required")
	}
	seen := make(map[string]bool, len(s.Dimensions))
	for i, d := range s.Dimensions {
		field := fmt.Sprintf("space.dimensions[%d]", i)
		if d.Name == "" {
			return domain.NewValidationError(field+".name", "required")
		}
		if seen[d.Name] {
			return domain.NewValidationError(field+".name", "duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true
		if len(d.Values) == 0 {
			return domain.NewValidationError(field+".values", "dimension %q has no values", d.Name)
		}
		for _, v := range d.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return domain.NewValidationError(field+".values", "dimension %q has a non-finite value", d.Name)
			}
		}
	}
	return nil
}

// Size returns the number of grid points. ok is false when the product overflows int.
func (s ParameterSpace) Size() (n int, ok bool) {
	n = 1
	for _, d := range s.Dimensions {
		if len(d.Values) == 0 {
			return 0, true
		}
		if n > math.MaxInt/len(d.Values) {
			return 0, false
		}
		n *= len(d.Values)
	}
	return n, true
}

// Point returns the parameters at grid index i in mixed-radix order.
func (s ParameterSpace) Point(i int) Params {
	params := make(Params, len(s.Dimensions))
	for d := len(s.Dimensions) - 1; d >= 0; d-- {
		dim := s.Dimensions[d]
		params[d] = Param{Name: dim.Name, Value: dim.Values[i%len(dim.Values)]}
		i /= len(dim.Values)
	}
	return params
}

// Param is one named parameter value.
type Param struct {
	Name  string
	Value float64
}

// Params is an ordered parameter assignment.
type Params []Param

// Get returns the value of a named parameter.
func (p Params) Get(name string) (float64, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return 0, false
}

// Key returns the canonical "name=value,..." form.
func (p Params) Key() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = kv.Name + "=" + strconv.FormatFloat(kv.Value, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Template maps a parameter assignment to a policy.
type Template struct {
	Kind  policy.Kind
	Build func(Params) (policy.Policy, error)
}

// Parameter names understood by the built-in templates.
const (
	ParamStopPct        = "stop_pct"
	ParamTakeProfit     = "take_profit"
	ParamMaxHoldMs      = "max_hold_ms"
	ParamInitialStopPct = "initial_stop_pct"
	ParamActivationPct  = "activation_pct"
	ParamTrailPct       = "trail_pct"
	ParamLadderPrefix   = "target_" // target_1, target_2, ... split evenly
)

// TemplateFor returns the built-in template of a policy kind.
// A missing optional parameter (take_profit, stop_pct on time/ladder) leaves it unset.
func TemplateFor(kind policy.Kind) (Template, error) {
	switch kind {
	case policy.KindFixedStop:
		return Template{Kind: kind, Build: func(p Params) (policy.Policy, error) {
			stop, err := required(p, ParamStopPct)
			if err != nil {
				return policy.Policy{}, err
			}
			return policy.NewFixedStop(stop, optional(p, ParamTakeProfit)), nil
		}}, nil
	case policy.KindTimeStop:
		return Template{Kind: kind, Build: func(p Params) (policy.Policy, error) {
			hold, err := required(p, ParamMaxHoldMs)
			if err != nil {
				return policy.Policy{}, err
			}
			return policy.NewTimeStop(int64(hold), optional(p, ParamStopPct)), nil
		}}, nil
	case policy.KindTrailingStop:
		return Template{Kind: kind, Build: func(p Params) (policy.Policy, error) {
			var vals [3]float64
			for i, name := range []string{ParamInitialStopPct, ParamActivationPct, ParamTrailPct} {
				v, err := required(p, name)
				if err != nil {
					return policy.Policy{}, err
				}
				vals[i] = v
			}
			return policy.NewTrailingStop(vals[0], vals[1], vals[2]), nil
		}}, nil
	case policy.KindLadder:
		return Template{Kind: kind, Build: func(p Params) (policy.Policy, error) {
			var targets []float64
			for _, kv := range p {
				if strings.HasPrefix(kv.Name, ParamLadderPrefix) {
					targets = append(targets, kv.Value)
				}
			}
			if len(targets) == 0 {
				return policy.Policy{}, domain.NewValidationError("template.ladder", "no %s* parameters", ParamLadderPrefix)
			}
			legs := make([]domain.StrategyLeg, len(targets))
			for i, t := range targets {
				legs[i] = domain.StrategyLeg{Percent: 1 / float64(len(targets)), Target: t}
			}
			return policy.NewLadder(legs, optional(p, ParamStopPct)), nil
		}}, nil
	default:
		return Template{}, domain.NewValidationError("template.kind", "%v: %q", policy.ErrUnknownKind, kind)
	}
}

func required(p Params, name string) (float64, error) {
	v, ok := p.Get(name)
	if !ok {
		return 0, domain.NewValidationError("template."+name, "parameter is required")
	}
	return v, nil
}

func optional(p Params, name string) *float64 {
	v, ok := p.Get(name)
	if !ok {
		return nil
	}
	return &v
}
