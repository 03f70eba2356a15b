// Package config loads YAML run files into validated domain types.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"alertlab/internal/domain"
	"alertlab/internal/execution"
	"alertlab/internal/idhash"
	"alertlab/internal/optimizer"
	"alertlab/internal/policy"
	"alertlab/internal/strategy"
	"alertlab/internal/sufficiency"
)

// PolicySpec is the YAML form of one exit policy. Only the fields of Kind are read.
type PolicySpec struct {
	Kind           string               `yaml:"kind"` // fixed_stop | time_stop | trailing_stop | ladder
	StopPct        *float64             `yaml:"stop_pct"`
	TakeProfit     *float64             `yaml:"take_profit"`
	MaxHoldMs      int64                `yaml:"max_hold_ms"`
	InitialStopPct float64              `yaml:"initial_stop_pct"`
	ActivationPct  float64              `yaml:"activation_pct"`
	TrailPct       float64              `yaml:"trail_pct"`
	Legs           []domain.StrategyLeg `yaml:"legs"`
}

// Policy builds and validates the policy.
func (s PolicySpec) Policy() (policy.Policy, error) {
	var p policy.Policy
	switch policy.Kind(s.Kind) {
	case policy.KindFixedStop:
		if s.StopPct == nil {
			return p, domain.NewValidationError("policies.stop_pct", "required for %s", s.Kind)
		}
		p = policy.NewFixedStop(*s.StopPct, s.TakeProfit)
	case policy.KindTimeStop:
		p = policy.NewTimeStop(s.MaxHoldMs, s.StopPct)
	case policy.KindTrailingStop:
		p = policy.NewTrailingStop(s.InitialStopPct, s.ActivationPct, s.TrailPct)
	case policy.KindLadder:
		p = policy.NewLadder(s.Legs, s.StopPct)
	default:
		return p, domain.NewValidationError("policies.kind", "%v: %q", policy.ErrUnknownKind, s.Kind)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Optimizer configures a parameter search over one policy kind.
type Optimizer struct {
	Kind                  string                   `yaml:"kind"`
	Mode                  string                   `yaml:"mode"` // grid | random
	MaxConfigs            int                      `yaml:"max_configs"`
	AllowExceedMaxConfigs bool                     `yaml:"allow_exceed_max_configs"`
	Space                 optimizer.ParameterSpace `yaml:"space"`
	Objective             optimizer.Objective      `yaml:"objective"`
	Constraints           optimizer.Constraints    `yaml:"constraints"`
	EarlyStopping         *optimizer.EarlyStopping `yaml:"early_stopping"`
}

// Data selects the candles loaded per call.
type Data struct {
	Interval string `yaml:"interval"`  // candle interval, default 1m
	WindowMs int64  `yaml:"window_ms"` // candles loaded after each call, default 24h
}

// Storage holds store connection settings. Empty DSNs fall back to the environment.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Server configures cmd/server.
type Server struct {
	Addr string `yaml:"addr"`
}

// Root is a complete run file.
type Root struct {
	RunID   string `yaml:"run_id"` // derived from the file content when empty
	Workers int    `yaml:"workers"`

	Costs      domain.CostConfig       `yaml:"costs"`
	Execution  domain.ExecutionConfig  `yaml:"execution"`
	Strategies []domain.StrategyConfig `yaml:"strategies"`
	Policies   []PolicySpec            `yaml:"policies"`
	Optimizer  *Optimizer              `yaml:"optimizer"`

	Data        Data                   `yaml:"data"`
	Sufficiency sufficiency.Thresholds `yaml:"sufficiency"`
	Storage     Storage                `yaml:"storage"`
	Logging     Logging                `yaml:"logging"`
	Server      Server                 `yaml:"server"`
}

// Load reads and parses a run file.
func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a run file, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(b []byte) (*Root, error) {
	var c Root
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if c.RunID == "" {
		c.RunID = idhash.ComputeRunID(string(b))
	}
	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Root) {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Data.Interval == "" {
		c.Data.Interval = domain.Interval1m
	}
	if c.Data.WindowMs == 0 {
		c.Data.WindowMs = 24 * 3_600_000
	}
	if c.Sufficiency == (sufficiency.Thresholds{}) {
		c.Sufficiency = sufficiency.DefaultThresholds()
	}
	if c.Storage.PostgresDSN == "" {
		c.Storage.PostgresDSN = os.Getenv("POSTGRES_DSN")
	}
	if c.Storage.ClickhouseDSN == "" {
		c.Storage.ClickhouseDSN = os.Getenv("CLICKHOUSE_DSN")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	if o := c.Optimizer; o != nil {
		if o.Mode == "" {
			o.Mode = optimizer.ModeGrid
		}
		if o.MaxConfigs == 0 {
			o.MaxConfigs = 1000
		}
		if o.Objective == (optimizer.Objective{}) {
			o.Objective = optimizer.DefaultObjective()
		}
	}
}

// Validate checks every section.
func (c *Root) Validate() error {
	if c.Workers < 0 {
		return domain.NewValidationError("workers", "must be >= 0, got %d", c.Workers)
	}
	if domain.IntervalMs(c.Data.Interval) == 0 {
		return domain.NewValidationError("data.interval", "unsupported interval %q", c.Data.Interval)
	}
	if c.Data.WindowMs < 0 {
		return domain.NewValidationError("data.window_ms", "must be >= 0, got %d", c.Data.WindowMs)
	}
	if err := execution.Validate(c.Costs, c.Execution); err != nil {
		return err
	}
	for i, s := range c.Strategies {
		if err := strategy.Validate(s); err != nil {
			return fmt.Errorf("strategies[%d]: %w", i, err)
		}
	}
	if _, err := c.BuildPolicies(); err != nil {
		return err
	}

	if o := c.Optimizer; o != nil {
		if _, err := optimizer.TemplateFor(policy.Kind(o.Kind)); err != nil {
			return fmt.Errorf("optimizer: %w", err)
		}
		if err := o.Space.Validate(); err != nil {
			return fmt.Errorf("optimizer: %w", err)
		}
		if err := o.Objective.Validate(); err != nil {
			return fmt.Errorf("optimizer: %w", err)
		}
		if o.EarlyStopping != nil {
			if err := o.EarlyStopping.Validate(); err != nil {
				return fmt.Errorf("optimizer: %w", err)
			}
		}
	}
	return nil
}

// BuildPolicies converts the policy specs, in file order.
func (c *Root) BuildPolicies() ([]policy.Policy, error) {
	out := make([]policy.Policy, 0, len(c.Policies))
	for i, s := range c.Policies {
		p, err := s.Policy()
		if err != nil {
			return nil, fmt.Errorf("policies[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// OptimizerOptions converts the optimizer section into search options.
func (c *Root) OptimizerOptions() (optimizer.Options, error) {
	o := c.Optimizer
	if o == nil {
		return optimizer.Options{}, domain.NewValidationError("optimizer", "section missing")
	}
	tmpl, err := optimizer.TemplateFor(policy.Kind(o.Kind))
	if err != nil {
		return optimizer.Options{}, err
	}
	return optimizer.Options{
		RunID:                 c.RunID,
		Space:                 o.Space,
		Template:              tmpl,
		Mode:                  o.Mode,
		MaxConfigs:            o.MaxConfigs,
		AllowExceedMaxConfigs: o.AllowExceedMaxConfigs,
		Objective:             o.Objective,
		Constraints:           o.Constraints,
		EarlyStopping:         o.EarlyStopping,
		Costs:                 c.Costs,
		Execution:             c.Execution,
		Workers:               c.Workers,
	}, nil
}
