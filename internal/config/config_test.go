package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"alertlab/internal/domain"
	"alertlab/internal/optimizer"
	"alertlab/internal/policy"
)

const sampleRun = `
workers: 2
costs:
  entry_slippage_bps: 50
  exit_slippage_bps: 50
  taker_fee_bps: 10
execution:
  latency:
    p50_ms: 200
    p90_ms: 800
    p99_ms: 2000
policies:
  - kind: fixed_stop
    stop_pct: -0.3
    take_profit: 2
  - kind: trailing_stop
    initial_stop_pct: -0.25
    activation_pct: 0.5
    trail_pct: 0.2
  - kind: ladder
    stop_pct: -0.4
    legs:
      - {percent: 0.5, target: 2}
      - {percent: 0.5, target: 4}
optimizer:
  kind: fixed_stop
  space:
    dimensions:
      - {name: stop_pct, values: [-0.1, -0.2, -0.3]}
      - {name: take_profit, values: [2, 3]}
  constraints:
    max_stop_out_rate: 0.5
  early_stopping:
    min_evaluations: 4
    patience: 2
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleRun))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.Workers != 2 {
		t.Errorf("Workers = %d, want 2", c.Workers)
	}
	if c.RunID == "" {
		t.Error("expected derived run id")
	}
	if c.Data.Interval != domain.Interval1m || c.Data.WindowMs != 24*3_600_000 {
		t.Errorf("data defaults not applied: %+v", c.Data)
	}
	if c.Costs.TakerFeeBps != 10 || c.Execution.Latency.P90Ms != 800 {
		t.Errorf("costs/execution not decoded: %+v %+v", c.Costs, c.Execution.Latency)
	}

	policies, err := c.BuildPolicies()
	if err != nil {
		t.Fatalf("BuildPolicies: %v", err)
	}
	if len(policies) != 3 {
		t.Fatalf("expected 3 policies, got %d", len(policies))
	}
	if policies[0].Kind != policy.KindFixedStop || *policies[0].FixedStop.TakeProfit != 2 {
		t.Errorf("unexpected first policy: %+v", policies[0])
	}
	if policies[2].Kind != policy.KindLadder || len(policies[2].Ladder.Legs) != 2 {
		t.Errorf("unexpected ladder policy: %+v", policies[2])
	}

	opts, err := c.OptimizerOptions()
	if err != nil {
		t.Fatalf("OptimizerOptions: %v", err)
	}
	if opts.Mode != optimizer.ModeGrid || opts.MaxConfigs != 1000 {
		t.Errorf("optimizer defaults not applied: mode=%q max=%d", opts.Mode, opts.MaxConfigs)
	}
	if opts.Objective != optimizer.DefaultObjective() {
		t.Errorf("expected default objective, got %+v", opts.Objective)
	}
	if opts.RunID != c.RunID || opts.Workers != 2 {
		t.Errorf("run id/workers not propagated: %+v", opts)
	}
	if n, _ := opts.Space.Size(); n != 6 {
		t.Errorf("space size = %d, want 6", n)
	}
}

func TestParse_RunIDDeterministic(t *testing.T) {
	a, err := Parse([]byte(sampleRun))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte(sampleRun))
	if err != nil {
		t.Fatal(err)
	}
	if a.RunID != b.RunID {
		t.Errorf("run ids differ: %s vs %s", a.RunID, b.RunID)
	}

	c, err := Parse([]byte(sampleRun + "\nrun_id: fixed\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.RunID != "fixed" {
		t.Errorf("explicit run id ignored: %s", c.RunID)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "bogus: 1\n"},
		{"negative cost", "costs:\n  taker_fee_bps: -1\n"},
		{"bad interval", "data:\n  interval: 7m\n"},
		{"unknown policy kind", "policies:\n  - kind: moon\n"},
		{"fixed stop without stop", "policies:\n  - kind: fixed_stop\n"},
		{"optimizer unknown kind", "optimizer:\n  kind: moon\n"},
		{"optimizer bad objective", "optimizer:\n  kind: fixed_stop\n  space:\n    dimensions:\n      - {name: stop_pct, values: [-0.1]}\n  objective:\n    primary: max\n"},
		{"optimizer bad early stopping", "optimizer:\n  kind: fixed_stop\n  space:\n    dimensions:\n      - {name: stop_pct, values: [-0.1]}\n  early_stopping:\n    patience: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParse_ValidationErrorKind(t *testing.T) {
	_, err := Parse([]byte("costs:\n  taker_fee_bps: -1\n"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Optimizer != nil || len(c.Policies) != 0 {
		t.Errorf("expected empty run, got %+v", c)
	}
	if _, err := c.OptimizerOptions(); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation without optimizer section, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(sampleRun), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Policies) != 3 {
		t.Errorf("expected 3 policies, got %d", len(c.Policies))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
