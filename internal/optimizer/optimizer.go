package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"alertlab/internal/clock"
	"alertlab/internal/domain"
	"alertlab/internal/metrics"
	"alertlab/internal/observability"
	"alertlab/internal/policy"
)

// Search modes.
const (
	ModeGrid   = "grid"
	ModeRandom = "random"
)

// Skip reasons recorded as the single violation of a skipped config.
const (
	SkipCancelled   = "cancelled"
	SkipEarlyStop   = "early_stopped"
	SkipInvalidSpec = "invalid_config"
)

// Input is one call with its candle series.
type Input struct {
	Call    domain.Call
	Candles []domain.Candle
}

// Options configure a search.
type Options struct {
	RunID string

	Space                 ParameterSpace
	Template              Template
	Mode                  string // grid | random
	MaxConfigs            int
	AllowExceedMaxConfigs bool

	Objective     Objective
	Constraints   Constraints
	EarlyStopping *EarlyStopping

	Costs     domain.CostConfig
	Execution domain.ExecutionConfig

	Workers int // <= 0 means 1
}

// Result is a ranked search outcome.
type Result struct {
	RunID string
	Rows  []*domain.OptimizerResultRow // ranked, Rank starts at 1

	Evaluated          int
	Skipped            int
	ConstraintViolated int
	EarlyStopped       bool
}

// Best returns the top-ranked evaluated row, or nil.
func (r *Result) Best() *domain.OptimizerResultRow {
	for _, row := range r.Rows {
		if row.Status == domain.ConfigStatusEvaluated && !math.IsInf(row.Score, -1) {
			return row
		}
	}
	return nil
}

// Optimizer runs parameter searches.
type Optimizer struct {
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New creates an Optimizer. m may be nil.
func New(logger zerolog.Logger, m *observability.Metrics) *Optimizer {
	return &Optimizer{logger: logger.With().Str("component", "optimizer").Logger(), metrics: m}
}

// Run generates the configs, evaluates them against inputs and ranks them.
// Configs are evaluated in chunks in index order so early stopping and ranking never
// depend on the worker count. Cancellation is observed between whole-call evaluations;
// configs that did not finish are reported as skipped.
func (o *Optimizer) Run(ctx context.Context, inputs []Input, opts Options) (*Result, error) {
	configs, err := o.generate(opts)
	if err != nil {
		return nil, err
	}
	if err := opts.Objective.Validate(); err != nil {
		return nil, err
	}
	if opts.EarlyStopping != nil {
		if err := opts.EarlyStopping.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Mode == "" {
		opts.Mode = ModeGrid
	}
	o.metrics.RecordOptimizerRun(opts.Mode)

	workers := max(opts.Workers, 1)
	chunk := len(configs)
	if opts.EarlyStopping != nil {
		chunk = opts.EarlyStopping.Patience
	}

	rows := make([]*domain.OptimizerResultRow, len(configs))
	scores := make([]float64, 0, len(configs))
	stopAt := -1

	for start := 0; start < len(configs); start += chunk {
		end := min(start+chunk, len(configs))

		g := new(errgroup.Group)
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				rows[i] = o.evaluate(ctx, inputs, configs[i], opts)
				return nil
			})
		}
		_ = g.Wait()

		for i := start; i < end; i++ {
			scores = append(scores, rows[i].Score)
		}
		if opts.EarlyStopping != nil {
			if idx := opts.EarlyStopping.stopIndex(scores); idx >= 0 {
				stopAt = idx
				break
			}
		}
		if ctx.Err() != nil {
			for i := end; i < len(configs); i++ {
				rows[i] = skippedRow(opts.RunID, configs[i], SkipCancelled)
			}
			break
		}
	}

	if stopAt >= 0 {
		o.logger.Info().Int("stopped_at", stopAt).Int("configs", len(configs)).Msg("early stopping")
		for i := stopAt + 1; i < len(configs); i++ {
			rows[i] = skippedRow(opts.RunID, configs[i], SkipEarlyStop)
		}
	}

	Rank(rows)

	res := &Result{RunID: opts.RunID, Rows: rows, EarlyStopped: stopAt >= 0}
	for _, r := range rows {
		switch {
		case r.Status == domain.ConfigStatusSkipped:
			res.Skipped++
		case r.ConstraintViolated:
			res.Evaluated++
			res.ConstraintViolated++
		default:
			res.Evaluated++
		}
		o.metrics.RecordOptimizerConfig(r.Status)
	}

	o.logger.Info().
		Str("run_id", opts.RunID).
		Int("evaluated", res.Evaluated).
		Int("skipped", res.Skipped).
		Int("constraint_violated", res.ConstraintViolated).
		Msg("search complete")
	return res, nil
}

func (o *Optimizer) generate(opts Options) ([]Config, error) {
	if opts.Template.Build == nil {
		return nil, domain.NewValidationError("template", "required")
	}
	switch opts.Mode {
	case ModeGrid, "":
		return GridSearch(opts.Space, opts.Template, opts.MaxConfigs, opts.AllowExceedMaxConfigs)
	case ModeRandom:
		return RandomSearch(opts.Space, opts.Template, opts.MaxConfigs, clock.NewRunRNG(opts.RunID, "random_search"))
	default:
		return nil, domain.NewValidationError("mode", "must be grid or random, got %q", opts.Mode)
	}
}

// evaluate runs one config over all inputs in order.
func (o *Optimizer) evaluate(ctx context.Context, inputs []Input, cfg Config, opts Options) *domain.OptimizerResultRow {
	if cfg.Err != nil {
		return skippedRow(opts.RunID, cfg, SkipInvalidSpec+": "+cfg.Err.Error())
	}

	rng := clock.NewRunRNG(opts.RunID, cfg.Hash)
	results := make([]*domain.PolicyResultRow, 0, len(inputs))
	failed := 0

	for _, in := range inputs {
		if ctx.Err() != nil {
			return skippedRow(opts.RunID, cfg, SkipCancelled)
		}
		callSeed := rng.Derive(in.Call.CallID).Seed()
		row, err := policy.EvaluatePolicy(in.Call, in.Candles, cfg.Policy, opts.Costs, opts.Execution, callSeed)
		if err != nil {
			failed++
			if errors.Is(err, domain.ErrInvariant) {
				o.logger.Error().Err(err).
					Str("run_id", opts.RunID).
					Str("config_key", cfg.Key).
					Str("call_id", in.Call.CallID).
					Msg("invariant violation")
			}
			continue
		}
		row.RunID = opts.RunID
		results = append(results, row)
	}

	sum := metrics.Summarize(results)
	score, violations := Score(sum, opts.Objective, opts.Constraints)

	return &domain.OptimizerResultRow{
		RunID:               opts.RunID,
		ConfigKey:           cfg.Key,
		PolicyID:            cfg.Policy.ID(),
		Status:              domain.ConfigStatusEvaluated,
		Score:               score,
		ConstraintViolated:  len(violations) > 0,
		Violations:          violations,
		CallsEvaluated:      sum.Count,
		CallsFailed:         failed,
		MedianReturnBps:     sum.MedianReturnBps,
		MeanReturnBps:       sum.MeanReturnBps,
		StopOutRate:         sum.StopOutRate,
		P95DrawdownBps:      sum.P95DrawdownBps,
		MedianDrawdownBps:   sum.MedianDrawdownBps,
		MedianTimeExposedMs: sum.MedianTimeExposedMs,
		MeanTailCapture:     sum.MeanTailCapture,
		MedianTimeTo2xMs:    sum.MedianTimeTo2xMs,
	}
}

func skippedRow(runID string, cfg Config, reason string) *domain.OptimizerResultRow {
	row := &domain.OptimizerResultRow{
		RunID:      runID,
		ConfigKey:  cfg.Key,
		Status:     domain.ConfigStatusSkipped,
		Score:      math.Inf(-1),
		Violations: []string{reason},
	}
	if cfg.Err == nil {
		row.PolicyID = cfg.Policy.ID()
	}
	return row
}

// Rank orders rows in place and assigns ranks from 1:
// score desc, tail capture desc, median time-to-2x asc (missing last),
// median drawdown asc, config key asc. Skipped rows sort after evaluated ones.
func Rank(rows []*domain.OptimizerResultRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return less(rows[i], rows[j])
	})
	for i, r := range rows {
		r.Rank = i + 1
	}
}

func less(a, b *domain.OptimizerResultRow) bool {
	if (a.Status == domain.ConfigStatusSkipped) != (b.Status == domain.ConfigStatusSkipped) {
		return b.Status == domain.ConfigStatusSkipped
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.MeanTailCapture != b.MeanTailCapture {
		return a.MeanTailCapture > b.MeanTailCapture
	}
	switch {
	case a.MedianTimeTo2xMs != nil && b.MedianTimeTo2xMs == nil:
		return true
	case a.MedianTimeTo2xMs == nil && b.MedianTimeTo2xMs != nil:
		return false
	case a.MedianTimeTo2xMs != nil && *a.MedianTimeTo2xMs != *b.MedianTimeTo2xMs:
		return *a.MedianTimeTo2xMs < *b.MedianTimeTo2xMs
	}
	if a.MedianDrawdownBps != b.MedianDrawdownBps {
		return a.MedianDrawdownBps < b.MedianDrawdownBps
	}
	return a.ConfigKey < b.ConfigKey
}

// String renders a short description of the result.
func (r *Result) String() string {
	return fmt.Sprintf("run %s: %d evaluated, %d skipped, %d constraint violated",
		r.RunID, r.Evaluated, r.Skipped, r.ConstraintViolated)
}
