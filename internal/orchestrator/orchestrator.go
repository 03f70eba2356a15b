// Package orchestrator runs batches: every stored call against every policy.
// It coordinates: candle loading → truth → policy evaluation → persistence → summaries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"alertlab/internal/domain"
	"alertlab/internal/execution"
	"alertlab/internal/metrics"
	"alertlab/internal/observability"
	"alertlab/internal/optimizer"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/policy"
	"alertlab/internal/storage"
	"alertlab/internal/strategy"
	"alertlab/internal/telemetry"
)

// Skip reasons.
const (
	ReasonCancelled = "cancelled"
	ReasonNoEntry   = "no_entry"
	ReasonNoCandles = "no_candles"
	ReasonData      = "data_error"
)

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	CallStore   storage.CallStore
	CandleStore storage.CandleStore
	TruthStore  storage.PathMetricsStore
	ResultStore storage.PolicyResultStore

	RunID    string
	Policies []policy.Policy

	Costs     domain.CostConfig
	Execution domain.ExecutionConfig

	Interval string // candle interval
	WindowMs int64  // candles loaded after each call, <= 0 = all

	// Constraints, when set, are checked against every policy's summary.
	Constraints *optimizer.Constraints

	Workers int           // <= 0 means 1
	Timeout time.Duration // 0 = none; calls not started in time are skipped

	// Optional sinks
	Recorder strategy.Recorder              // receives every evaluation's events
	Progress func(telemetry.Progress) error // called after each call

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Orchestrator coordinates batch execution.
type Orchestrator struct {
	opts    Options
	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	o := &Orchestrator{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "orchestrator").Str("run_id", opts.RunID).Logger(),
	}
	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store_writes",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections by the store are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrTruthConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			opts.Metrics.SetBreakerState(name, int(to))
		},
	})
	return o
}

// Item identifies one skipped or failed (call, policy) pair.
// PolicyID is empty when the whole call was affected.
type Item struct {
	CallID   string
	PolicyID string
	Reason   string
}

// PolicySummary is the distribution of one policy's results.
type PolicySummary struct {
	PolicyID   string
	Summary    metrics.Summary
	Violations []string // constraint breaches, empty when none or no constraints
}

// Summary reports a finished batch. Counts are per (call, policy) pair.
type Summary struct {
	RunID    string
	Calls    int
	Policies int

	Evaluated          int
	Skipped            int
	Failed             int
	ConstraintViolated int // policies breaching a constraint

	TruthComputed  int
	TruthFailed    int // truth rows not stored, conflicts included; one Failures entry each
	TruthConflicts int
	AlreadyStored  int // policy results present from an earlier run with this id

	SkipReasons []Item
	Failures    []Item

	PolicySummaries []PolicySummary // sorted by policy id
	Rows            []*domain.PolicyResultRow
}

// callOutcome is the private result slot of one call; slots are combined after the fan-out.
type callOutcome struct {
	truth    *domain.PathMetricsRow
	rows     []*domain.PolicyResultRow
	skipped  []Item
	failures []Item
}

// Run executes the batch. It returns an error only for invalid options or when the
// calls cannot be loaded; per-call problems are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	calls, err := o.opts.CallStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}
	o.logger.Info().Int("calls", len(calls)).Int("policies", len(o.opts.Policies)).Msg("batch started")

	runCtx := ctx
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	outcomes := make([]callOutcome, len(calls))
	var done, evaluated, skipped, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Workers)
	for i, call := range calls {
		g.Go(func() error {
			if runCtx.Err() != nil {
				outcomes[i] = callOutcome{skipped: []Item{{CallID: call.CallID, Reason: ReasonCancelled}}}
			} else {
				outcomes[i] = o.processCall(runCtx, call)
			}

			out := &outcomes[i]
			evaluated.Add(int64(len(out.rows)))
			skipped.Add(int64(o.pairs(out.skipped)))
			failed.Add(int64(o.pairs(out.failures)))
			done.Add(1)
			if o.opts.Progress != nil {
				_ = o.opts.Progress(telemetry.Progress{
					Total:     len(calls) * len(o.opts.Policies),
					Evaluated: int(evaluated.Load()),
					Skipped:   int(skipped.Load()),
					Failed:    int(failed.Load()),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		RunID:    o.opts.RunID,
		Calls:    len(calls),
		Policies: len(o.opts.Policies),
	}

	// Combine in call order, then persist.
	for i := range outcomes {
		out := &outcomes[i]
		summary.SkipReasons = append(summary.SkipReasons, out.skipped...)
		summary.Failures = append(summary.Failures, out.failures...)
		summary.Skipped += o.pairs(out.skipped)
		summary.Failed += o.pairs(out.failures)

		if out.truth != nil {
			summary.TruthComputed++
			if err := o.putTruth(ctx, out.truth); err != nil {
				summary.TruthFailed++
				if errors.Is(err, storage.ErrTruthConflict) {
					summary.TruthConflicts++
				}
				summary.Failures = append(summary.Failures, Item{CallID: out.truth.CallID, Reason: "store truth: " + err.Error()})
			}
		}

		if len(out.rows) == 0 {
			continue
		}
		switch err := o.insertResults(ctx, out.rows); {
		case err == nil:
		case errors.Is(err, storage.ErrDuplicateKey):
			summary.AlreadyStored += len(out.rows)
		default:
			return nil, fmt.Errorf("store policy results of %s: %w", out.rows[0].CallID, err)
		}
		summary.Evaluated += len(out.rows)
		summary.Rows = append(summary.Rows, out.rows...)
	}

	summary.PolicySummaries, summary.ConstraintViolated = o.summarize(summary.Rows)

	o.opts.Metrics.RecordRunSuccess(time.Now().Unix())
	o.logger.Info().
		Int("evaluated", summary.Evaluated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("constraint_violated", summary.ConstraintViolated).
		Int("truth_failed", summary.TruthFailed).
		Int("truth_conflicts", summary.TruthConflicts).
		Msg("batch complete")

	return summary, nil
}

func (o *Orchestrator) validate() error {
	if o.opts.CallStore == nil || o.opts.CandleStore == nil || o.opts.TruthStore == nil || o.opts.ResultStore == nil {
		return domain.NewValidationError("stores", "call, candle, truth and result stores are required")
	}
	if o.opts.RunID == "" {
		return domain.NewValidationError("run_id", "required")
	}
	if len(o.opts.Policies) == 0 {
		return domain.NewValidationError("policies", "at least one policy is required")
	}
	if domain.IntervalMs(o.opts.Interval) == 0 {
		return domain.NewValidationError("interval", "unsupported interval %q", o.opts.Interval)
	}
	seen := make(map[string]bool, len(o.opts.Policies))
	for i, p := range o.opts.Policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("policies[%d]: %w", i, err)
		}
		if seen[p.ID()] {
			return domain.NewValidationError(fmt.Sprintf("policies[%d]", i), "duplicate policy %s", p.ID())
		}
		seen[p.ID()] = true
	}
	return execution.Validate(o.opts.Costs, o.opts.Execution)
}

// pairs counts the (call, policy) pairs covered by items.
func (o *Orchestrator) pairs(items []Item) int {
	n := 0
	for _, it := range items {
		if it.PolicyID == "" {
			n += len(o.opts.Policies)
		} else {
			n++
		}
	}
	return n
}

// processCall evaluates one call against every policy. Cancellation is checked
// between policies, never inside an evaluation.
func (o *Orchestrator) processCall(ctx context.Context, call *domain.Call) callOutcome {
	var out callOutcome
	log := o.logger.With().Str("call_id", call.CallID).Logger()

	candles, err := storage.CallCandles(ctx, o.opts.CandleStore, call, o.opts.Interval, o.opts.WindowMs)
	if err != nil {
		out.failures = append(out.failures, Item{CallID: call.CallID, Reason: "load candles: " + err.Error()})
		return out
	}
	if len(candles) == 0 {
		o.opts.Metrics.RecordSkip(ReasonNoCandles)
		out.skipped = append(out.skipped, Item{CallID: call.CallID, Reason: ReasonNoCandles})
		return out
	}

	truth, err := pathmetrics.Compute(*call, candles)
	if err != nil {
		o.opts.Metrics.RecordSkip(ReasonData)
		log.Warn().Err(err).Msg("call skipped")
		out.skipped = append(out.skipped, Item{CallID: call.CallID, Reason: ReasonData + ": " + err.Error()})
		return out
	}
	out.truth = truth
	o.opts.Metrics.RecordPathMetrics()

	for i, p := range o.opts.Policies {
		if ctx.Err() != nil {
			for _, rest := range o.opts.Policies[i:] {
				out.skipped = append(out.skipped, Item{CallID: call.CallID, PolicyID: rest.ID(), Reason: ReasonCancelled})
			}
			break
		}

		start := time.Now()
		row, res, err := policy.EvaluateTrace(*call, candles, p, o.opts.Costs, o.opts.Execution, policy.Seed(o.opts.RunID, p, call.CallID))
		status := "ok"

		switch {
		case err == nil:
			row.RunID = o.opts.RunID
			out.rows = append(out.rows, row)
		case errors.Is(err, policy.ErrNoEntry):
			status = "skipped"
			o.opts.Metrics.RecordSkip(ReasonNoEntry)
			out.skipped = append(out.skipped, Item{CallID: call.CallID, PolicyID: p.ID(), Reason: ReasonNoEntry})
		case errors.Is(err, domain.ErrData):
			status = "skipped"
			o.opts.Metrics.RecordSkip(ReasonData)
			out.skipped = append(out.skipped, Item{CallID: call.CallID, PolicyID: p.ID(), Reason: ReasonData + ": " + err.Error()})
		default:
			status = "failed"
			var iv *domain.InvariantViolation
			if errors.As(err, &iv) {
				o.opts.Metrics.RecordInvariantViolation(iv.Invariant)
				log.Error().Err(err).Str("policy_id", p.ID()).Fields(iv.Context).Msg("invariant violation")
			} else {
				log.Error().Err(err).Str("policy_id", p.ID()).Msg("evaluation failed")
			}
			out.failures = append(out.failures, Item{CallID: call.CallID, PolicyID: p.ID(), Reason: err.Error()})
		}
		o.opts.Metrics.RecordEvaluation(string(p.Kind), status, time.Since(start).Seconds())

		if res != nil && o.opts.Recorder != nil {
			if err := o.opts.Recorder.Record(ctx, call.CallID, res.Events()); err != nil {
				log.Warn().Err(err).Msg("record events")
			}
		}
	}
	return out
}

func (o *Orchestrator) putTruth(ctx context.Context, row *domain.PathMetricsRow) error {
	_, err := o.breaker.Execute(func() (interface{}, error) {
		return nil, o.opts.TruthStore.Put(ctx, row)
	})
	o.opts.Metrics.RecordStoreWrite("path_metrics", err)
	return err
}

func (o *Orchestrator) insertResults(ctx context.Context, rows []*domain.PolicyResultRow) error {
	_, err := o.breaker.Execute(func() (interface{}, error) {
		return nil, o.opts.ResultStore.InsertBulk(ctx, rows)
	})
	o.opts.Metrics.RecordStoreWrite("policy_results", err)
	return err
}

// summarize builds per-policy summaries in policy id order.
func (o *Orchestrator) summarize(rows []*domain.PolicyResultRow) ([]PolicySummary, int) {
	byPolicy := make(map[string][]*domain.PolicyResultRow)
	for _, r := range rows {
		byPolicy[r.PolicyID] = append(byPolicy[r.PolicyID], r)
	}

	ids := make([]string, 0, len(o.opts.Policies))
	for _, p := range o.opts.Policies {
		ids = append(ids, p.ID())
	}
	sort.Strings(ids)

	out := make([]PolicySummary, 0, len(ids))
	violated := 0
	for _, id := range ids {
		ps := PolicySummary{PolicyID: id, Summary: metrics.Summarize(byPolicy[id])}
		if o.opts.Constraints != nil {
			_, ps.Violations = optimizer.Score(ps.Summary, optimizer.DefaultObjective(), *o.opts.Constraints)
			if len(ps.Violations) > 0 {
				violated++
			}
		}
		out = append(out, ps)
	}
	return out, violated
}
