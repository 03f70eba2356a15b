package verification

import (
	"context"
	"errors"
	"fmt"

	"alertlab/internal/domain"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/policy"
	"alertlab/internal/storage"
)

var (
	// ErrCallNotFound is returned when the call doesn't exist.
	ErrCallNotFound = errors.New("call not found")

	// ErrRowNotFound is returned when the stored row doesn't exist.
	ErrRowNotFound = errors.New("stored row not found")

	// ErrUnknownPolicy is returned when a stored row references a policy the verifier was not given.
	ErrUnknownPolicy = errors.New("unknown policy")
)

// ReplayVerifier implements Verifier by recomputing rows from stored calls and candles.
type ReplayVerifier struct {
	callStore   storage.CallStore
	candleStore storage.CandleStore
	truthStore  storage.PathMetricsStore
	resultStore storage.PolicyResultStore

	// policies maps policy ID to its definition.
	// Must be pre-populated with every policy the run evaluated.
	policies map[string]policy.Policy

	costs     domain.CostConfig
	execution domain.ExecutionConfig
	interval  string
	windowMs  int64
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
// Costs, Execution, Interval and WindowMs must equal those of the verified run.
type ReplayVerifierOptions struct {
	CallStore   storage.CallStore
	CandleStore storage.CandleStore
	TruthStore  storage.PathMetricsStore
	ResultStore storage.PolicyResultStore
	Policies    []policy.Policy
	Costs       domain.CostConfig
	Execution   domain.ExecutionConfig
	Interval    string
	WindowMs    int64
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	policies := make(map[string]policy.Policy, len(opts.Policies))
	for _, p := range opts.Policies {
		policies[p.ID()] = p
	}
	return &ReplayVerifier{
		callStore:   opts.CallStore,
		candleStore: opts.CandleStore,
		truthStore:  opts.TruthStore,
		resultStore: opts.ResultStore,
		policies:    policies,
		costs:       opts.Costs,
		execution:   opts.Execution,
		interval:    opts.Interval,
		windowMs:    opts.WindowMs,
	}
}

// VerifyTruth recomputes the path metrics of a call and compares them to the stored row.
func (v *ReplayVerifier) VerifyTruth(ctx context.Context, callID string) (*VerificationResult, error) {
	stored, err := v.truthStore.GetByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRowNotFound
		}
		return nil, err
	}

	call, candles, err := v.load(ctx, callID)
	if err != nil {
		return nil, err
	}

	replayed, err := pathmetrics.Compute(*call, candles)
	if err != nil {
		return nil, fmt.Errorf("recompute path metrics: %w", err)
	}

	divergences := ComparePathMetrics(stored, replayed)
	return &VerificationResult{
		Kind:        KindTruth,
		CallID:      callID,
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}, nil
}

// VerifyPolicyResult re-evaluates a stored policy result with the seed of its run.
func (v *ReplayVerifier) VerifyPolicyResult(ctx context.Context, runID, policyID, callID string) (*VerificationResult, error) {
	rows, err := v.resultStore.GetByRunPolicy(ctx, runID, policyID)
	if err != nil {
		return nil, err
	}
	var stored *domain.PolicyResultRow
	for _, r := range rows {
		if r.CallID == callID {
			stored = r
			break
		}
	}
	if stored == nil {
		return nil, ErrRowNotFound
	}
	return v.verifyPolicyRow(ctx, stored)
}

func (v *ReplayVerifier) verifyPolicyRow(ctx context.Context, stored *domain.PolicyResultRow) (*VerificationResult, error) {
	p, ok := v.policies[stored.PolicyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, stored.PolicyID)
	}

	call, candles, err := v.load(ctx, stored.CallID)
	if err != nil {
		return nil, err
	}

	seed := policy.Seed(stored.RunID, p, stored.CallID)
	replayed, err := policy.EvaluatePolicy(*call, candles, p, v.costs, v.execution, seed)
	if err != nil {
		return nil, fmt.Errorf("re-evaluate policy: %w", err)
	}
	replayed.RunID = stored.RunID

	divergences := ComparePolicyResults(stored, replayed)
	return &VerificationResult{
		Kind:        KindPolicy,
		CallID:      stored.CallID,
		PolicyID:    stored.PolicyID,
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}, nil
}

// VerifyRun verifies all policy results of a run and the truth rows of their calls.
// Replay errors are recorded as divergences, not returned.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	rows, err := v.resultStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{Results: make([]VerificationResult, 0, len(rows))}

	seen := make(map[string]bool)
	var callIDs []string
	for _, r := range rows {
		if !seen[r.CallID] {
			seen[r.CallID] = true
			callIDs = append(callIDs, r.CallID)
		}
	}

	for _, callID := range callIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := v.VerifyTruth(ctx, callID)
		if err != nil {
			res = errorResult(KindTruth, callID, "", err)
		}
		report.add(*res)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := v.verifyPolicyRow(ctx, row)
		if err != nil {
			res = errorResult(KindPolicy, row.CallID, row.PolicyID, err)
		}
		report.add(*res)
	}

	return report, nil
}

func (v *ReplayVerifier) load(ctx context.Context, callID string) (*domain.Call, []domain.Candle, error) {
	call, err := v.callStore.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrCallNotFound
		}
		return nil, nil, err
	}
	candles, err := storage.CallCandles(ctx, v.candleStore, call, v.interval, v.windowMs)
	if err != nil {
		return nil, nil, fmt.Errorf("load candles: %w", err)
	}
	return call, candles, nil
}

// errorResult records a replay error as a divergence.
func errorResult(kind, callID, policyID string, err error) *VerificationResult {
	return &VerificationResult{
		Kind:     kind,
		CallID:   callID,
		PolicyID: policyID,
		Match:    false,
		Divergences: []FieldDivergence{
			{Field: "Error", Expected: nil, Actual: err.Error()},
		},
	}
}

var _ Verifier = (*ReplayVerifier)(nil)
