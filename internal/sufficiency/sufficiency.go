// Package sufficiency decides whether the stored calls are enough to trust a run's rankings.
package sufficiency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"alertlab/internal/domain"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/storage"
)

// Check represents one data sufficiency criterion.
type Check struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// Result contains all checks.
type Result struct {
	Checks  []Check
	AllPass bool
	Errors  []string // per-call integrity errors, sorted
}

func (r *Result) add(c Check, errs ...string) {
	r.Checks = append(r.Checks, c)
	if !c.Pass {
		r.AllPass = false
	}
	r.Errors = append(r.Errors, errs...)
}

// Thresholds of the count and coverage checks.
type Thresholds struct {
	MinCalls        int     `yaml:"min_calls"`
	MinCallers      int     `yaml:"min_callers"`
	MinCoverageDays float64 `yaml:"min_coverage_days"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{MinCalls: 100, MinCallers: 5, MinCoverageDays: 14}
}

// Checker validates data sufficiency before rankings are acted on.
type Checker struct {
	callStore   storage.CallStore
	candleStore storage.CandleStore
	truthStore  storage.PathMetricsStore

	interval   string
	windowMs   int64
	thresholds Thresholds
}

// NewChecker creates a new sufficiency checker.
func NewChecker(
	callStore storage.CallStore,
	candleStore storage.CandleStore,
	truthStore storage.PathMetricsStore,
	interval string,
	windowMs int64,
) *Checker {
	return &Checker{
		callStore:   callStore,
		candleStore: candleStore,
		truthStore:  truthStore,
		interval:    interval,
		windowMs:    windowMs,
		thresholds:  DefaultThresholds(),
	}
}

// WithThresholds replaces the default thresholds.
func (c *Checker) WithThresholds(t Thresholds) *Checker {
	c.thresholds = t
	return c
}

// Check performs all six checks:
//  1. calls >= MinCalls
//  2. distinct callers >= MinCallers
//  3. span of call timestamps >= MinCoverageDays
//  4. calls without candles == 0
//  5. calls without a truth row == 0
//  6. stored truth rows that do not reproduce == 0
func (c *Checker) Check(ctx context.Context) (*Result, error) {
	calls, err := c.callStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}

	result := &Result{Checks: make([]Check, 0, 6), AllPass: true}

	result.add(c.checkCallCount(calls))
	result.add(c.checkCallers(calls))
	result.add(c.checkCoverage(calls))

	candles := make(map[string][]domain.Candle, len(calls))
	var missingCandles []string
	for _, call := range calls {
		bars, err := storage.CallCandles(ctx, c.candleStore, call, c.interval, c.windowMs)
		if err != nil {
			return nil, fmt.Errorf("load candles of %s: %w", call.CallID, err)
		}
		if len(bars) == 0 {
			missingCandles = append(missingCandles, fmt.Sprintf("call %s (%s): no candles", call.CallID, call.Symbol))
			continue
		}
		candles[call.CallID] = bars
	}
	result.add(Check{
		Name:      "Calls without candles",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", len(missingCandles)),
		Pass:      len(missingCandles) == 0,
	}, missingCandles...)

	missingTruth, divergent, err := c.checkTruth(ctx, calls, candles)
	if err != nil {
		return nil, err
	}
	result.add(Check{
		Name:      "Calls without truth row",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", len(missingTruth)),
		Pass:      len(missingTruth) == 0,
	}, missingTruth...)
	result.add(Check{
		Name:      "Truth rows that do not reproduce",
		Threshold: "= 0",
		Actual:    fmt.Sprintf("%d", len(divergent)),
		Pass:      len(divergent) == 0,
	}, divergent...)

	sort.Strings(result.Errors)
	return result, nil
}

func (c *Checker) checkCallCount(calls []*domain.Call) Check {
	return Check{
		Name:      "Calls",
		Threshold: fmt.Sprintf(">= %d", c.thresholds.MinCalls),
		Actual:    fmt.Sprintf("%d", len(calls)),
		Pass:      len(calls) >= c.thresholds.MinCalls,
	}
}

func (c *Checker) checkCallers(calls []*domain.Call) Check {
	callers := make(map[string]struct{})
	for _, call := range calls {
		callers[call.CallerID] = struct{}{}
	}
	return Check{
		Name:      "Distinct callers",
		Threshold: fmt.Sprintf(">= %d", c.thresholds.MinCallers),
		Actual:    fmt.Sprintf("%d", len(callers)),
		Pass:      len(callers) >= c.thresholds.MinCallers,
	}
}

// checkCoverage measures the span between the first and last call.
func (c *Checker) checkCoverage(calls []*domain.Call) Check {
	check := Check{
		Name:      "Call coverage",
		Threshold: fmt.Sprintf(">= %.0f days", c.thresholds.MinCoverageDays),
	}
	if len(calls) == 0 {
		check.Actual = "0 days (no calls)"
		return check
	}

	minTs, maxTs := calls[0].EntryTimestampMs, calls[0].EntryTimestampMs
	for _, call := range calls {
		minTs = min(minTs, call.EntryTimestampMs)
		maxTs = max(maxTs, call.EntryTimestampMs)
	}
	days := float64(maxTs-minTs) / (24 * 60 * 60 * 1000)

	check.Actual = fmt.Sprintf("%.1f days", days)
	check.Pass = days >= c.thresholds.MinCoverageDays
	return check
}

// checkTruth looks up the stored truth row of every call with candles and recomputes it.
func (c *Checker) checkTruth(ctx context.Context, calls []*domain.Call, candles map[string][]domain.Candle) (missing, divergent []string, err error) {
	for _, call := range calls {
		bars, ok := candles[call.CallID]
		if !ok {
			continue
		}

		stored, err := c.truthStore.GetByCallID(ctx, call.CallID)
		if errors.Is(err, storage.ErrNotFound) {
			missing = append(missing, fmt.Sprintf("call %s: no truth row", call.CallID))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load truth of %s: %w", call.CallID, err)
		}

		replayed, err := pathmetrics.Compute(*call, bars)
		if err != nil {
			divergent = append(divergent, fmt.Sprintf("call %s: replay failed: %v", call.CallID, err))
			continue
		}
		if !pathmetrics.Equal(stored, replayed) {
			divergent = append(divergent, fmt.Sprintf("call %s: stored truth differs from replay", call.CallID))
		}
	}
	return missing, divergent, nil
}

// Markdown renders the checks as a table followed by the integrity errors.
func (r *Result) Markdown() string {
	var sb strings.Builder

	sb.WriteString("## Data Sufficiency\n\n")
	sb.WriteString("| Check | Threshold | Actual | Pass |\n")
	sb.WriteString("|-------|-----------|--------|------|\n")
	for _, c := range r.Checks {
		pass := "PASS"
		if !c.Pass {
			pass = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.Name, c.Threshold, c.Actual, pass))
	}

	if r.AllPass {
		sb.WriteString("\n**All checks pass.**\n")
	} else {
		sb.WriteString("\n**Insufficient data: rankings are not conclusive.**\n")
	}

	if len(r.Errors) > 0 {
		sb.WriteString("\n### Integrity Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString("- " + e + "\n")
		}
	}
	return sb.String()
}
