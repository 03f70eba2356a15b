package optimizer

import (
	"fmt"
	"math"

	"alertlab/internal/domain"
	"alertlab/internal/metrics"
)

// Primary objective statistics.
const (
	PrimaryMedian = "median"
	PrimaryMean   = "mean"
)

// earlyStopMargin is the relative shortfall that triggers early stopping.
const earlyStopMargin = 0.10

// Objective weights the per-config aggregates into one score:
//
//	score = PrimaryWeight*primary + TailCaptureWeight*meanTailCapture*1e4 - DrawdownWeight*medianDrawdownBps
//
// Tail capture is scaled to basis points so weights compare like for like.
type Objective struct {
	Primary           string  `yaml:"primary"` // median | mean
	PrimaryWeight     float64 `yaml:"primary_weight"`
	TailCaptureWeight float64 `yaml:"tail_capture_weight"`
	DrawdownWeight    float64 `yaml:"drawdown_weight"`
}

// DefaultObjective scores by median net return alone.
func DefaultObjective() Objective {
	return Objective{Primary: PrimaryMedian, PrimaryWeight: 1}
}

// Validate checks the objective.
func (o Objective) Validate() error {
	if o.Primary != PrimaryMedian && o.Primary != PrimaryMean {
		return domain.NewValidationError("objective.primary", "must be median or mean, got %q", o.Primary)
	}
	for name, w := range map[string]float64{
		"objective.primary_weight":      o.PrimaryWeight,
		"objective.tail_capture_weight": o.TailCaptureWeight,
		"objective.drawdown_weight":     o.DrawdownWeight,
	} {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return domain.NewValidationError(name, "must be a finite non-negative weight")
		}
	}
	return nil
}

// Constraints are hard limits. A nil limit is not enforced.
type Constraints struct {
	MaxStopOutRate         *float64 `yaml:"max_stop_out_rate"`
	MaxP95DrawdownBps      *float64 `yaml:"max_p95_drawdown_bps"` // magnitude
	MaxMedianTimeExposedMs *float64 `yaml:"max_median_time_exposed_ms"`
}

// Score returns the objective score of a summary and the breached constraints.
// Any breach, or an empty summary, scores -Inf.
func Score(s metrics.Summary, obj Objective, cons Constraints) (float64, []string) {
	if s.Count == 0 {
		return math.Inf(-1), []string{"no calls evaluated"}
	}

	var violations []string
	if c := cons.MaxStopOutRate; c != nil && s.StopOutRate > *c {
		violations = append(violations, fmt.Sprintf("stop_out_rate %.4f > %.4f", s.StopOutRate, *c))
	}
	if c := cons.MaxP95DrawdownBps; c != nil && s.P95DrawdownBps > *c {
		violations = append(violations, fmt.Sprintf("p95_drawdown_bps %.2f > %.2f", s.P95DrawdownBps, *c))
	}
	if c := cons.MaxMedianTimeExposedMs; c != nil && s.MedianTimeExposedMs > *c {
		violations = append(violations, fmt.Sprintf("median_time_exposed_ms %.0f > %.0f", s.MedianTimeExposedMs, *c))
	}
	if len(violations) > 0 {
		return math.Inf(-1), violations
	}

	primary := s.MedianReturnBps
	if obj.Primary == PrimaryMean {
		primary = s.MeanReturnBps
	}
	score := obj.PrimaryWeight*primary +
		obj.TailCaptureWeight*s.MeanTailCapture*10_000 -
		obj.DrawdownWeight*s.MedianDrawdownBps
	return score, nil
}

// EarlyStopping halts a search once the best of the last Patience scores falls more
// than 10% below the running best. Nil disables it.
type EarlyStopping struct {
	MinEvaluations int `yaml:"min_evaluations"`
	Patience       int `yaml:"patience"`
}

// Validate checks the early stopping settings.
func (e EarlyStopping) Validate() error {
	if e.Patience < 1 {
		return domain.NewValidationError("early_stopping.patience", "must be >= 1")
	}
	if e.MinEvaluations < e.Patience {
		return domain.NewValidationError("early_stopping.min_evaluations", "must be >= patience")
	}
	return nil
}

// stopIndex scans scores in index order and returns the index after which the search
// halts, or -1. The result depends only on the scores, never on evaluation batching.
func (e EarlyStopping) stopIndex(scores []float64) int {
	best := math.Inf(-1)
	for i, s := range scores {
		best = math.Max(best, s)
		if i+1 < e.MinEvaluations || i+1 < e.Patience {
			continue
		}
		if shouldStop(scores[i+1-e.Patience:i+1], best) {
			return i
		}
	}
	return -1
}

func shouldStop(recent []float64, runningBest float64) bool {
	if math.IsInf(runningBest, -1) {
		return false
	}
	recentBest := math.Inf(-1)
	for _, s := range recent {
		recentBest = math.Max(recentBest, s)
	}
	return recentBest < runningBest-earlyStopMargin*math.Abs(runningBest)
}
