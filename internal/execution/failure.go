package execution

import (
	"alertlab/internal/clock"
	"alertlab/internal/domain"
)

// ValidateFailures checks that all probability inputs lie in [0, 1].
func ValidateFailures(cfg domain.FailureConfig) error {
	for _, v := range []float64{cfg.Base, cfg.Congestion, cfg.FeeShortfall, cfg.MaxProbability} {
		if v < 0 || v > 1 {
			return domain.NewValidationError("execution.failures", "probabilities and levels must be in [0, 1]")
		}
	}
	if cfg.CongestionWeight < 0 || cfg.ShortfallWeight < 0 {
		return domain.NewValidationError("execution.failures", "weights must be non-negative")
	}
	return nil
}

// FailureProbability returns base + congestionWeight*congestion + shortfallWeight*feeShortfall
// clamped to [0, MaxProbability].
func FailureProbability(cfg domain.FailureConfig) float64 {
	p := cfg.Base + cfg.CongestionWeight*cfg.Congestion + cfg.ShortfallWeight*cfg.FeeShortfall
	return clamp(p, 0, cfg.MaxProbability)
}

// SampleFailure draws whether a fill attempt fails. A zero probability draws nothing.
func SampleFailure(cfg domain.FailureConfig, rng *clock.RNG) bool {
	p := FailureProbability(cfg)
	if p <= 0 {
		return false
	}
	return rng.Next() < p
}

// ValidatePartialFills checks the occurrence probability and ratio bounds.
func ValidatePartialFills(cfg domain.PartialFillConfig) error {
	if cfg.Probability < 0 || cfg.Probability > 1 {
		return domain.NewValidationError("execution.partial_fills.probability", "must be in [0, 1]")
	}
	if cfg.Probability == 0 {
		return nil
	}
	if cfg.MinRatio <= 0 || cfg.MaxRatio > 1 || cfg.MinRatio > cfg.MaxRatio {
		return domain.NewValidationError("execution.partial_fills", "ratios must satisfy 0 < min <= max <= 1")
	}
	return nil
}

// SamplePartialFill returns the filled fraction of a request, 1 for a complete fill.
// The occurrence draw always precedes the ratio draw.
func SamplePartialFill(cfg domain.PartialFillConfig, rng *clock.RNG) float64 {
	if cfg.Probability <= 0 {
		return 1
	}
	if rng.Next() >= cfg.Probability {
		return 1
	}
	return rng.Uniform(cfg.MinRatio, cfg.MaxRatio)
}
