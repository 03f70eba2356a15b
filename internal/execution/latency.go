package execution

import (
	"alertlab/internal/clock"
	"alertlab/internal/domain"
)

// ValidateLatency checks that percentiles are non-negative and ordered.
func ValidateLatency(cfg domain.LatencyConfig) error {
	if cfg.P50Ms < 0 || cfg.P90Ms < 0 || cfg.P99Ms < 0 || cfg.JitterMs < 0 || cfg.CongestionMultiplier < 0 {
		return domain.NewValidationError("execution.latency", "values must be non-negative")
	}
	if cfg.P50Ms > cfg.P90Ms || cfg.P90Ms > cfg.P99Ms {
		return domain.NewValidationError("execution.latency", "percentiles must satisfy p50 <= p90 <= p99")
	}
	return nil
}

// latencyEnabled reports whether any latency is configured. Disabled models draw nothing.
func latencyEnabled(cfg domain.LatencyConfig) bool {
	return cfg.P99Ms > 0 || cfg.JitterMs > 0
}

// SampleLatency draws a fill latency in milliseconds.
// The base value comes from a piecewise-linear inverse CDF through
// (0, 0), (0.5, p50), (0.9, p90), (0.99, p99), (1, p99 + (p99 - p90)).
// It is then scaled by congestion, jittered uniformly in ±jitter and clamped at 0.
func SampleLatency(cfg domain.LatencyConfig, rng *clock.RNG) float64 {
	if !latencyEnabled(cfg) {
		return 0
	}

	u := rng.Next()
	base := inverseCDF(cfg, u)

	mult := cfg.CongestionMultiplier
	if mult == 0 {
		mult = 1
	}
	v := base * mult

	if cfg.JitterMs > 0 {
		v += (rng.Next()*2 - 1) * cfg.JitterMs
	}
	if v < 0 {
		return 0
	}
	return v
}

func inverseCDF(cfg domain.LatencyConfig, u float64) float64 {
	type point struct{ q, v float64 }
	pts := []point{
		{0, 0},
		{0.5, cfg.P50Ms},
		{0.9, cfg.P90Ms},
		{0.99, cfg.P99Ms},
		{1, cfg.P99Ms + (cfg.P99Ms - cfg.P90Ms)},
	}
	for i := 1; i < len(pts); i++ {
		if u <= pts[i].q {
			lo, hi := pts[i-1], pts[i]
			frac := (u - lo.q) / (hi.q - lo.q)
			return lo.v + frac*(hi.v-lo.v)
		}
	}
	return pts[len(pts)-1].v
}
