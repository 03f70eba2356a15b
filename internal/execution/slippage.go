package execution

import (
	"math"

	"alertlab/internal/domain"
)

const maxSlippageBps = 10_000.0

// ValidateSlippage checks the model name and the clamp bounds.
func ValidateSlippage(cfg domain.SlippageConfig) error {
	switch cfg.Model {
	case "", domain.SlippageFixed, domain.SlippageLinear, domain.SlippageSqrt, domain.SlippageVolume:
	default:
		return domain.NewValidationError("execution.slippage.model", "unknown model %q", cfg.Model)
	}
	if cfg.BaseBps < 0 || cfg.CoeffBps < 0 || cfg.MinBps < 0 || cfg.MaxBps < 0 {
		return domain.NewValidationError("execution.slippage", "values must be non-negative")
	}
	if cfg.MaxBps > maxSlippageBps {
		return domain.NewValidationError("execution.slippage.max_bps", "must be <= %v", maxSlippageBps)
	}
	if cfg.MaxBps > 0 && cfg.MinBps > cfg.MaxBps {
		return domain.NewValidationError("execution.slippage", "min_bps must be <= max_bps")
	}
	if (cfg.Model == domain.SlippageLinear || cfg.Model == domain.SlippageSqrt) && cfg.ReferenceNotional <= 0 {
		return domain.NewValidationError("execution.slippage.reference_notional", "must be positive for %s model", cfg.Model)
	}
	return nil
}

// SlippageBps returns the size-dependent slippage for a fill of the given notional.
// volumeNotional is the candle's traded quote volume, used by the volume model.
// The result is clamped to [MinBps, MaxBps]; MaxBps of 0 means 10000.
func SlippageBps(cfg domain.SlippageConfig, notional, volumeNotional float64) float64 {
	if cfg.Model == "" {
		return 0
	}

	var bps float64
	switch cfg.Model {
	case domain.SlippageFixed:
		bps = cfg.BaseBps
	case domain.SlippageLinear:
		bps = cfg.BaseBps + cfg.CoeffBps*notional/cfg.ReferenceNotional
	case domain.SlippageSqrt:
		bps = cfg.BaseBps + cfg.CoeffBps*math.Sqrt(notional/cfg.ReferenceNotional)
	case domain.SlippageVolume:
		if volumeNotional <= 0 {
			bps = math.Inf(1)
		} else {
			bps = cfg.BaseBps + cfg.CoeffBps*notional/volumeNotional
		}
	}

	hi := cfg.MaxBps
	if hi == 0 {
		hi = maxSlippageBps
	}
	return clamp(bps, cfg.MinBps, hi)
}
