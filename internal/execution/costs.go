// Package execution holds the cost and execution-reality models applied to every fill.
package execution

import (
	"math"

	"alertlab/internal/domain"
)

const (
	bpsDenominator = 10_000.0
	msPerYear      = 365.0 * 24 * 60 * 60 * 1000
)

// ValidateCosts rejects negative or non-finite cost parameters.
func ValidateCosts(cfg domain.CostConfig) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"costs.entry_slippage_bps", cfg.EntrySlippageBps},
		{"costs.exit_slippage_bps", cfg.ExitSlippageBps},
		{"costs.taker_fee_bps", cfg.TakerFeeBps},
		{"costs.borrow_apr_bps", cfg.BorrowAprBps},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return domain.NewValidationError(f.name, "must be finite")
		}
		if f.value < 0 {
			return domain.NewValidationError(f.name, "must be non-negative, got %v", f.value)
		}
	}
	return nil
}

// EntryCostMultiplier returns 1 + (entrySlippage + takerFee) / 10000. Always >= 1.
func EntryCostMultiplier(cfg domain.CostConfig) float64 {
	return 1 + (nonNeg(cfg.EntrySlippageBps)+nonNeg(cfg.TakerFeeBps))/bpsDenominator
}

// ExitCostMultiplier returns 1 - (exitSlippage + takerFee) / 10000 clamped to [0, 1].
func ExitCostMultiplier(cfg domain.CostConfig) float64 {
	return clamp(1-(nonNeg(cfg.ExitSlippageBps)+nonNeg(cfg.TakerFeeBps))/bpsDenominator, 0, 1)
}

// EntryPriceWithCosts returns the cost-adjusted price paid on a long entry. Never below raw.
func EntryPriceWithCosts(raw float64, cfg domain.CostConfig) float64 {
	return raw * EntryCostMultiplier(cfg)
}

// ExitPriceWithCosts returns the cost-adjusted price received on a long exit. Never above raw.
func ExitPriceWithCosts(raw float64, cfg domain.CostConfig) float64 {
	return raw * ExitCostMultiplier(cfg)
}

// TradeFee returns the taker fee charged on a notional amount, bounded to [0, amount].
// Exit fees are charged on proceeds already reduced by exit slippage.
func TradeFee(amount float64, isEntry bool, cfg domain.CostConfig) float64 {
	if !(amount > 0) || math.IsInf(amount, 0) {
		return 0
	}

	base := amount
	if !isEntry {
		base = amount * clamp(1-nonNeg(cfg.ExitSlippageBps)/bpsDenominator, 0, 1)
	}
	return clamp(base*nonNeg(cfg.TakerFeeBps)/bpsDenominator, 0, amount)
}

// BorrowCost returns the pro-rata borrow charge on a short notional held for holdMs.
func BorrowCost(notional float64, holdMs int64, cfg domain.CostConfig) float64 {
	if notional <= 0 || holdMs <= 0 {
		return 0
	}
	return notional * nonNeg(cfg.BorrowAprBps) / bpsDenominator * float64(holdMs) / msPerYear
}

// NetPnl returns the net quote PnL of a round trip after slippage, fees and borrow.
// For longs it is monotone non-decreasing in exitPrice.
func NetPnl(entryPrice, exitPrice, size float64, side domain.Side, cfg domain.CostConfig, holdMs int64) float64 {
	if size <= 0 {
		return 0
	}

	if side == domain.SideShort {
		// Sell to open, buy to close.
		proceeds := entryPrice * size * ExitCostMultiplier(cfg)
		cover := exitPrice * size * EntryCostMultiplier(cfg)
		return proceeds - cover - BorrowCost(entryPrice*size, holdMs, cfg)
	}

	cost := entryPrice * size * EntryCostMultiplier(cfg)
	proceeds := exitPrice * size * ExitCostMultiplier(cfg)
	return proceeds - cost
}

func nonNeg(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
