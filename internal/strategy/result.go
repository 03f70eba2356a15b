package strategy

import (
	"iter"

	"alertlab/internal/domain"
	"alertlab/internal/position"
)

// Result is the outcome of evaluating one strategy on one call.
type Result struct {
	CallID     string
	StrategyID string
	Outcome    string // completed | no_entry
	ExitReason string // reason of the final exit, "" when no entry
	Side       domain.Side

	// Trades holds one snapshot per position cycle, in order.
	Trades []position.Snapshot

	EntryIndex       int   // candle index of the first fill, -1 when no entry
	ExitIndex        int   // candle index of the final exit, -1 when no entry
	EntryTimestampMs int64 // candle timestamp of the first fill
	ExitTimestampMs  int64 // candle timestamp of the final exit
	EntryPrice       float64 // raw price of the first fill
	ExitPrice        float64 // size-weighted raw exit price over all exits

	RealizedPnl   float64 // net quote PnL over all trades, after costs and borrow
	EntryNotional float64 // cost-adjusted entry notional over all trades

	events []domain.SimulationEvent
}

// Entered reports whether any entry was filled.
func (r *Result) Entered() bool {
	return r.Outcome == domain.OutcomeCompleted
}

// ReturnBps returns realized PnL over cost-adjusted entry notional, in basis points.
func (r *Result) ReturnBps() float64 {
	if r.EntryNotional <= 0 {
		return 0
	}
	return r.RealizedPnl / r.EntryNotional * 10_000
}

// NetMultiple returns the net proceeds per unit of cost-adjusted entry notional.
func (r *Result) NetMultiple() float64 {
	if r.EntryNotional <= 0 {
		return 0
	}
	return (r.EntryNotional + r.RealizedPnl) / r.EntryNotional
}

// Events returns the finite event sequence of the evaluation.
// The sequence can be ranged over any number of times.
func (r *Result) Events() iter.Seq[domain.SimulationEvent] {
	return func(yield func(domain.SimulationEvent) bool) {
		for _, ev := range r.events {
			if !yield(ev) {
				return
			}
		}
	}
}

// EventCount returns the number of recorded events.
func (r *Result) EventCount() int {
	return len(r.events)
}
