package domain

// StrategyLeg is one profit-target rung of a ladder.
type StrategyLeg struct {
	Percent float64 `yaml:"percent"` // fraction of the original size, (0, 1]
	Target  float64 `yaml:"target"`  // price multiple of the entry price, e.g. 2.0
}

// TrailingStopConfig activates a trailing stop after a favourable move.
type TrailingStopConfig struct {
	ActivationPct float64 `yaml:"activation_pct"` // favourable move that arms the trail, e.g. 0.5 = +50%
	TrailPct      float64 `yaml:"trail_pct"`      // distance from the running peak, 0 = break-even
}

// StopLossConfig holds the fixed and trailing stop rules.
type StopLossConfig struct {
	Initial  float64             `yaml:"initial"`  // negative fraction, e.g. -0.30 = stop at 0.70x; 0 = none
	Trailing *TrailingStopConfig `yaml:"trailing"` // nil = no trailing stop
}

// EntryConfig controls how the first fill is obtained.
type EntryConfig struct {
	InitialEntryDropPct     *float64 `yaml:"initial_entry_drop_pct"`     // wait for a drop below reference, nil = none
	TrailingEntryReboundPct *float64 `yaml:"trailing_entry_rebound_pct"` // wait for a rebound off the low, nil = none
	MaxWaitMs               int64    `yaml:"max_wait_ms"`                // 0 = wait until end of data
}

// ReEntryConfig controls re-entries after target exits.
type ReEntryConfig struct {
	TrailingReEntryPct *float64 `yaml:"trailing_re_entry_pct"` // retrace below last exit price, nil = disabled
	MaxReEntries       int      `yaml:"max_re_entries"`
	SizePercent        float64  `yaml:"size_percent"` // fraction of the original size per re-entry
}

// RiskConfig holds call-level risk rules.
type RiskConfig struct {
	MaxLossPct *float64 `yaml:"max_loss_pct"` // circuit breaker on mark-to-market loss of entry notional
	MaxHoldMs  *int64   `yaml:"max_hold_ms"`  // time stop measured from the first fill
}

// StrategyConfig is a complete trading strategy definition.
type StrategyConfig struct {
	StrategyID   string         `yaml:"strategy_id"`
	Side         Side           `yaml:"side"`
	PositionSize float64        `yaml:"position_size"` // base units, default 1.0
	Legs         []StrategyLeg  `yaml:"legs"`
	StopLoss     StopLossConfig `yaml:"stop_loss"`
	Entry        EntryConfig    `yaml:"entry"`
	ReEntry      ReEntryConfig  `yaml:"re_entry"`
	Risk         RiskConfig     `yaml:"risk"`
}

// Exit reason codes
const (
	ExitReasonStopLoss       = "stop_loss"
	ExitReasonTrailingStop   = "trailing_stop"
	ExitReasonProfitTarget   = "profit_target"
	ExitReasonTimeStop       = "time_stop"
	ExitReasonCircuitBreaker = "circuit_breaker"
	ExitReasonEndOfData      = "end_of_data"
)

// Simulation outcome codes
const (
	OutcomeCompleted = "completed"
	OutcomeNoEntry   = "no_entry"
)
