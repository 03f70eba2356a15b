package domain

// SimulationEventType identifies a state transition.
type SimulationEventType string

// Simulation event types
const (
	EventCallAccepted  SimulationEventType = "call_accepted"
	EventEntry         SimulationEventType = "entry"
	EventReEntry       SimulationEventType = "re_entry"
	EventEntryFailed   SimulationEventType = "entry_failed"
	EventEntryTimeout  SimulationEventType = "entry_timeout"
	EventTargetHit     SimulationEventType = "target_hit"
	EventStopLoss      SimulationEventType = "stop_loss"
	EventTrailingStop  SimulationEventType = "trailing_stop"
	EventTrailingArmed SimulationEventType = "trailing_armed"
	EventExitFailed    SimulationEventType = "exit_failed"
	EventTimeStop      SimulationEventType = "time_stop"
	EventCircuitBreak  SimulationEventType = "circuit_breaker"
	EventEndOfData     SimulationEventType = "end_of_data"
)

// SimulationEvent is one append-only record of a simulation state transition.
type SimulationEvent struct {
	Seq               int                 // position in the event sequence, from 0
	Type              SimulationEventType // transition type
	TimestampMs       int64               // candle timestamp plus sampled latency
	Price             float64             // raw trigger price
	EffectivePrice    float64             // price after slippage and fees, 0 if no fill
	Size              float64             // filled size, 0 if no fill
	Description       string
	RemainingPosition float64 // open size after the transition
	PnlSoFar          float64 // realized PnL after the transition, quote units
}
