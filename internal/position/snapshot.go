package position

import (
	"alertlab/internal/domain"
)

// Snapshot is an immutable value view of a position for reporting.
type Snapshot struct {
	Side              domain.Side
	Status            domain.PositionStatus
	Size              float64
	AverageEntryPrice float64
	RealizedPnl       float64
	EntryNotional     float64 // sum of entry price * size
	ExitNotional      float64 // sum of exit price * size
	EnteredSize       float64
	OpenTimestamp     int64
	CloseTimestamp    int64
	ReEntryCount      int
	MaxReEntries      int
	Fills             []Fill
}

// Snapshot copies the current state.
func (p *Position) Snapshot() Snapshot {
	fills := make([]Fill, len(p.fills))
	copy(fills, p.fills)

	return Snapshot{
		Side:              p.side,
		Status:            p.status,
		Size:              p.size.InexactFloat64(),
		AverageEntryPrice: p.avgEntryPrice.InexactFloat64(),
		RealizedPnl:       p.realizedPnl.InexactFloat64(),
		EntryNotional:     p.entryNotional.InexactFloat64(),
		ExitNotional:      p.exitNotional.InexactFloat64(),
		EnteredSize:       p.enteredSize.InexactFloat64(),
		OpenTimestamp:     p.openTimestamp,
		CloseTimestamp:    p.closeTimestamp,
		ReEntryCount:      p.reEntryCount,
		MaxReEntries:      p.maxReEntries,
		Fills:             fills,
	}
}

// ReturnBps returns realized PnL relative to entry notional, in basis points.
// Returns 0 when nothing was entered.
func (s Snapshot) ReturnBps() float64 {
	if s.EntryNotional <= 0 {
		return 0
	}
	return s.RealizedPnl / s.EntryNotional * 10_000
}
