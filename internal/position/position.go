// Package position implements the position ledger: entries, partial exits, re-entries
// and realized PnL, with exact decimal size bookkeeping.
package position

import (
	"math"

	"github.com/shopspring/decimal"

	"alertlab/internal/domain"
)

// sizeScale is the number of decimal places sizes are quantized to on input.
// Quantized sizes survive a float64 round trip, so a position closes at exactly zero.
const sizeScale = 12

// FillKind distinguishes entry and exit fills in the ledger.
type FillKind string

const (
	FillEntry   FillKind = "entry"
	FillReEntry FillKind = "re_entry"
	FillExit    FillKind = "exit"
)

// Fill is one ledger entry.
type Fill struct {
	Kind        FillKind
	Price       float64
	Size        float64
	TimestampMs int64
	Reason      string
	PnlDelta    float64 // realized on exits, 0 on entries
}

// Position tracks one call's exposure. It is owned by a single evaluation and is not
// safe for concurrent use. Once closed it rejects every mutation.
type Position struct {
	side   domain.Side
	status domain.PositionStatus

	size          decimal.Decimal
	avgEntryPrice decimal.Decimal
	realizedPnl   decimal.Decimal
	entryNotional decimal.Decimal // sum of price*size over all entries
	exitNotional  decimal.Decimal // sum of price*size over all exits
	enteredSize   decimal.Decimal // sum of entry sizes

	openTimestamp  int64
	closeTimestamp int64
	reEntryCount   int
	maxReEntries   int

	fills []Fill
}

// New creates a pending position.
func New(side domain.Side, maxReEntries int) *Position {
	return &Position{
		side:         side,
		status:       domain.PositionPending,
		maxReEntries: maxReEntries,
	}
}

// NewReEntryPending creates the pending position that follows a fully closed one.
// It carries the re-entry count so the cap applies across the whole call.
func NewReEntryPending(prev *Position) *Position {
	p := New(prev.side, prev.maxReEntries)
	p.reEntryCount = prev.reEntryCount
	return p
}

// ExecuteEntry adds size at price and recomputes the weighted average entry price.
func (p *Position) ExecuteEntry(price, size float64, ts int64, reason string) error {
	return p.enter(FillEntry, price, size, ts, reason)
}

// ExecuteReEntry adds size like ExecuteEntry and counts one re-entry.
// Requires CanReEntry.
func (p *Position) ExecuteReEntry(price, size float64, ts int64, reason string) error {
	if !p.CanReEntry() {
		return domain.NewValidationError("position.re_entry", "re-entry not allowed (count=%d max=%d status=%s)",
			p.reEntryCount, p.maxReEntries, p.status)
	}
	if err := p.enter(FillReEntry, price, size, ts, reason); err != nil {
		return err
	}
	p.reEntryCount++
	return nil
}

func (p *Position) enter(kind FillKind, price, size float64, ts int64, reason string) error {
	if err := p.checkMutable(); err != nil {
		return err
	}
	if err := checkPrice(price); err != nil {
		return err
	}
	qty, err := toSize(size)
	if err != nil {
		return err
	}

	px := decimal.NewFromFloat(price)
	newSize := p.size.Add(qty)
	p.avgEntryPrice = p.avgEntryPrice.Mul(p.size).Add(px.Mul(qty)).Div(newSize)
	p.size = newSize
	p.entryNotional = p.entryNotional.Add(px.Mul(qty))
	p.enteredSize = p.enteredSize.Add(qty)

	if p.status == domain.PositionPending {
		p.status = domain.PositionOpen
		p.openTimestamp = ts
	}

	p.fills = append(p.fills, Fill{Kind: kind, Price: price, Size: qty.InexactFloat64(), TimestampMs: ts, Reason: reason})
	return nil
}

// ExecuteExit removes size at price and returns the realized PnL delta:
// (price - avg) * size for longs, (avg - price) * size for shorts.
// The position closes exactly when its size reaches zero.
func (p *Position) ExecuteExit(price, size float64, ts int64, reason string) (float64, error) {
	if err := p.checkMutable(); err != nil {
		return 0, err
	}
	if err := checkPrice(price); err != nil {
		return 0, err
	}
	qty, err := toSize(size)
	if err != nil {
		return 0, err
	}
	if qty.GreaterThan(p.size) {
		return 0, domain.NewValidationError("position.exit_size", "exit size %s exceeds position size %s",
			qty.String(), p.size.String())
	}

	px := decimal.NewFromFloat(price)
	delta := px.Sub(p.avgEntryPrice).Mul(qty)
	if p.side == domain.SideShort {
		delta = delta.Neg()
	}

	p.size = p.size.Sub(qty)
	p.realizedPnl = p.realizedPnl.Add(delta)
	p.exitNotional = p.exitNotional.Add(px.Mul(qty))

	if p.size.IsZero() {
		p.status = domain.PositionClosed
		p.closeTimestamp = ts
	}

	pnl := delta.InexactFloat64()
	p.fills = append(p.fills, Fill{Kind: FillExit, Price: price, Size: qty.InexactFloat64(), TimestampMs: ts, Reason: reason, PnlDelta: pnl})
	return pnl, nil
}

// CalculateUnrealizedPnl returns the PnL of the open size marked at markPrice, 0 unless open.
func (p *Position) CalculateUnrealizedPnl(markPrice float64) float64 {
	if p.status != domain.PositionOpen {
		return 0
	}
	pnl := decimal.NewFromFloat(markPrice).Sub(p.avgEntryPrice).Mul(p.size)
	if p.side == domain.SideShort {
		pnl = pnl.Neg()
	}
	return pnl.InexactFloat64()
}

// CanReEntry reports whether another re-entry is allowed.
func (p *Position) CanReEntry() bool {
	if p.status == domain.PositionClosed {
		return false
	}
	return p.reEntryCount < p.maxReEntries
}

// Status returns the lifecycle state.
func (p *Position) Status() domain.PositionStatus { return p.status }

// Side returns the position direction.
func (p *Position) Side() domain.Side { return p.side }

// Size returns the open size.
func (p *Position) Size() float64 { return p.size.InexactFloat64() }

// IsFlat reports whether no size is open.
func (p *Position) IsFlat() bool { return p.size.IsZero() }

// AverageEntryPrice returns the weighted average entry price of the open size.
func (p *Position) AverageEntryPrice() float64 { return p.avgEntryPrice.InexactFloat64() }

// RealizedPnl returns the accumulated realized PnL.
func (p *Position) RealizedPnl() float64 { return p.realizedPnl.InexactFloat64() }

// EntryNotional returns the sum of price * size over all entries.
func (p *Position) EntryNotional() float64 { return p.entryNotional.InexactFloat64() }

// OpenTimestamp returns the timestamp of the first fill, 0 while pending.
func (p *Position) OpenTimestamp() int64 { return p.openTimestamp }

// ReEntryCount returns the number of re-entries taken.
func (p *Position) ReEntryCount() int { return p.reEntryCount }

func (p *Position) checkMutable() error {
	if p.status == domain.PositionClosed {
		return domain.NewValidationError("position.status", "closed position is immutable")
	}
	return nil
}

func checkPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return domain.NewValidationError("position.price", "non-finite price")
	}
	if price <= 0 {
		return domain.NewValidationError("position.price", "price must be positive, got %v", price)
	}
	return nil
}

func toSize(size float64) (decimal.Decimal, error) {
	if math.IsNaN(size) || math.IsInf(size, 0) {
		return decimal.Zero, domain.NewValidationError("position.size", "non-finite size")
	}
	qty := decimal.NewFromFloat(size).Round(sizeScale)
	if !qty.IsPositive() {
		return decimal.Zero, domain.NewValidationError("position.size", "size must be positive, got %v", size)
	}
	return qty, nil
}
