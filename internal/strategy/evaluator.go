package strategy

import (
	"errors"
	"fmt"
	"math"

	"alertlab/internal/domain"
	"alertlab/internal/execution"
	"alertlab/internal/position"
	"alertlab/internal/series"
)

// ErrNilModel is returned when no execution model is supplied.
var ErrNilModel = errors.New("strategy evaluation requires an execution model")

// dustFraction is the share of the cycle size below which a remainder is closed with the fill.
const dustFraction = 1e-9

type phase int

const (
	phaseAwaitEntry phase = iota
	phaseOpen
	phaseAwaitReEntry
	phaseDone
)

type legState struct {
	level     float64 // trigger price
	remaining float64 // size still to sell at this leg
}

// state is everything the evaluator knows after the candles seen so far.
type state struct {
	phase phase
	pos   *position.Position

	anchorTs int64
	refPrice float64
	dropped  bool
	extreme  float64 // entry-side low (long) or high (short) of prior candles

	entryRaw   float64 // raw price of the current cycle's first fill
	cycleSize  float64
	legs       []legState
	stopLevel  float64 // 0 = no fixed stop
	peak       float64 // best price since cycle entry
	trailArmed bool
	trailLevel float64

	reEntryArmed  bool
	lastExitPrice float64
	lastExitTs    int64

	firstFillIdx    int
	firstFillTs     int64
	firstFillRaw    float64
	exitIdx         int
	exitTs          int64
	exitReason      string
	rawExitNotional float64
	rawExitSize     float64
	realized        float64
	entryNotional   float64

	trades []position.Snapshot
	seq    int
	out    []domain.SimulationEvent
	err    error
}

func (s *state) emit(typ domain.SimulationEventType, ts int64, price, effective, size float64, desc string) {
	s.out = append(s.out, domain.SimulationEvent{
		Seq:               s.seq,
		Type:              typ,
		TimestampMs:       ts,
		Price:             price,
		EffectivePrice:    effective,
		Size:              size,
		Description:       desc,
		RemainingPosition: s.pos.Size(),
		PnlSoFar:          s.realized,
	})
	s.seq++
}

func (s *state) fail(err error) {
	if s.err == nil {
		s.err = err
	}
	s.phase = phaseDone
}

type evaluator struct {
	call  domain.Call
	plan  *Plan
	model *execution.Model
}

// Evaluate validates cfg and replays candles for one call.
// Configuration problems return *domain.ValidationError before any candle is read,
// unusable series return *domain.DataError. A call that never enters is a normal
// result with Outcome no_entry.
func Evaluate(call domain.Call, candles []domain.Candle, cfg domain.StrategyConfig, model *execution.Model) (*Result, error) {
	plan, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return EvaluatePlan(call, candles, plan, model)
}

// EvaluatePlan replays candles for one call under a compiled plan.
func EvaluatePlan(call domain.Call, candles []domain.Candle, plan *Plan, model *execution.Model) (*Result, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if err := series.Validate(call.CallID, candles); err != nil {
		return nil, err
	}
	anchor := series.AnchorIndex(candles, call.EntryTimestampMs)
	if anchor < 0 {
		return nil, &domain.DataError{CallID: call.CallID, Reason: "no candle at or after call entry"}
	}

	e := &evaluator{call: call, plan: plan, model: model}
	s := e.initialState(candles[anchor])

	s.emit(domain.EventCallAccepted, s.anchorTs, s.refPrice, 0, 0, "call accepted")
	events := s.out

	cur := series.NewCursor(candles, anchor)
	for s.phase != phaseDone && cur.Advance() {
		events = append(events, e.transition(s, cur)...)
		if s.err != nil {
			return nil, &domain.InvariantViolation{
				Invariant: "ledger accepts every fill",
				Context: map[string]any{
					"call_id":      call.CallID,
					"strategy_id":  plan.StrategyID,
					"candle_index": cur.Index(),
					"error":        s.err.Error(),
				},
			}
		}
	}

	return e.result(s, events), nil
}

func (e *evaluator) initialState(anchor domain.Candle) *state {
	ref := e.call.ReferencePrice
	if !(ref > 0) || math.IsInf(ref, 0) {
		ref = anchor.Open
	}

	s := &state{
		phase:        phaseAwaitEntry,
		pos:          position.New(e.plan.Side, e.plan.ReEntry.MaxReEntries),
		anchorTs:     anchor.TimestampMs,
		refPrice:     ref,
		firstFillIdx: -1,
		exitIdx:      -1,
	}
	if e.plan.Entry.InitialEntryDropPct == nil {
		s.dropped = true
		s.extreme = ref
	}
	return s
}

// transition advances the state by exactly one candle and returns the events it produced.
// It reads only the cursor's current candle.
func (e *evaluator) transition(s *state, cur *series.Cursor) []domain.SimulationEvent {
	s.out = nil
	c := cur.Current()
	idx := cur.Index()
	last := cur.IsLast()

	switch s.phase {
	case phaseAwaitEntry:
		e.stepEntry(s, c, idx, last)
	case phaseOpen:
		e.stepOpen(s, c, idx, last)
	case phaseAwaitReEntry:
		e.checkReEntry(s, c, idx)
		switch {
		case s.phase == phaseOpen && last:
			e.forceExit(s, c, idx)
		case s.phase == phaseAwaitReEntry && last:
			s.phase = phaseDone
		}
	}
	return s.out
}

func (e *evaluator) stepEntry(s *state, c domain.Candle, idx int, last bool) {
	if wait := e.plan.Entry.MaxWaitMs; wait > 0 && c.TimestampMs-s.anchorTs > wait {
		s.emit(domain.EventEntryTimeout, c.TimestampMs, c.Open, 0, 0, fmt.Sprintf("no entry within %dms", wait))
		s.phase = phaseDone
		return
	}

	price, ok := e.entryTrigger(s, c)
	if !ok {
		if last {
			s.emit(domain.EventEntryTimeout, c.TimestampMs, c.Close, 0, 0, "end of data before entry")
			s.phase = phaseDone
		}
		return
	}

	fill := e.model.Fill(execution.FillRequest{
		Side:    e.plan.Side,
		IsEntry: true,
		Price:   price,
		Size:    e.plan.PositionSize,
		Volume:  c.Volume,
	})
	if !fill.Filled {
		s.emit(domain.EventEntryFailed, c.TimestampMs+fill.LatencyMs, price, 0, 0, "entry fill failed")
		if last {
			s.phase = phaseDone
		}
		return
	}

	if err := s.pos.ExecuteEntry(fill.EffectivePrice, fill.Size, c.TimestampMs, "entry"); err != nil {
		s.fail(err)
		return
	}
	s.entryNotional += fill.EffectivePrice * fill.Size
	e.openCycle(s, fill.RawPrice, idx, c.TimestampMs)
	s.emit(domain.EventEntry, c.TimestampMs+fill.LatencyMs, price, fill.EffectivePrice, fill.Size, "entry filled")

	switch {
	case price == c.Open:
		// Filled at the open: the whole candle range follows the entry.
		e.stepOpen(s, c, idx, last)
	case last:
		e.forceExit(s, c, idx)
	}
}

// entryTrigger resolves the entry rule on one candle and returns the raw fill price.
func (e *evaluator) entryTrigger(s *state, c domain.Candle) (float64, bool) {
	drop := e.plan.Entry.InitialEntryDropPct
	rebound := e.plan.Entry.TrailingEntryReboundPct

	if drop == nil && rebound == nil {
		return c.Open, true
	}

	if !s.dropped {
		level := s.refPrice * (1 - *drop)
		if !e.long() {
			level = s.refPrice * (1 + *drop)
		}
		if !e.adverseHit(c, level) {
			return 0, false
		}
		if rebound == nil {
			return e.adverseFill(c, level), true
		}
		// Rebound is measured from the next candle on.
		s.dropped = true
		s.extreme = e.adverseExtreme(c)
		return 0, false
	}

	level := s.extreme * (1 + *rebound)
	if !e.long() {
		level = s.extreme * (1 - *rebound)
	}
	if e.favourableHit(c, level) {
		return e.favourableFill(c, level), true
	}
	if x := e.adverseExtreme(c); e.tighter(s.extreme, x) {
		s.extreme = x
	}
	return 0, false
}

// openCycle arms legs and stops relative to the raw price of a cycle's first fill.
func (e *evaluator) openCycle(s *state, rawPrice float64, idx int, ts int64) {
	s.phase = phaseOpen
	s.entryRaw = rawPrice
	s.cycleSize = s.pos.Size()
	s.peak = rawPrice
	s.trailArmed = false
	s.trailLevel = 0
	s.reEntryArmed = false

	s.legs = make([]legState, len(e.plan.legs))
	for i, leg := range e.plan.legs {
		s.legs[i] = legState{
			level:     e.targetPrice(rawPrice, leg.Target),
			remaining: s.cycleSize * leg.Percent,
		}
	}

	s.stopLevel = 0
	if st := e.plan.stop; st != nil {
		s.stopLevel = rawPrice * (1 + st.Initial)
		if !e.long() {
			s.stopLevel = rawPrice * (1 - st.Initial)
		}
	}

	if s.firstFillIdx < 0 {
		s.firstFillIdx = idx
		s.firstFillTs = ts
		s.firstFillRaw = rawPrice
	}
}

// stepOpen applies the per-candle exit order to an open position:
// stop, then targets only if no stop fired, then peak and trailing update,
// circuit breaker and time stop on the close, re-entry, and end of data.
func (e *evaluator) stepOpen(s *state, c domain.Candle, idx int, last bool) {
	// 1. Stop (fixed or trailing). A firing stop suppresses targets for this candle.
	stopFired := e.checkStop(s, c, idx)
	if s.phase != phaseOpen {
		return
	}

	// 2. Profit-target legs, ascending
	if !stopFired {
		e.checkTargets(s, c, idx)
		if s.phase != phaseOpen {
			return
		}
	}

	// 3. Peak and trailing stop, effective from the next candle
	e.updatePeak(s, c)

	// 4. Risk rules on the close
	if e.checkCircuitBreaker(s, c, idx); s.phase != phaseOpen {
		return
	}
	if e.checkTimeStop(s, c, idx); s.phase != phaseOpen {
		return
	}

	// 5. Re-entry after an earlier target exit
	e.checkReEntry(s, c, idx)

	if last {
		e.forceExit(s, c, idx)
	}
}

func (e *evaluator) currentStop(s *state) (level float64, reason string, typ domain.SimulationEventType, ok bool) {
	level, reason, typ, ok = s.stopLevel, domain.ExitReasonStopLoss, domain.EventStopLoss, s.stopLevel > 0
	if s.trailArmed && (!ok || e.tighter(s.trailLevel, level)) {
		return s.trailLevel, domain.ExitReasonTrailingStop, domain.EventTrailingStop, true
	}
	return level, reason, typ, ok
}

func (e *evaluator) checkStop(s *state, c domain.Candle, idx int) bool {
	level, reason, typ, ok := e.currentStop(s)
	if !ok || !e.adverseHit(c, level) {
		return false
	}

	e.exit(s, c, idx, e.adverseFill(c, level), s.pos.Size(), reason, typ, false)
	if s.pos.Status() == domain.PositionClosed {
		s.phase = phaseDone
	}
	return true
}

func (e *evaluator) checkTargets(s *state, c domain.Candle, idx int) {
	for i := range s.legs {
		leg := &s.legs[i]
		if leg.remaining <= 0 {
			continue
		}
		if !e.favourableHit(c, leg.level) {
			// Levels are ordered, later legs cannot be reached either.
			break
		}

		size := leg.remaining
		if e.plan.fullLadder && e.onlyOpenLeg(s, i) {
			size = s.pos.Size()
		}
		size = math.Min(size, s.pos.Size())

		price := e.favourableFill(c, leg.level)
		filled := e.exit(s, c, idx, price, size, domain.ExitReasonProfitTarget, domain.EventTargetHit, false)
		if s.err != nil {
			return
		}
		if filled > 0 {
			leg.remaining -= filled
			if leg.remaining < s.cycleSize*dustFraction {
				leg.remaining = 0
			}
			s.lastExitPrice = price
			s.lastExitTs = c.TimestampMs
			s.reEntryArmed = e.plan.ReEntry.TrailingReEntryPct != nil
		}

		if s.pos.Status() == domain.PositionClosed {
			e.closeCycle(s)
			return
		}
	}
}

func (e *evaluator) onlyOpenLeg(s *state, i int) bool {
	for j := range s.legs {
		if j != i && s.legs[j].remaining > 0 {
			return false
		}
	}
	return true
}

// closeCycle follows a target-driven full close: wait for a re-entry or finish.
func (e *evaluator) closeCycle(s *state) {
	if s.reEntryArmed && s.pos.ReEntryCount() < e.plan.ReEntry.MaxReEntries {
		s.pos = position.NewReEntryPending(s.pos)
		s.phase = phaseAwaitReEntry
		return
	}
	s.phase = phaseDone
}

func (e *evaluator) updatePeak(s *state, c domain.Candle) {
	if x := e.favourableExtreme(c); e.tighter(x, s.peak) {
		s.peak = x
	}

	t := e.plan.trailing
	if t == nil {
		return
	}

	if !s.trailArmed {
		move := s.peak/s.entryRaw - 1
		if !e.long() {
			move = 1 - s.peak/s.entryRaw
		}
		if move < t.ActivationPct {
			return
		}
		s.trailArmed = true
		s.emit(domain.EventTrailingArmed, c.TimestampMs, s.peak, 0, 0,
			fmt.Sprintf("trailing stop armed after %.2f%% move", move*100))
	}

	level := s.entryRaw
	if t.TrailPct > 0 {
		level = s.peak * (1 - t.TrailPct)
		if !e.long() {
			level = s.peak * (1 + t.TrailPct)
		}
	}
	if s.trailLevel == 0 || e.tighter(level, s.trailLevel) {
		s.trailLevel = level
	}
}

func (e *evaluator) checkCircuitBreaker(s *state, c domain.Candle, idx int) {
	b := e.plan.breaker
	if b == nil {
		return
	}
	notional := s.pos.EntryNotional()
	if notional <= 0 {
		return
	}

	pnl := s.pos.RealizedPnl() + s.pos.CalculateUnrealizedPnl(c.Close)
	if pnl/notional > -b.MaxLossPct {
		return
	}

	e.exit(s, c, idx, c.Close, s.pos.Size(), domain.ExitReasonCircuitBreaker, domain.EventCircuitBreak, false)
	if s.pos.Status() == domain.PositionClosed {
		s.phase = phaseDone
	}
}

func (e *evaluator) checkTimeStop(s *state, c domain.Candle, idx int) {
	t := e.plan.timeStop
	if t == nil || c.TimestampMs-s.firstFillTs < t.MaxHoldMs {
		return
	}

	e.exit(s, c, idx, c.Close, s.pos.Size(), domain.ExitReasonTimeStop, domain.EventTimeStop, false)
	if s.pos.Status() == domain.PositionClosed {
		s.phase = phaseDone
	}
}

func (e *evaluator) checkReEntry(s *state, c domain.Candle, idx int) {
	if !s.reEntryArmed || c.TimestampMs <= s.lastExitTs || !s.pos.CanReEntry() {
		return
	}

	pct := *e.plan.ReEntry.TrailingReEntryPct
	level := s.lastExitPrice * (1 - pct)
	if !e.long() {
		level = s.lastExitPrice * (1 + pct)
	}
	if !e.adverseHit(c, level) {
		return
	}

	price := e.adverseFill(c, level)
	fill := e.model.Fill(execution.FillRequest{
		Side:    e.plan.Side,
		IsEntry: true,
		Price:   price,
		Size:    e.plan.ReEntry.SizePercent * e.plan.PositionSize,
		Volume:  c.Volume,
	})
	if !fill.Filled {
		s.emit(domain.EventEntryFailed, c.TimestampMs+fill.LatencyMs, price, 0, 0, "re-entry fill failed")
		return
	}

	wasPending := s.pos.Status() == domain.PositionPending
	if err := s.pos.ExecuteReEntry(fill.EffectivePrice, fill.Size, c.TimestampMs, "re_entry"); err != nil {
		s.fail(err)
		return
	}
	s.entryNotional += fill.EffectivePrice * fill.Size
	s.reEntryArmed = false
	if wasPending {
		e.openCycle(s, fill.RawPrice, idx, c.TimestampMs)
	}

	s.emit(domain.EventReEntry, c.TimestampMs+fill.LatencyMs, price, fill.EffectivePrice, fill.Size,
		fmt.Sprintf("re-entry %d after retrace below %.6g", s.pos.ReEntryCount(), s.lastExitPrice))
}

func (e *evaluator) forceExit(s *state, c domain.Candle, idx int) {
	if s.phase != phaseOpen || s.pos.IsFlat() {
		return
	}
	e.exit(s, c, idx, c.Close, s.pos.Size(), domain.ExitReasonEndOfData, domain.EventEndOfData, true)
	s.phase = phaseDone
}

// exit passes one exit through the execution model and applies it to the position.
// Returns the filled size, 0 when the fill failed.
func (e *evaluator) exit(s *state, c domain.Candle, idx int, price, size float64, reason string, typ domain.SimulationEventType, forced bool) float64 {
	fill := e.model.Fill(execution.FillRequest{
		Side:   e.plan.Side,
		Price:  price,
		Size:   size,
		Volume: c.Volume,
		Forced: forced,
	})
	if !fill.Filled {
		s.emit(domain.EventExitFailed, c.TimestampMs+fill.LatencyMs, price, 0, 0, reason+" fill failed")
		return 0
	}

	qty := fill.Size
	if s.pos.Size()-qty < s.cycleSize*dustFraction {
		qty = s.pos.Size()
	}

	var borrow float64
	if !e.long() {
		holdMs := c.TimestampMs - s.pos.OpenTimestamp()
		borrow = execution.BorrowCost(s.pos.AverageEntryPrice()*qty, holdMs, e.model.Costs())
	}

	pnl, err := s.pos.ExecuteExit(fill.EffectivePrice, qty, c.TimestampMs, reason)
	if err != nil {
		s.fail(err)
		return 0
	}

	s.realized += pnl - borrow
	s.rawExitNotional += price * qty
	s.rawExitSize += qty
	s.exitIdx = idx
	s.exitTs = c.TimestampMs
	s.exitReason = reason

	if s.pos.Status() == domain.PositionClosed {
		s.trades = append(s.trades, s.pos.Snapshot())
	}

	s.emit(typ, c.TimestampMs+fill.LatencyMs, price, fill.EffectivePrice, qty, reason)
	return qty
}

func (e *evaluator) result(s *state, events []domain.SimulationEvent) *Result {
	r := &Result{
		CallID:     e.call.CallID,
		StrategyID: e.plan.StrategyID,
		Side:       e.plan.Side,
		Outcome:    domain.OutcomeNoEntry,
		Trades:     s.trades,
		EntryIndex: -1,
		ExitIndex:  -1,
		events:     events,
	}
	if s.firstFillIdx < 0 {
		return r
	}

	r.Outcome = domain.OutcomeCompleted
	r.ExitReason = s.exitReason
	r.EntryIndex = s.firstFillIdx
	r.ExitIndex = s.exitIdx
	r.EntryTimestampMs = s.firstFillTs
	r.ExitTimestampMs = s.exitTs
	r.EntryPrice = s.firstFillRaw
	if s.rawExitSize > 0 {
		r.ExitPrice = s.rawExitNotional / s.rawExitSize
	}
	r.RealizedPnl = s.realized
	r.EntryNotional = s.entryNotional
	return r
}

func (e *evaluator) long() bool {
	return e.plan.Side != domain.SideShort
}

// adverseHit reports whether the candle traded through level against the position.
func (e *evaluator) adverseHit(c domain.Candle, level float64) bool {
	if e.long() {
		return c.Low <= level
	}
	return c.High >= level
}

// adverseFill is the worse of the open and level: a gap through the level fills at the open.
func (e *evaluator) adverseFill(c domain.Candle, level float64) float64 {
	if e.long() {
		return math.Min(c.Open, level)
	}
	return math.Max(c.Open, level)
}

func (e *evaluator) favourableHit(c domain.Candle, level float64) bool {
	if e.long() {
		return c.High >= level
	}
	return c.Low <= level
}

// favourableFill is the better of the open and level.
func (e *evaluator) favourableFill(c domain.Candle, level float64) float64 {
	if e.long() {
		return math.Max(c.Open, level)
	}
	return math.Min(c.Open, level)
}

func (e *evaluator) favourableExtreme(c domain.Candle) float64 {
	if e.long() {
		return c.High
	}
	return c.Low
}

func (e *evaluator) adverseExtreme(c domain.Candle) float64 {
	if e.long() {
		return c.Low
	}
	return c.High
}

// tighter reports whether a is further in the position's favour than b.
func (e *evaluator) tighter(a, b float64) bool {
	if e.long() {
		return a > b
	}
	return a < b
}

func (e *evaluator) targetPrice(entry, multiple float64) float64 {
	if e.long() {
		return entry * multiple
	}
	return entry / multiple
}
