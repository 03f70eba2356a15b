package execution

import (
	"errors"

	"alertlab/internal/clock"
	"alertlab/internal/domain"
)

// ErrNilRNG is returned when a model is built without a random stream.
var ErrNilRNG = errors.New("execution model requires an RNG")

// FillRequest describes one fill attempt.
type FillRequest struct {
	Side    domain.Side
	IsEntry bool
	Price   float64 // raw trigger price
	Size    float64 // requested size
	Volume  float64 // candle base volume, for the volume slippage model
	Forced  bool    // end-of-data liquidation: never fails, never partial
}

// FillResult is the outcome of a fill attempt.
type FillResult struct {
	Filled         bool
	Size           float64 // filled size, <= requested
	RawPrice       float64
	EffectivePrice float64 // after size slippage and cost multipliers
	SlippageBps    float64 // size-dependent slippage on top of CostConfig
	LatencyMs      int64
	Fee            float64 // taker fee on the filled notional
}

// Model bundles the cost and execution configuration with the random stream of one evaluation.
type Model struct {
	costs domain.CostConfig
	exec  domain.ExecutionConfig
	rng   *clock.RNG
}

// Validate checks a cost and execution configuration pair.
func Validate(costs domain.CostConfig, exec domain.ExecutionConfig) error {
	if err := ValidateCosts(costs); err != nil {
		return err
	}
	if err := ValidateLatency(exec.Latency); err != nil {
		return err
	}
	if err := ValidateSlippage(exec.Slippage); err != nil {
		return err
	}
	if err := ValidateFailures(exec.Failures); err != nil {
		return err
	}
	return ValidatePartialFills(exec.PartialFills)
}

// NewModel validates the configuration and creates a model drawing from rng.
func NewModel(costs domain.CostConfig, exec domain.ExecutionConfig, rng *clock.RNG) (*Model, error) {
	if rng == nil {
		return nil, ErrNilRNG
	}
	if err := Validate(costs, exec); err != nil {
		return nil, err
	}
	return &Model{costs: costs, exec: exec, rng: rng}, nil
}

// Costs returns the cost configuration.
func (m *Model) Costs() domain.CostConfig {
	return m.costs
}

// Fill applies the execution models to a request.
// Draw order is fixed: failure, partial occurrence, partial ratio, slippage, latency, cost multipliers.
func (m *Model) Fill(req FillRequest) FillResult {
	res := FillResult{RawPrice: req.Price}

	// 1. Failure
	if !req.Forced && SampleFailure(m.exec.Failures, m.rng) {
		res.LatencyMs = int64(SampleLatency(m.exec.Latency, m.rng))
		return res
	}

	// 2. Partial fill
	ratio := 1.0
	if !req.Forced {
		ratio = SamplePartialFill(m.exec.PartialFills, m.rng)
	}
	res.Size = req.Size * ratio

	// 3. Size-dependent slippage
	notional := req.Price * res.Size
	res.SlippageBps = SlippageBps(m.exec.Slippage, notional, req.Volume*req.Price)

	// 4. Latency
	res.LatencyMs = int64(SampleLatency(m.exec.Latency, m.rng))

	// 5. Cost multipliers
	res.EffectivePrice = m.effectivePrice(req, res.SlippageBps)
	res.Fee = TradeFee(notional, req.IsEntry, m.costs)
	res.Filled = res.Size > 0
	return res
}

// effectivePrice moves the raw price against the trader: buys pay more, sells receive less.
func (m *Model) effectivePrice(req FillRequest, extraBps float64) float64 {
	isBuy := req.IsEntry == (req.Side != domain.SideShort)

	if req.IsEntry {
		bps := nonNeg(m.costs.EntrySlippageBps) + nonNeg(m.costs.TakerFeeBps) + extraBps
		return adverse(req.Price, bps, isBuy)
	}
	bps := nonNeg(m.costs.ExitSlippageBps) + nonNeg(m.costs.TakerFeeBps) + extraBps
	return adverse(req.Price, bps, isBuy)
}

// maxSellBps keeps a sell price strictly positive.
const maxSellBps = 9_999.0

func adverse(raw, bps float64, isBuy bool) float64 {
	if isBuy {
		return raw * (1 + bps/bpsDenominator)
	}
	return raw * (1 - clamp(bps, 0, maxSellBps)/bpsDenominator)
}
