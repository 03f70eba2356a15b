package domain

// CostConfig holds fee and slippage assumptions in basis points.
type CostConfig struct {
	EntrySlippageBps float64 `yaml:"entry_slippage_bps"`
	ExitSlippageBps  float64 `yaml:"exit_slippage_bps"`
	TakerFeeBps      float64 `yaml:"taker_fee_bps"`
	BorrowAprBps     float64 `yaml:"borrow_apr_bps"` // charged on short notional
}

// LatencyConfig is a percentile description of fill latency.
type LatencyConfig struct {
	P50Ms                float64 `yaml:"p50_ms"`
	P90Ms                float64 `yaml:"p90_ms"`
	P99Ms                float64 `yaml:"p99_ms"`
	JitterMs             float64 `yaml:"jitter_ms"`
	CongestionMultiplier float64 `yaml:"congestion_multiplier"` // 0 is treated as 1
}

// Slippage model variants
const (
	SlippageFixed  = "fixed"
	SlippageLinear = "linear"
	SlippageSqrt   = "sqrt"
	SlippageVolume = "volume"
)

// SlippageConfig describes size-dependent slippage on top of CostConfig.
type SlippageConfig struct {
	Model             string  `yaml:"model"` // fixed | linear | sqrt | volume, "" = none
	BaseBps           float64 `yaml:"base_bps"`
	CoeffBps          float64 `yaml:"coeff_bps"`
	ReferenceNotional float64 `yaml:"reference_notional"` // notional at which linear/sqrt add CoeffBps
	MinBps            float64 `yaml:"min_bps"`
	MaxBps            float64 `yaml:"max_bps"`
}

// FailureConfig describes the probability that a fill attempt fails.
type FailureConfig struct {
	Base             float64 `yaml:"base"`
	CongestionWeight float64 `yaml:"congestion_weight"`
	ShortfallWeight  float64 `yaml:"shortfall_weight"`
	Congestion       float64 `yaml:"congestion"`    // network congestion level, [0, 1]
	FeeShortfall     float64 `yaml:"fee_shortfall"` // how far the priority fee is below market, [0, 1]
	MaxProbability   float64 `yaml:"max_probability"`
}

// PartialFillConfig describes partial fill occurrence and size.
type PartialFillConfig struct {
	Probability float64 `yaml:"probability"`
	MinRatio    float64 `yaml:"min_ratio"`
	MaxRatio    float64 `yaml:"max_ratio"`
}

// ExecutionConfig bundles the execution-reality models. The zero value means perfect fills.
type ExecutionConfig struct {
	Latency      LatencyConfig     `yaml:"latency"`
	Slippage     SlippageConfig    `yaml:"slippage"`
	Failures     FailureConfig     `yaml:"failures"`
	PartialFills PartialFillConfig `yaml:"partial_fills"`
}
