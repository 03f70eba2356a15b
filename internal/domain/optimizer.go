package domain

// Optimizer config status codes
const (
	ConfigStatusEvaluated = "evaluated"
	ConfigStatusSkipped   = "skipped"
)

// OptimizerResultRow is one ranked configuration of a parameter search.
// Corresponds to optimizer_results table in PostgreSQL.
type OptimizerResultRow struct {
	RunID     string
	Rank      int
	ConfigKey string // canonical "name=value,..." form
	PolicyID  string
	Status    string // evaluated | skipped

	Score              float64 // -Inf when a constraint is breached
	ConstraintViolated bool
	Violations         []string

	CallsEvaluated int
	CallsFailed    int

	MedianReturnBps     float64
	MeanReturnBps       float64
	StopOutRate         float64
	P95DrawdownBps      float64 // magnitude, >= 0
	MedianDrawdownBps   float64 // magnitude, >= 0
	MedianTimeExposedMs float64
	MeanTailCapture     float64
	MedianTimeTo2xMs    *float64
}
