// Package reporting renders run results as Markdown and CSV.
package reporting

import (
	"time"

	"alertlab/internal/domain"
)

// Report is the summary of one run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	PolicyCount int

	// Data Summary
	DataSummary DataSummary

	// Data Quality (calls referenced by results but missing from the call store)
	DataQuality DataQualitySection

	// Policy Metrics (sorted by policy_id)
	PolicyMetrics []PolicyMetricRow

	// Caller Metrics (sorted by policy_id, caller_id)
	CallerMetrics []CallerMetricRow

	// Optimizer results of the run, ranked
	OptimizerResults []*domain.OptimizerResultRow
}

// DataQualitySection contains integrity errors found while building the report.
type DataQualitySection struct {
	IntegrityErrors []string
}

// DataSummary contains data description.
type DataSummary struct {
	TotalCalls     int
	TotalCallers   int
	PolicyResults  int
	DateRangeStart int64 // Unix ms
	DateRangeEnd   int64 // Unix ms
}

// PolicyMetricRow represents one row in the policy metrics table.
type PolicyMetricRow struct {
	PolicyID             string
	Calls                int
	WinRate              float64
	StopOutRate          float64
	MeanReturnBps        float64
	MedianReturnBps      float64
	P10ReturnBps         float64
	P90ReturnBps         float64
	P95DrawdownBps       float64
	MeanTailCapture      float64
	MedianTimeTo2xMs     *float64
	MaxDrawdownBps       float64
	MaxConsecutiveLosses int
}

// CallerMetricRow compares callers under one policy.
type CallerMetricRow struct {
	PolicyID        string
	CallerID        string
	Calls           int
	WinRate         float64
	MedianReturnBps float64
	MeanTailCapture float64
}
