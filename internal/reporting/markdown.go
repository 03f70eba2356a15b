package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Run Report\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Policies: %d\n\n", r.PolicyCount))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Calls | %d |\n", r.DataSummary.TotalCalls))
	sb.WriteString(fmt.Sprintf("| Total Callers | %d |\n", r.DataSummary.TotalCallers))
	sb.WriteString(fmt.Sprintf("| Policy Results | %d |\n", r.DataSummary.PolicyResults))
	sb.WriteString(fmt.Sprintf("| Date Range Start (ms) | %d |\n", r.DataSummary.DateRangeStart))
	sb.WriteString(fmt.Sprintf("| Date Range End (ms) | %d |\n", r.DataSummary.DateRangeEnd))
	sb.WriteString("\n")

	// Integrity errors (only shown if present)
	if len(r.DataQuality.IntegrityErrors) > 0 {
		sb.WriteString("## Integrity Errors\n\n")
		for _, err := range r.DataQuality.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Policy Metrics
	sb.WriteString("## Policy Metrics\n\n")
	if len(r.PolicyMetrics) > 0 {
		sb.WriteString("| Policy | Calls | WinRate | StopOut | Mean | Median | P10 | P90 | P95 DD | Tail | MaxDD | MaxLoss |\n")
		sb.WriteString("|--------|-------|---------|---------|------|--------|-----|-----|--------|------|-------|---------|\n")
		for _, m := range r.PolicyMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %.1f | %.1f | %.1f | %.1f | %.1f | %.4f | %.1f | %d |\n",
				m.PolicyID, m.Calls, m.WinRate, m.StopOutRate,
				m.MeanReturnBps, m.MedianReturnBps, m.P10ReturnBps, m.P90ReturnBps,
				m.P95DrawdownBps, m.MeanTailCapture, m.MaxDrawdownBps, m.MaxConsecutiveLosses))
		}
	} else {
		sb.WriteString("No policy metrics available.\n")
	}
	sb.WriteString("\n")

	// Caller Metrics
	sb.WriteString("## Caller Metrics\n\n")
	if len(r.CallerMetrics) > 0 {
		sb.WriteString("| Policy | Caller | Calls | WinRate | Median | Tail |\n")
		sb.WriteString("|--------|--------|-------|---------|--------|------|\n")
		for _, c := range r.CallerMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %.1f | %.4f |\n",
				c.PolicyID, c.CallerID, c.Calls, c.WinRate, c.MedianReturnBps, c.MeanTailCapture))
		}
	} else {
		sb.WriteString("No caller metrics available.\n")
	}
	sb.WriteString("\n")

	// Optimizer
	if len(r.OptimizerResults) > 0 {
		sb.WriteString("## Optimizer Ranking\n\n")
		sb.WriteString("| Rank | Config | Status | Score | Violations |\n")
		sb.WriteString("|------|--------|--------|-------|------------|\n")
		for _, o := range r.OptimizerResults {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				o.Rank, o.ConfigKey, o.Status, formatScore(o.Score), strings.Join(o.Violations, "; ")))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
