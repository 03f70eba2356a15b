package reporting

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"alertlab/internal/domain"
)

// RenderPolicyCSV renders policy metrics as CSV string.
func RenderPolicyCSV(metrics []PolicyMetricRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("policy_id,calls,win_rate,stop_out_rate,")
	sb.WriteString("mean_return_bps,median_return_bps,p10_return_bps,p90_return_bps,")
	sb.WriteString("p95_drawdown_bps,mean_tail_capture,median_time_to_2x_ms,")
	sb.WriteString("max_drawdown_bps,max_consecutive_losses\n")

	// Rows
	for _, m := range metrics {
		sb.WriteString(fmt.Sprintf("%s,%d,%.6f,%.6f,%.2f,%.2f,%.2f,%.2f,%.2f,%.6f,%s,%.2f,%d\n",
			m.PolicyID,
			m.Calls,
			m.WinRate,
			m.StopOutRate,
			m.MeanReturnBps,
			m.MedianReturnBps,
			m.P10ReturnBps,
			m.P90ReturnBps,
			m.P95DrawdownBps,
			m.MeanTailCapture,
			optionalFloat(m.MedianTimeTo2xMs),
			m.MaxDrawdownBps,
			m.MaxConsecutiveLosses,
		))
	}

	return sb.String()
}

// RenderPolicyResultsCSV renders per-call policy results as CSV string.
func RenderPolicyResultsCSV(rows []*domain.PolicyResultRow) string {
	var sb strings.Builder

	sb.WriteString("run_id,policy_id,call_id,realized_return_bps,peak_return_bps,stop_out,")
	sb.WriteString("max_adverse_excursion_bps,time_exposed_ms,tail_capture,time_to_2x_ms,")
	sb.WriteString("entry_ts,entry_price,exit_ts,exit_price,exit_reason\n")

	for _, r := range rows {
		to2x := ""
		if r.TimeTo2xMs != nil {
			to2x = strconv.FormatInt(*r.TimeTo2xMs, 10)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.2f,%.2f,%t,%.2f,%d,%.6f,%s,%d,%g,%d,%g,%s\n",
			r.RunID,
			r.PolicyID,
			r.CallID,
			r.RealizedReturnBps,
			r.PeakReturnBps,
			r.StopOut,
			r.MaxAdverseExcursionBps,
			r.TimeExposedMs,
			r.TailCapture,
			to2x,
			r.EntryTimestampMs,
			r.EntryPrice,
			r.ExitTimestampMs,
			r.ExitPrice,
			r.ExitReason,
		))
	}

	return sb.String()
}

// RenderOptimizerCSV renders ranked optimizer rows as CSV string.
// Config keys contain commas, so they are quoted; violations are joined with "; ".
func RenderOptimizerCSV(rows []*domain.OptimizerResultRow) string {
	var sb strings.Builder

	sb.WriteString("rank,config_key,policy_id,status,score,constraint_violated,violations,")
	sb.WriteString("calls_evaluated,calls_failed,median_return_bps,mean_return_bps,stop_out_rate,")
	sb.WriteString("p95_drawdown_bps,median_drawdown_bps,median_time_exposed_ms,mean_tail_capture,")
	sb.WriteString("median_time_to_2x_ms\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%t,%s,%d,%d,%.2f,%.2f,%.6f,%.2f,%.2f,%.0f,%.6f,%s\n",
			r.Rank,
			quote(r.ConfigKey),
			r.PolicyID,
			r.Status,
			formatScore(r.Score),
			r.ConstraintViolated,
			quote(strings.Join(r.Violations, "; ")),
			r.CallsEvaluated,
			r.CallsFailed,
			r.MedianReturnBps,
			r.MeanReturnBps,
			r.StopOutRate,
			r.P95DrawdownBps,
			r.MedianDrawdownBps,
			r.MedianTimeExposedMs,
			r.MeanTailCapture,
			optionalFloat(r.MedianTimeTo2xMs),
		))
	}

	return sb.String()
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 0, 64)
}

func formatScore(s float64) string {
	if math.IsInf(s, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(s, 'f', 4, 64)
}

func quote(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
