package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordEvaluation("fixed_stop", "ok", 0.001)
	m.RecordEvaluation("fixed_stop", "ok", 0.002)
	m.RecordSkip("data_error")
	m.RecordStoreWrite("policy_results", errors.New("boom"))
	m.RecordOptimizerConfig("evaluated")

	if got := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("fixed_stop", "ok")); got != 2 {
		t.Errorf("evaluations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CallsSkipped.WithLabelValues("data_error")); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreWrites.WithLabelValues("policy_results", "error")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OptimizerConfigs.WithLabelValues("evaluated")); got != 1 {
		t.Errorf("configs = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvaluation("ladder", "ok", 1)
	m.RecordInvariantViolation("x")
	m.RecordSkip("x")
	m.RecordPathMetrics()
	m.RecordOptimizerConfig("x")
	m.RecordOptimizerRun("grid")
	m.RecordStoreWrite("x", nil)
	m.SetBreakerState("x", 2)
	m.RecordRunSuccess(1)
}
