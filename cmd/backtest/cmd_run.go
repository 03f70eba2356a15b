package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"alertlab/internal/orchestrator"
	"alertlab/internal/reporting"
)

var (
	runTimeout time.Duration
	runReport  bool
	runVerify  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate every stored call against every policy of the run file",
	Long: `Run computes truth for every call, evaluates every policy and persists
the results under the run id. Re-running a run id is a no-op for rows already stored.`,
	Example: `  # Batch against PostgreSQL and ClickHouse
  backtest run --config run.yaml

  # Self-contained, with verification and a Markdown report
  backtest run --config run.yaml --use-memory --data calls.json --verify --report -f markdown`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Stop starting new calls after this long (0 = none)")
	runCmd.Flags().BoolVar(&runReport, "report", false, "Print the run report after the batch")
	runCmd.Flags().BoolVar(&runVerify, "verify", false, "Replay every stored row after the batch")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(a.logger)
	defer cancel()

	s, err := openStores(ctx, a)
	if err != nil {
		return err
	}
	defer s.Close()

	policies, err := a.cfg.BuildPolicies()
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		CallStore:   s.Calls,
		CandleStore: s.Candles,
		TruthStore:  s.Truth,
		ResultStore: s.Results,
		RunID:       a.cfg.RunID,
		Policies:    policies,
		Costs:       a.cfg.Costs,
		Execution:   a.cfg.Execution,
		Interval:    a.cfg.Data.Interval,
		WindowMs:    a.cfg.Data.WindowMs,
		Workers:     a.cfg.Workers,
		Timeout:     runTimeout,
		Logger:      a.logger,
		Metrics:     a.metrics,
	}
	if a.cfg.Optimizer != nil {
		opts.Constraints = &a.cfg.Optimizer.Constraints
	}

	summary, err := orchestrator.New(opts).Run(ctx)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	if err := printSummary(summary); err != nil {
		return err
	}

	if runVerify {
		report, err := newVerifier(a, s, policies).VerifyRun(ctx, a.cfg.RunID)
		if err != nil {
			return fmt.Errorf("verify run: %w", err)
		}
		if err := printVerification(report); err != nil {
			return err
		}
		if report.DivergentRows > 0 {
			return fmt.Errorf("%d of %d rows diverge on replay", report.DivergentRows, report.TotalRows)
		}
	}

	if runReport {
		report, err := reporting.NewGenerator(s.Calls, s.Results, s.Optimizer).Generate(ctx, a.cfg.RunID)
		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
		return printReport(report, outputFormat)
	}
	return nil
}

func printSummary(sum *orchestrator.Summary) error {
	if outputFormat == "json" {
		out, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Run %s: %d calls x %d policies\n", sum.RunID, sum.Calls, sum.Policies)
	fmt.Printf("  evaluated=%d skipped=%d failed=%d constraint_violated=%d already_stored=%d truth_failed=%d truth_conflicts=%d\n",
		sum.Evaluated, sum.Skipped, sum.Failed, sum.ConstraintViolated, sum.AlreadyStored, sum.TruthFailed, sum.TruthConflicts)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POLICY\tCALLS\tMEDIAN_BPS\tMEAN_BPS\tWIN_RATE\tSTOP_OUT\tP95_DD_BPS\tTAIL_CAPTURE\tVIOLATIONS")
	for _, ps := range sum.PolicySummaries {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.3f\t%.3f\t%.2f\t%.4f\t%d\n",
			ps.PolicyID, ps.Summary.Count, ps.Summary.MedianReturnBps, ps.Summary.MeanReturnBps,
			ps.Summary.WinRate, ps.Summary.StopOutRate, ps.Summary.P95DrawdownBps,
			ps.Summary.MeanTailCapture, len(ps.Violations))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(sum.SkipReasons) > 0 || len(sum.Failures) > 0 {
		fmt.Println()
		for _, it := range sum.SkipReasons {
			fmt.Printf("  skipped %s %s: %s\n", it.CallID, it.PolicyID, it.Reason)
		}
		for _, it := range sum.Failures {
			fmt.Printf("  FAILED  %s %s: %s\n", it.CallID, it.PolicyID, it.Reason)
		}
	}
	return nil
}
