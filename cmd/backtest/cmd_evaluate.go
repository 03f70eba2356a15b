package main

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"alertlab/internal/clock"
	"alertlab/internal/domain"
	"alertlab/internal/execution"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/policy"
	"alertlab/internal/storage"
	"alertlab/internal/strategy"
)

var (
	evaluateCallID string
	evaluateEvents bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one call against the strategies and policies of the run file",
	Long: `Evaluate replays one call without persisting anything. Strategies run with
their full configuration; policies run through the same path as a batch, with the
same seeds, so the output matches the stored rows of the run.`,
	Example: `  backtest evaluate --config run.yaml --call-id 3f2a... --events`,
	RunE:    runEvaluateCmd,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluateCallID, "call-id", "", "Call to evaluate (required)")
	evaluateCmd.Flags().BoolVar(&evaluateEvents, "events", false, "Print the event sequence of every evaluation")
	_ = evaluateCmd.MarkFlagRequired("call-id")
}

func runEvaluateCmd(cmd *cobra.Command, _ []string) error {
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

	call, err := s.Calls.GetByID(ctx, evaluateCallID)
	if err != nil {
		return fmt.Errorf("load call %s: %w", evaluateCallID, err)
	}
	candles, err := storage.CallCandles(ctx, s.Candles, call, a.cfg.Data.Interval, a.cfg.Data.WindowMs)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	truth, err := pathmetrics.Compute(*call, candles)
	if err != nil {
		return fmt.Errorf("path metrics: %w", err)
	}
	printTruth(truth)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOUTCOME\tEXIT_REASON\tRETURN_BPS\tENTRY\tEXIT")

	var traces []*strategy.Result

	for _, cfg := range a.cfg.Strategies {
		seed := clock.NewRunRNG(a.cfg.RunID, cfg.StrategyID).Derive(call.CallID).Seed()
		model, err := execution.NewModel(a.cfg.Costs, a.cfg.Execution, clock.NewRNG(seed))
		if err != nil {
			return err
		}
		res, err := strategy.Evaluate(*call, candles, cfg, model)
		if err != nil {
			fmt.Fprintf(w, "%s\terror\t%v\t\t\t\n", cfg.StrategyID, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.8g\t%.8g\n",
			res.StrategyID, res.Outcome, res.ExitReason, res.ReturnBps(), res.EntryPrice, res.ExitPrice)
		traces = append(traces, res)
	}

	policies, err := a.cfg.BuildPolicies()
	if err != nil {
		return err
	}
	for _, p := range policies {
		row, res, err := policy.EvaluateTrace(*call, candles, p, a.cfg.Costs, a.cfg.Execution, policy.Seed(a.cfg.RunID, p, call.CallID))
		switch {
		case err == nil:
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.8g\t%.8g\n",
				row.PolicyID, domain.OutcomeCompleted, row.ExitReason, row.RealizedReturnBps, row.EntryPrice, row.ExitPrice)
		case errors.Is(err, policy.ErrNoEntry):
			fmt.Fprintf(w, "%s\t%s\t\t\t\t\n", p.ID(), domain.OutcomeNoEntry)
		default:
			fmt.Fprintf(w, "%s\terror\t%v\t\t\t\n", p.ID(), err)
		}
		if res != nil {
			traces = append(traces, res)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if evaluateEvents {
		for _, res := range traces {
			fmt.Printf("\n%s:\n", res.StrategyID)
			printEvents(res.Events())
		}
	}
	return nil
}

func printTruth(m *domain.PathMetricsRow) {
	fmt.Printf("Call %s: entry %.8g at %d, %d candles\n", m.CallID, m.EntryPrice, m.EntryTimestampMs, m.CandleCount)
	fmt.Printf("  peak x%.3f  max adverse %.1f bps  2x=%v 3x=%v 4x=%v\n",
		m.PeakMultiple, m.MaxAdverseExcursionBps, m.Hit2x, m.Hit3x, m.Hit4x)
	fmt.Println()
}

func printEvents(events iter.Seq[domain.SimulationEvent]) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SEQ\tTYPE\tTS\tPRICE\tFILL\tSIZE\tREMAINING\tPNL")
	for ev := range events {
		fmt.Fprintf(w, "  %d\t%s\t%d\t%.8g\t%.8g\t%.6g\t%.6g\t%.6g\n",
			ev.Seq, ev.Type, ev.TimestampMs, ev.Price, ev.EffectivePrice, ev.Size, ev.RemainingPosition, ev.PnlSoFar)
	}
	_ = w.Flush()
}
