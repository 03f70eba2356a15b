package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"alertlab/internal/optimizer"
	"alertlab/internal/reporting"
	"alertlab/internal/storage"
	"alertlab/internal/storage/stores"
)

var (
	optimizeTop     int
	optimizePersist bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search the optimizer space of the run file and rank the configs",
	Example: `  backtest optimize --config sweep.yaml
  backtest optimize --config sweep.yaml --use-memory --data calls.json -f csv`,
	RunE: runOptimizeCmd,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().IntVar(&optimizeTop, "top", 20, "Rows to print in table output (0 = all)")
	optimizeCmd.Flags().BoolVar(&optimizePersist, "persist", true, "Store the ranking under the run id")
}

func runOptimizeCmd(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	opts, err := a.cfg.OptimizerOptions()
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

	inputs, err := loadInputs(ctx, s, a.cfg.Data.Interval, a.cfg.Data.WindowMs)
	if err != nil {
		return err
	}
	a.logger.Info().Int("calls", len(inputs)).Str("kind", a.cfg.Optimizer.Kind).Msg("optimizer inputs loaded")

	res, err := optimizer.New(a.logger, a.metrics).Run(ctx, inputs, opts)
	if err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	if optimizePersist {
		err := s.Optimizer.InsertBulk(ctx, res.Rows)
		a.metrics.RecordStoreWrite("optimizer_results", err)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			a.logger.Warn().Msg("ranking already stored for this run id")
		case err != nil:
			return fmt.Errorf("store ranking: %w", err)
		}
	}

	return printRanking(res)
}

// loadInputs pairs every stored call with its candle window. Calls without candles are left out.
func loadInputs(ctx context.Context, s *stores.Set, interval string, windowMs int64) ([]optimizer.Input, error) {
	calls, err := s.Calls.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}
	inputs := make([]optimizer.Input, 0, len(calls))
	for _, c := range calls {
		candles, err := storage.CallCandles(ctx, s.Candles, c, interval, windowMs)
		if err != nil {
			return nil, fmt.Errorf("load candles of %s: %w", c.CallID, err)
		}
		if len(candles) == 0 {
			continue
		}
		inputs = append(inputs, optimizer.Input{Call: *c, Candles: candles})
	}
	return inputs, nil
}

func printRanking(res *optimizer.Result) error {
	if outputFormat == "csv" {
		fmt.Print(reporting.RenderOptimizerCSV(res.Rows))
		return nil
	}

	fmt.Println(res.String())
	if best := res.Best(); best != nil {
		fmt.Printf("Best: %s (%s) score=%.2f\n", best.ConfigKey, best.PolicyID, best.Score)
	} else {
		fmt.Println("Best: none (every config skipped or constrained)")
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tCONFIG\tSTATUS\tSCORE\tMEDIAN_BPS\tSTOP_OUT\tP95_DD_BPS\tTAIL_CAPTURE\tNOTE")
	for i, r := range res.Rows {
		if optimizeTop > 0 && i >= optimizeTop {
			break
		}
		score := "-inf"
		if !math.IsInf(r.Score, -1) {
			score = fmt.Sprintf("%.2f", r.Score)
		}
		note := ""
		if len(r.Violations) > 0 {
			note = r.Violations[0]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%.3f\t%.2f\t%.4f\t%s\n",
			r.Rank, r.ConfigKey, r.Status, score, r.MedianReturnBps, r.StopOutRate,
			r.P95DrawdownBps, r.MeanTailCapture, note)
	}
	return w.Flush()
}
