package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"alertlab/internal/pathmetrics"
	"alertlab/internal/storage"
)

var truthCmd = &cobra.Command{
	Use:   "truth",
	Short: "Compute and store path metrics for every call",
	Long: `Truth computes the policy-independent path metrics of every stored call.
Stored rows are never altered: a row that would change is reported as a conflict.`,
	RunE: runTruthCmd,
}

func init() {
	rootCmd.AddCommand(truthCmd)
}

func runTruthCmd(cmd *cobra.Command, _ []string) error {
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

	calls, err := s.Calls.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load calls: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CALL\tSYMBOL\tENTRY\tPEAK\t2X\t3X\t4X\tMAE_BPS\tSTATUS")

	conflicts := 0
	for _, c := range calls {
		if ctx.Err() != nil {
			break
		}
		candles, err := storage.CallCandles(ctx, s.Candles, c, a.cfg.Data.Interval, a.cfg.Data.WindowMs)
		if err != nil {
			return fmt.Errorf("load candles of %s: %w", c.CallID, err)
		}
		row, err := pathmetrics.Compute(*c, candles)
		if err != nil {
			a.metrics.RecordSkip("data_error")
			fmt.Fprintf(w, "%s\t%s\t\t\t\t\t\t\tskipped: %v\n", c.CallID, c.Symbol, err)
			continue
		}
		a.metrics.RecordPathMetrics()

		status := "stored"
		err = s.Truth.Put(ctx, row)
		a.metrics.RecordStoreWrite("path_metrics", err)
		switch {
		case errors.Is(err, storage.ErrTruthConflict):
			conflicts++
			status = "CONFLICT"
		case err != nil:
			return fmt.Errorf("store truth of %s: %w", c.CallID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%.8g\tx%.3f\t%s\t%s\t%s\t%.1f\t%s\n",
			c.CallID, c.Symbol, row.EntryPrice, row.PeakMultiple,
			hitCell(row.Hit2x, row.TimeTo2xMs), hitCell(row.Hit3x, row.TimeTo3xMs), hitCell(row.Hit4x, row.TimeTo4xMs),
			row.MaxAdverseExcursionBps, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if conflicts > 0 {
		return fmt.Errorf("%d truth rows differ from the stored ones: %w", conflicts, storage.ErrTruthConflict)
	}
	return nil
}

func hitCell(hit bool, ms *int64) string {
	if !hit || ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}
