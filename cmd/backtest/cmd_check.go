package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"alertlab/internal/sufficiency"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the stored calls are sufficient to trust a run",
	Long: `Check counts calls, callers and the covered period, and verifies that every call
has candles and a stored truth row that still reproduces. Thresholds come from the
sufficiency section of the run file.`,
	RunE: runCheckCmd,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheckCmd(cmd *cobra.Command, _ []string) error {
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

	res, err := sufficiency.NewChecker(s.Calls, s.Candles, s.Truth, a.cfg.Data.Interval, a.cfg.Data.WindowMs).
		WithThresholds(a.cfg.Sufficiency).
		Check(ctx)
	if err != nil {
		return err
	}

	if outputFormat == "markdown" {
		fmt.Print(res.Markdown())
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHECK\tTHRESHOLD\tACTUAL\tPASS")
		for _, c := range res.Checks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", c.Name, c.Threshold, c.Actual, c.Pass)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for _, e := range res.Errors {
			fmt.Println("  " + e)
		}
	}

	if !res.AllPass {
		return errors.New("data is not sufficient")
	}
	return nil
}
