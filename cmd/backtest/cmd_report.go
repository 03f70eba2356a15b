package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"alertlab/internal/reporting"
)

var (
	reportRunID string
	reportRows  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the report of a stored run",
	Example: `  backtest report --config run.yaml -f markdown > REPORT.md
  backtest report --run-id 6f1c... -f csv --rows > results.csv`,
	RunE: runReportCmd,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportRunID, "run-id", "", "Run to report (default: the run file's run id)")
	reportCmd.Flags().BoolVar(&reportRows, "rows", false, "With -f csv, print every policy result instead of the summary")
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
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

	runID := reportRunID
	if runID == "" {
		runID = a.cfg.RunID
	}

	if reportRows {
		rows, err := s.Results.GetByRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("load policy results: %w", err)
		}
		fmt.Print(reporting.RenderPolicyResultsCSV(rows))
		return nil
	}

	report, err := reporting.NewGenerator(s.Calls, s.Results, s.Optimizer).Generate(ctx, runID)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	return printReport(report, outputFormat)
}

func printReport(report *reporting.Report, format string) error {
	// Skipped optimizer configs score -Inf, which JSON cannot carry; reports are Markdown or CSV.
	switch format {
	case "csv":
		fmt.Print(reporting.RenderPolicyCSV(report.PolicyMetrics))
	default:
		fmt.Print(reporting.RenderMarkdown(report))
	}
	return nil
}
