package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load calls and candles from a JSON data file into the stores",
	Example: `  backtest import --data calls.json --postgres-dsn postgres://... --clickhouse-dsn clickhouse://...`,
	RunE: runImportCmd,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImportCmd(cmd *cobra.Command, _ []string) error {
	if dataPath == "" {
		return fmt.Errorf("--data is required")
	}
	if useMemory {
		return fmt.Errorf("import writes to PostgreSQL and ClickHouse; drop --use-memory")
	}

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

	return importData(ctx, s, dataPath, a.logger)
}
