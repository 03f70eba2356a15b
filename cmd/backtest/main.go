// Command backtest evaluates exit policies against recorded calls.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alertlab/internal/config"
	"alertlab/internal/logging"
	"alertlab/internal/observability"
)

var (
	configPath    string
	dataPath      string
	useMemory     bool
	postgresDSN   string
	clickhouseDSN string
	logLevel      string
	logPretty     bool
	outputFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest exit policies against recorded alert calls",
	Long: `backtest replays recorded alert calls through exit policies.

Truth (path metrics) is computed once per call and stored in ClickHouse.
Policy results, calls and optimizer rankings live in PostgreSQL.
With --use-memory every store is in-process and seeded from --data.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to the YAML run file")
	pf.StringVar(&dataPath, "data", "", "JSON file of calls and candles (seeds memory stores, read by import)")
	pf.BoolVar(&useMemory, "use-memory", false, "Use in-memory storage")
	pf.StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL connection string (default $POSTGRES_DSN)")
	pf.StringVar(&clickhouseDSN, "clickhouse-dsn", "", "ClickHouse connection string (default $CLICKHOUSE_DSN)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (overrides the run file)")
	pf.BoolVar(&logPretty, "pretty", false, "Human readable logs")
	pf.StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json, csv, markdown")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	cfg     *config.Root
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// setup loads the run file, applies flag overrides and builds the logger.
// Without --config an empty run file is used.
func setup() (*app, error) {
	var (
		cfg *config.Root
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	if postgresDSN != "" {
		cfg.Storage.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		cfg.Storage.ClickhouseDSN = clickhouseDSN
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logPretty {
		cfg.Logging.Pretty = true
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty).With().Str("run_id", cfg.RunID).Logger()
	return &app{cfg: cfg, logger: logger, metrics: observability.Default()}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
