// Command server runs batches on a schedule and serves metrics, status and
// live telemetry:
//   - /ws streams simulation events and batch progress
//   - /metrics exposes Prometheus metrics
//   - POST /runs starts a batch immediately
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"alertlab/internal/config"
	"alertlab/internal/dataset"
	"alertlab/internal/logging"
	"alertlab/internal/observability"
	"alertlab/internal/storage/stores"
	"alertlab/internal/telemetry"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.StringP("config", "c", "", "Path to the YAML run file (required)")
	addr := flag.String("addr", "", "HTTP listen address (overrides the run file)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (default $POSTGRES_DSN)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (default $CLICKHOUSE_DSN)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage")
	dataPath := flag.String("data", "", "JSON file of calls and candles seeding memory stores")
	interval := flag.Duration("interval", 0, "Batch interval (0 = only on POST /runs)")
	runOnStart := flag.Bool("run-on-start", false, "Run one batch at startup")
	flag.Parse()

	bootLogger := logging.New("info", false)
	if *configPath == "" {
		bootLogger.Fatal().Msg("--config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickhouseDSN = *clickhouseDSN
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty).With().Str("component", "server").Logger()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var set *stores.Set
	if *useMemory {
		set = stores.NewMemory()
		if *dataPath != "" {
			f, err := dataset.Load(*dataPath)
			if err != nil {
				logger.Fatal().Err(err).Msg("load data file")
			}
			if _, err := f.Import(ctx, set.Calls, set.Candles); err != nil {
				logger.Fatal().Err(err).Msg("import data file")
			}
		}
	} else {
		set, err = stores.Open(ctx, cfg.Storage.PostgresDSN, cfg.Storage.ClickhouseDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("open stores")
		}
	}
	defer set.Close()

	hub := telemetry.NewHub(logger, nil)
	defer hub.Close()

	srv, err := NewServer(Options{
		Config:   cfg,
		Stores:   set,
		Hub:      hub,
		Interval: *interval,
		Logger:   logger,
		Metrics:  observability.Default(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create server")
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	if *runOnStart {
		srv.Trigger()
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server error")
	}
	logger.Info().Msg("shutdown complete")
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
