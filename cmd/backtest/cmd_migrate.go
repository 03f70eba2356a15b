package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"alertlab/internal/storage/migrations"
	pgstore "alertlab/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded PostgreSQL and ClickHouse migrations",
	RunE:  runMigrateCmd,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateCmd(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if a.cfg.Storage.PostgresDSN == "" || a.cfg.Storage.ClickhouseDSN == "" {
		return fmt.Errorf("migrate needs both --postgres-dsn and --clickhouse-dsn")
	}
	ctx, cancel := signalContext(a.logger)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, a.cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool, a.logger); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.Storage.ClickhouseDSN, a.logger)
	if err != nil {
		return fmt.Errorf("clickhouse migrations: %w", err)
	}
	defer conn.Close()

	a.logger.Info().Msg("migrations applied")
	return nil
}
