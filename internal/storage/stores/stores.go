// Package stores opens the full set of stores a run needs.
package stores

import (
	"context"
	"fmt"

	"alertlab/internal/storage"
	chstore "alertlab/internal/storage/clickhouse"
	"alertlab/internal/storage/memory"
	pgstore "alertlab/internal/storage/postgres"
)

// Set bundles every store. Close releases the underlying connections.
type Set struct {
	Calls     storage.CallStore
	Candles   storage.CandleStore
	Truth     storage.PathMetricsStore
	Results   storage.PolicyResultStore
	Optimizer storage.OptimizerResultStore

	closers []func()
}

// Close closes connections in reverse opening order.
func (s *Set) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewMemory returns empty in-memory stores.
func NewMemory() *Set {
	return &Set{
		Calls:     memory.NewCallStore(),
		Candles:   memory.NewCandleStore(),
		Truth:     memory.NewPathMetricsStore(),
		Results:   memory.NewPolicyResultStore(),
		Optimizer: memory.NewOptimizerResultStore(),
	}
}

// Open connects PostgreSQL (calls, policy and optimizer results) and
// ClickHouse (candles, path metrics).
func Open(ctx context.Context, postgresDSN, clickhouseDSN string) (*Set, error) {
	if postgresDSN == "" {
		return nil, fmt.Errorf("postgres dsn is required (calls, policy and optimizer results)")
	}
	if clickhouseDSN == "" {
		return nil, fmt.Errorf("clickhouse dsn is required (candles, path metrics)")
	}

	s := &Set{}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s.closers = append(s.closers, pool.Close)
	s.Calls = pgstore.NewCallStore(pool)
	s.Results = pgstore.NewPolicyResultStore(pool)
	s.Optimizer = pgstore.NewOptimizerResultStore(pool)

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	s.closers = append(s.closers, func() { _ = conn.Close() })
	s.Candles = chstore.NewCandleStore(conn)
	s.Truth = chstore.NewPathMetricsStore(conn)

	return s, nil
}
