package storage

import (
	"context"

	"alertlab/internal/domain"
)

// CallStore provides access to calls storage.
type CallStore interface {
	// Insert adds a new call. Returns ErrDuplicateKey if call_id exists.
	Insert(ctx context.Context, c *domain.Call) error

	// InsertBulk adds multiple calls atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, calls []*domain.Call) error

	// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, callID string) (*domain.Call, error)

	// GetByCaller retrieves all calls of a caller, ordered by entry_ts ASC, call_id ASC.
	GetByCaller(ctx context.Context, callerID string) ([]*domain.Call, error)

	// GetAll retrieves all calls, ordered by entry_ts ASC, call_id ASC.
	GetAll(ctx context.Context) ([]*domain.Call, error)
}

// CandleStore provides access to candles storage.
type CandleStore interface {
	// InsertBulk adds candles of one series. Fails entire batch on duplicate
	// (symbol, interval, timestamp_ms).
	InsertBulk(ctx context.Context, symbol, interval string, candles []domain.Candle) error

	// GetRange retrieves candles within [start, end] (inclusive), ordered by timestamp ASC.
	GetRange(ctx context.Context, symbol, interval string, start, end int64) ([]domain.Candle, error)
}

// PathMetricsStore provides access to path_metrics storage (truth layer).
type PathMetricsStore interface {
	// Put stores a truth row. Storing an identical row again is a no-op;
	// a differing row for the same call returns ErrTruthConflict.
	Put(ctx context.Context, m *domain.PathMetricsRow) error

	// GetByCallID retrieves the truth row of a call. Returns ErrNotFound if not exists.
	GetByCallID(ctx context.Context, callID string) (*domain.PathMetricsRow, error)

	// GetAll retrieves all truth rows, ordered by call_id ASC.
	GetAll(ctx context.Context) ([]*domain.PathMetricsRow, error)
}

// PolicyResultStore provides access to policy_results storage (policy layer).
type PolicyResultStore interface {
	// InsertBulk adds multiple rows atomically. Fails entire batch on duplicate
	// (run_id, policy_id, call_id).
	InsertBulk(ctx context.Context, rows []*domain.PolicyResultRow) error

	// GetByRun retrieves all rows of a run, ordered by policy_id, entry_ts, call_id ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.PolicyResultRow, error)

	// GetByRunPolicy retrieves the rows of one policy in a run, ordered by entry_ts, call_id ASC.
	GetByRunPolicy(ctx context.Context, runID, policyID string) ([]*domain.PolicyResultRow, error)
}

// OptimizerResultStore provides access to optimizer_results storage.
type OptimizerResultStore interface {
	// InsertBulk adds ranked rows atomically. Fails entire batch on duplicate (run_id, config_key).
	InsertBulk(ctx context.Context, rows []*domain.OptimizerResultRow) error

	// GetByRun retrieves all rows of a run, ordered by rank ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.OptimizerResultRow, error)
}
