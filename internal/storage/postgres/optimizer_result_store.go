package postgres

import (
	"context"
	"fmt"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

// OptimizerResultStore implements storage.OptimizerResultStore using PostgreSQL.
type OptimizerResultStore struct {
	pool *Pool
}

// NewOptimizerResultStore creates a new OptimizerResultStore.
func NewOptimizerResultStore(pool *Pool) *OptimizerResultStore {
	return &OptimizerResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OptimizerResultStore = (*OptimizerResultStore)(nil)

// InsertBulk adds ranked rows atomically. Fails entire batch on any duplicate.
func (s *OptimizerResultStore) InsertBulk(ctx context.Context, rows []*domain.OptimizerResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO optimizer_results (
			run_id, config_key, rank, policy_id, status,
			score, constraint_violated, violations,
			calls_evaluated, calls_failed,
			median_return_bps, mean_return_bps, stop_out_rate,
			p95_drawdown_bps, median_drawdown_bps, median_time_exposed_ms,
			mean_tail_capture, median_time_to_2x_ms
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18
		)
	`

	for _, r := range rows {
		if r == nil || r.RunID == "" || r.ConfigKey == "" {
			return storage.ErrInvalidInput
		}
		violations := r.Violations
		if violations == nil {
			violations = []string{}
		}
		_, err := tx.Exec(ctx, query,
			r.RunID, r.ConfigKey, r.Rank, r.PolicyID, r.Status,
			r.Score, r.ConstraintViolated, violations,
			r.CallsEvaluated, r.CallsFailed,
			r.MedianReturnBps, r.MeanReturnBps, r.StopOutRate,
			r.P95DrawdownBps, r.MedianDrawdownBps, r.MedianTimeExposedMs,
			r.MeanTailCapture, r.MedianTimeTo2xMs,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert optimizer result in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves all rows of a run, ordered by rank ASC.
func (s *OptimizerResultStore) GetByRun(ctx context.Context, runID string) ([]*domain.OptimizerResultRow, error) {
	query := `
		SELECT
			run_id, config_key, rank, policy_id, status,
			score, constraint_violated, violations,
			calls_evaluated, calls_failed,
			median_return_bps, mean_return_bps, stop_out_rate,
			p95_drawdown_bps, median_drawdown_bps, median_time_exposed_ms,
			mean_tail_capture, median_time_to_2x_ms
		FROM optimizer_results
		WHERE run_id = $1
		ORDER BY rank ASC, config_key ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query optimizer results by run: %w", err)
	}
	defer rows.Close()

	var result []*domain.OptimizerResultRow
	for rows.Next() {
		var r domain.OptimizerResultRow
		err := rows.Scan(
			&r.RunID, &r.ConfigKey, &r.Rank, &r.PolicyID, &r.Status,
			&r.Score, &r.ConstraintViolated, &r.Violations,
			&r.CallsEvaluated, &r.CallsFailed,
			&r.MedianReturnBps, &r.MeanReturnBps, &r.StopOutRate,
			&r.P95DrawdownBps, &r.MedianDrawdownBps, &r.MedianTimeExposedMs,
			&r.MeanTailCapture, &r.MedianTimeTo2xMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan optimizer result: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate optimizer results: %w", err)
	}
	return result, nil
}
