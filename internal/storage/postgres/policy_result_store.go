package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

// PolicyResultStore implements storage.PolicyResultStore using PostgreSQL.
type PolicyResultStore struct {
	pool *Pool
}

// NewPolicyResultStore creates a new PolicyResultStore.
func NewPolicyResultStore(pool *Pool) *PolicyResultStore {
	return &PolicyResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PolicyResultStore = (*PolicyResultStore)(nil)

const selectPolicyResultColumns = `
	SELECT
		run_id, policy_id, call_id,
		realized_return_bps, peak_return_bps, stop_out, max_adverse_excursion_bps,
		time_exposed_ms, tail_capture, time_to_2x_ms,
		entry_ts, entry_price, exit_ts, exit_price, exit_reason
	FROM policy_results
`

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *PolicyResultStore) InsertBulk(ctx context.Context, rows []*domain.PolicyResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO policy_results (
			run_id, policy_id, call_id,
			realized_return_bps, peak_return_bps, stop_out, max_adverse_excursion_bps,
			time_exposed_ms, tail_capture, time_to_2x_ms,
			entry_ts, entry_price, exit_ts, exit_price, exit_reason
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`

	for _, r := range rows {
		if r == nil || r.RunID == "" || r.PolicyID == "" || r.CallID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			r.RunID, r.PolicyID, r.CallID,
			r.RealizedReturnBps, r.PeakReturnBps, r.StopOut, r.MaxAdverseExcursionBps,
			r.TimeExposedMs, r.TailCapture, r.TimeTo2xMs,
			r.EntryTimestampMs, r.EntryPrice, r.ExitTimestampMs, r.ExitPrice, r.ExitReason,
		)
		if err != nil {
			return mapWriteError(err, "insert policy result in bulk")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves all rows of a run, ordered by policy_id, entry_ts, call_id ASC.
func (s *PolicyResultStore) GetByRun(ctx context.Context, runID string) ([]*domain.PolicyResultRow, error) {
	rows, err := s.pool.Query(ctx, selectPolicyResultColumns+`
		WHERE run_id = $1
		ORDER BY policy_id ASC, entry_ts ASC, call_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query policy results by run: %w", err)
	}
	defer rows.Close()

	return scanPolicyResults(rows)
}

// GetByRunPolicy retrieves the rows of one policy in a run, ordered by entry_ts, call_id ASC.
func (s *PolicyResultStore) GetByRunPolicy(ctx context.Context, runID, policyID string) ([]*domain.PolicyResultRow, error) {
	rows, err := s.pool.Query(ctx, selectPolicyResultColumns+`
		WHERE run_id = $1 AND policy_id = $2
		ORDER BY entry_ts ASC, call_id ASC
	`, runID, policyID)
	if err != nil {
		return nil, fmt.Errorf("query policy results by run and policy: %w", err)
	}
	defer rows.Close()

	return scanPolicyResults(rows)
}

func scanPolicyResults(rows pgx.Rows) ([]*domain.PolicyResultRow, error) {
	var result []*domain.PolicyResultRow
	for rows.Next() {
		var r domain.PolicyResultRow
		err := rows.Scan(
			&r.RunID, &r.PolicyID, &r.CallID,
			&r.RealizedReturnBps, &r.PeakReturnBps, &r.StopOut, &r.MaxAdverseExcursionBps,
			&r.TimeExposedMs, &r.TailCapture, &r.TimeTo2xMs,
			&r.EntryTimestampMs, &r.EntryPrice, &r.ExitTimestampMs, &r.ExitPrice, &r.ExitReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan policy result: %w", err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policy results: %w", err)
	}
	return result, nil
}
