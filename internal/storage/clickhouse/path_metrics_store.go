package clickhouse

import (
	"context"
	"errors"
	"fmt"

	"alertlab/internal/domain"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/storage"
)

// PathMetricsStore implements storage.PathMetricsStore using ClickHouse.
// Rows live in a ReplacingMergeTree keyed by call_id; reads use FINAL.
type PathMetricsStore struct {
	conn *Conn
}

// NewPathMetricsStore creates a new PathMetricsStore.
func NewPathMetricsStore(conn *Conn) *PathMetricsStore {
	return &PathMetricsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PathMetricsStore = (*PathMetricsStore)(nil)

const selectPathMetricsColumns = `
	SELECT
		call_id, entry_ts, entry_price,
		hit_2x, hit_3x, hit_4x,
		hit_2x_ts, hit_3x_ts, hit_4x_ts,
		time_to_2x_ms, time_to_3x_ms, time_to_4x_ms,
		max_adverse_excursion_bps, peak_multiple, peak_ts,
		candle_count, window_end_ms
	FROM path_metrics FINAL
`

// Put stores a truth row. Identical rows are a no-op, differing rows return ErrTruthConflict.
func (s *PathMetricsStore) Put(ctx context.Context, m *domain.PathMetricsRow) error {
	if m == nil || m.CallID == "" {
		return storage.ErrInvalidInput
	}

	existing, err := s.GetByCallID(ctx, m.CallID)
	switch {
	case err == nil:
		if pathmetrics.Equal(existing, m) {
			return nil
		}
		return storage.ErrTruthConflict
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("check existing path metrics: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO path_metrics (
			call_id, entry_ts, entry_price,
			hit_2x, hit_3x, hit_4x,
			hit_2x_ts, hit_3x_ts, hit_4x_ts,
			time_to_2x_ms, time_to_3x_ms, time_to_4x_ms,
			max_adverse_excursion_bps, peak_multiple, peak_ts,
			candle_count, window_end_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		m.CallID, m.EntryTimestampMs, m.EntryPrice,
		m.Hit2x, m.Hit3x, m.Hit4x,
		m.Hit2xTimestampMs, m.Hit3xTimestampMs, m.Hit4xTimestampMs,
		m.TimeTo2xMs, m.TimeTo3xMs, m.TimeTo4xMs,
		m.MaxAdverseExcursionBps, m.PeakMultiple, m.PeakTimestampMs,
		uint32(m.CandleCount), m.WindowEndMs,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByCallID retrieves the truth row of a call. Returns ErrNotFound if not exists.
func (s *PathMetricsStore) GetByCallID(ctx context.Context, callID string) (*domain.PathMetricsRow, error) {
	rows, err := s.conn.Query(ctx, selectPathMetricsColumns+` WHERE call_id = ?`, callID)
	if err != nil {
		return nil, fmt.Errorf("query path metrics by call id: %w", err)
	}
	defer rows.Close()

	result, err := scanPathMetrics(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

// GetAll retrieves all truth rows, ordered by call_id ASC.
func (s *PathMetricsStore) GetAll(ctx context.Context) ([]*domain.PathMetricsRow, error) {
	rows, err := s.conn.Query(ctx, selectPathMetricsColumns+` ORDER BY call_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query all path metrics: %w", err)
	}
	defer rows.Close()

	return scanPathMetrics(rows)
}

func scanPathMetrics(rows chRows) ([]*domain.PathMetricsRow, error) {
	var result []*domain.PathMetricsRow
	for rows.Next() {
		var m domain.PathMetricsRow
		var candleCount uint32
		err := rows.Scan(
			&m.CallID, &m.EntryTimestampMs, &m.EntryPrice,
			&m.Hit2x, &m.Hit3x, &m.Hit4x,
			&m.Hit2xTimestampMs, &m.Hit3xTimestampMs, &m.Hit4xTimestampMs,
			&m.TimeTo2xMs, &m.TimeTo3xMs, &m.TimeTo4xMs,
			&m.MaxAdverseExcursionBps, &m.PeakMultiple, &m.PeakTimestampMs,
			&candleCount, &m.WindowEndMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan path metrics: %w", err)
		}
		m.CandleCount = int(candleCount)
		result = append(result, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path metrics: %w", err)
	}
	return result, nil
}
