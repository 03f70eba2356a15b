package memory

import (
	"context"
	"sort"
	"sync"

	"alertlab/internal/domain"
	"alertlab/internal/pathmetrics"
	"alertlab/internal/storage"
)

// PathMetricsStore is an in-memory implementation of storage.PathMetricsStore.
type PathMetricsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PathMetricsRow // keyed by call_id
}

// NewPathMetricsStore creates a new in-memory path metrics store.
func NewPathMetricsStore() *PathMetricsStore {
	return &PathMetricsStore{
		data: make(map[string]*domain.PathMetricsRow),
	}
}

// Put stores a truth row. Identical rows are a no-op, differing rows return ErrTruthConflict.
func (s *PathMetricsStore) Put(_ context.Context, m *domain.PathMetricsRow) error {
	if m == nil || m.CallID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.data[m.CallID]; exists {
		if pathmetrics.Equal(existing, m) {
			return nil
		}
		return storage.ErrTruthConflict
	}

	s.data[m.CallID] = copyPathMetrics(m)
	return nil
}

// GetByCallID retrieves the truth row of a call. Returns ErrNotFound if not exists.
func (s *PathMetricsStore) GetByCallID(_ context.Context, callID string) (*domain.PathMetricsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[callID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyPathMetrics(m), nil
}

// GetAll retrieves all truth rows, ordered by call_id ASC.
func (s *PathMetricsStore) GetAll(_ context.Context) ([]*domain.PathMetricsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PathMetricsRow, 0, len(s.data))
	for _, m := range s.data {
		result = append(result, copyPathMetrics(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CallID < result[j].CallID
	})
	return result, nil
}

// copyPathMetrics copies m including its optional timestamps, so stored rows never
// share memory with callers.
func copyPathMetrics(m *domain.PathMetricsRow) *domain.PathMetricsRow {
	cp := *m
	for _, f := range []**int64{
		&cp.Hit2xTimestampMs, &cp.Hit3xTimestampMs, &cp.Hit4xTimestampMs,
		&cp.TimeTo2xMs, &cp.TimeTo3xMs, &cp.TimeTo4xMs,
	} {
		if *f != nil {
			v := **f
			*f = &v
		}
	}
	return &cp
}

var _ storage.PathMetricsStore = (*PathMetricsStore)(nil)
