package memory

import (
	"context"
	"sort"
	"sync"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

type optimizerResultKey struct {
	runID     string
	configKey string
}

// OptimizerResultStore is an in-memory implementation of storage.OptimizerResultStore.
type OptimizerResultStore struct {
	mu   sync.RWMutex
	data map[optimizerResultKey]*domain.OptimizerResultRow
}

// NewOptimizerResultStore creates a new in-memory optimizer result store.
func NewOptimizerResultStore() *OptimizerResultStore {
	return &OptimizerResultStore{
		data: make(map[optimizerResultKey]*domain.OptimizerResultRow),
	}
}

// InsertBulk adds ranked rows atomically. Fails entire batch on any duplicate.
func (s *OptimizerResultStore) InsertBulk(_ context.Context, rows []*domain.OptimizerResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[optimizerResultKey]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RunID == "" || r.ConfigKey == "" {
			return storage.ErrInvalidInput
		}
		k := optimizerResultKey{r.RunID, r.ConfigKey}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, r := range rows {
		cp := *r
		cp.Violations = append([]string(nil), r.Violations...)
		s.data[optimizerResultKey{r.RunID, r.ConfigKey}] = &cp
	}
	return nil
}

// GetByRun retrieves all rows of a run, ordered by rank ASC.
func (s *OptimizerResultStore) GetByRun(_ context.Context, runID string) ([]*domain.OptimizerResultRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OptimizerResultRow
	for k, r := range s.data {
		if k.runID == runID {
			cp := *r
			cp.Violations = append([]string(nil), r.Violations...)
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].ConfigKey < result[j].ConfigKey
	})
	return result, nil
}

var _ storage.OptimizerResultStore = (*OptimizerResultStore)(nil)
