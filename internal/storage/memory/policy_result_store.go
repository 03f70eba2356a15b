package memory

import (
	"context"
	"sort"
	"sync"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

type policyResultKey struct {
	runID    string
	policyID string
	callID   string
}

// PolicyResultStore is an in-memory implementation of storage.PolicyResultStore.
type PolicyResultStore struct {
	mu   sync.RWMutex
	data map[policyResultKey]*domain.PolicyResultRow
}

// NewPolicyResultStore creates a new in-memory policy result store.
func NewPolicyResultStore() *PolicyResultStore {
	return &PolicyResultStore{
		data: make(map[policyResultKey]*domain.PolicyResultRow),
	}
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *PolicyResultStore) InsertBulk(_ context.Context, rows []*domain.PolicyResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[policyResultKey]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RunID == "" || r.PolicyID == "" || r.CallID == "" {
			return storage.ErrInvalidInput
		}
		k := policyResultKey{r.RunID, r.PolicyID, r.CallID}
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
		s.data[policyResultKey{r.RunID, r.PolicyID, r.CallID}] = &cp
	}
	return nil
}

// GetByRun retrieves all rows of a run, ordered by policy_id, entry_ts, call_id ASC.
func (s *PolicyResultStore) GetByRun(_ context.Context, runID string) ([]*domain.PolicyResultRow, error) {
	return s.filter(func(k policyResultKey) bool { return k.runID == runID }), nil
}

// GetByRunPolicy retrieves the rows of one policy in a run.
func (s *PolicyResultStore) GetByRunPolicy(_ context.Context, runID, policyID string) ([]*domain.PolicyResultRow, error) {
	return s.filter(func(k policyResultKey) bool { return k.runID == runID && k.policyID == policyID }), nil
}

func (s *PolicyResultStore) filter(keep func(policyResultKey) bool) []*domain.PolicyResultRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PolicyResultRow
	for k, r := range s.data {
		if keep(k) {
			cp := *r
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.PolicyID != b.PolicyID {
			return a.PolicyID < b.PolicyID
		}
		if a.EntryTimestampMs != b.EntryTimestampMs {
			return a.EntryTimestampMs < b.EntryTimestampMs
		}
		return a.CallID < b.CallID
	})
	return result
}

var _ storage.PolicyResultStore = (*PolicyResultStore)(nil)
