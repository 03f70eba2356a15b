package memory

import (
	"context"
	"sort"
	"sync"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

// CallStore is an in-memory implementation of storage.CallStore.
type CallStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Call // keyed by call_id
}

// NewCallStore creates a new in-memory call store.
func NewCallStore() *CallStore {
	return &CallStore{
		data: make(map[string]*domain.Call),
	}
}

// Insert adds a new call. Returns ErrDuplicateKey if call_id exists.
func (s *CallStore) Insert(_ context.Context, c *domain.Call) error {
	if c == nil || c.CallID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.CallID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *c
	s.data[c.CallID] = &cp
	return nil
}

// InsertBulk adds multiple calls atomically. Fails entire batch on any duplicate.
func (s *CallStore) InsertBulk(_ context.Context, calls []*domain.Call) error {
	if len(calls) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		if c == nil || c.CallID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[c.CallID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[c.CallID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[c.CallID] = struct{}{}
	}

	for _, c := range calls {
		cp := *c
		s.data[c.CallID] = &cp
	}
	return nil
}

// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
func (s *CallStore) GetByID(_ context.Context, callID string) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[callID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *c
	return &cp, nil
}

// GetByCaller retrieves all calls of a caller, ordered by entry_ts ASC, call_id ASC.
func (s *CallStore) GetByCaller(_ context.Context, callerID string) ([]*domain.Call, error) {
	return s.filter(func(c *domain.Call) bool { return c.CallerID == callerID }), nil
}

// GetAll retrieves all calls, ordered by entry_ts ASC, call_id ASC.
func (s *CallStore) GetAll(_ context.Context) ([]*domain.Call, error) {
	return s.filter(func(*domain.Call) bool { return true }), nil
}

func (s *CallStore) filter(keep func(*domain.Call) bool) []*domain.Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Call
	for _, c := range s.data {
		if keep(c) {
			cp := *c
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].EntryTimestampMs != result[j].EntryTimestampMs {
			return result[i].EntryTimestampMs < result[j].EntryTimestampMs
		}
		return result[i].CallID < result[j].CallID
	})
	return result
}

var _ storage.CallStore = (*CallStore)(nil)
