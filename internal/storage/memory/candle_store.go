package memory

import (
	"context"
	"sort"
	"sync"

	"alertlab/internal/domain"
	"alertlab/internal/storage"
)

type seriesKey struct {
	symbol   string
	interval string
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[seriesKey][]domain.Candle // sorted by timestamp
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[seriesKey][]domain.Candle),
	}
}

// InsertBulk adds candles of one series. Fails entire batch on duplicate timestamp.
func (s *CandleStore) InsertBulk(_ context.Context, symbol, interval string, candles []domain.Candle) error {
	if symbol == "" || domain.IntervalMs(interval) == 0 {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey{symbol, interval}
	existing := s.data[key]

	seen := make(map[int64]struct{}, len(existing)+len(candles))
	for _, c := range existing {
		seen[c.TimestampMs] = struct{}{}
	}
	for _, c := range candles {
		if _, exists := seen[c.TimestampMs]; exists {
			return storage.ErrDuplicateKey
		}
		seen[c.TimestampMs] = struct{}{}
	}

	merged := append(append(make([]domain.Candle, 0, len(existing)+len(candles)), existing...), candles...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].TimestampMs < merged[j].TimestampMs
	})
	s.data[key] = merged
	return nil
}

// GetRange retrieves candles within [start, end] (inclusive), ordered by timestamp ASC.
func (s *CandleStore) GetRange(_ context.Context, symbol, interval string, start, end int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.data[seriesKey{symbol, interval}]
	lo := sort.Search(len(all), func(i int) bool { return all[i].TimestampMs >= start })
	hi := sort.Search(len(all), func(i int) bool { return all[i].TimestampMs > end })
	if lo >= hi {
		return nil, nil
	}

	out := make([]domain.Candle, hi-lo)
	copy(out, all[lo:hi])
	return out, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
