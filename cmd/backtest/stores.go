package main

import (
	"context"

	"github.com/rs/zerolog"

	"alertlab/internal/dataset"
	"alertlab/internal/storage/stores"
)

// openStores connects PostgreSQL and ClickHouse, or builds memory stores seeded
// from the data file when --use-memory is set.
func openStores(ctx context.Context, a *app) (*stores.Set, error) {
	if useMemory {
		s := stores.NewMemory()
		if dataPath != "" {
			if err := importData(ctx, s, dataPath, a.logger); err != nil {
				return nil, err
			}
		}
		return s, nil
	}
	return stores.Open(ctx, a.cfg.Storage.PostgresDSN, a.cfg.Storage.ClickhouseDSN)
}

// importData loads a data file into the call and candle stores.
func importData(ctx context.Context, s *stores.Set, path string, logger zerolog.Logger) error {
	f, err := dataset.Load(path)
	if err != nil {
		return err
	}
	st, err := f.Import(ctx, s.Calls, s.Candles)
	if err != nil {
		return err
	}
	logger.Info().Int("calls", st.Calls).Int("series", st.Series).Int("candles", st.Candles).Str("path", path).Msg("data imported")
	return nil
}
