// Package dataset reads JSON files of calls and candle series and loads them into stores.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"alertlab/internal/domain"
	"alertlab/internal/idhash"
	"alertlab/internal/storage"
)

// File is the JSON layout of a data file.
type File struct {
	Calls  []Call   `json:"calls"`
	Series []Series `json:"series"`
}

// Call is one alert. An empty CallID is derived from caller, symbol and timestamp.
type Call struct {
	CallID           string  `json:"call_id,omitempty"`
	CallerID         string  `json:"caller_id"`
	Symbol           string  `json:"symbol"`
	EntryTimestampMs int64   `json:"entry_ts_ms"`
	ReferencePrice   float64 `json:"reference_price,omitempty"`
}

// Series is the candle history of one symbol. Interval defaults to 1m.
type Series struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval,omitempty"`
	Candles  []Candle `json:"candles"`
}

// Candle is one OHLCV bar.
type Candle struct {
	TimestampMs int64   `json:"ts_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// Stats counts what Import stored.
type Stats struct {
	Calls   int
	Series  int
	Candles int
}

// Load reads a data file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a data file. Unknown fields are rejected.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}
	return &f, nil
}

// DomainCalls converts the calls, deriving missing ids.
func (f *File) DomainCalls() []*domain.Call {
	calls := make([]*domain.Call, 0, len(f.Calls))
	for _, c := range f.Calls {
		id := c.CallID
		if id == "" {
			id = idhash.ComputeCallID(c.CallerID, c.Symbol, c.EntryTimestampMs)
		}
		calls = append(calls, &domain.Call{
			CallID:           id,
			CallerID:         c.CallerID,
			Symbol:           c.Symbol,
			EntryTimestampMs: c.EntryTimestampMs,
			ReferencePrice:   c.ReferencePrice,
		})
	}
	return calls
}

// Import inserts every call and candle series. Calls go in one batch,
// so a duplicate call id rejects all of them.
func (f *File) Import(ctx context.Context, calls storage.CallStore, candles storage.CandleStore) (Stats, error) {
	var st Stats

	dc := f.DomainCalls()
	if err := calls.InsertBulk(ctx, dc); err != nil {
		return st, fmt.Errorf("insert calls: %w", err)
	}
	st.Calls = len(dc)

	for _, ser := range f.Series {
		interval := ser.Interval
		if interval == "" {
			interval = domain.Interval1m
		}
		bars := make([]domain.Candle, 0, len(ser.Candles))
		for _, c := range ser.Candles {
			bars = append(bars, domain.Candle(c))
		}
		if err := candles.InsertBulk(ctx, ser.Symbol, interval, bars); err != nil {
			return st, fmt.Errorf("insert candles of %s: %w", ser.Symbol, err)
		}
		st.Series++
		st.Candles += len(bars)
	}
	return st, nil
}
