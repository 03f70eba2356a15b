// Package series validates candle series and exposes them through a forward-only cursor.
package series

import (
	"fmt"
	"math"
	"sort"

	"alertlab/internal/clock"
	"alertlab/internal/domain"
)

// Validate checks that a series is non-empty, strictly increasing in time and has
// finite, consistent OHLC values. Problems are reported as *domain.DataError.
func Validate(callID string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return &domain.DataError{CallID: callID, Reason: "empty candle series"}
	}

	for i, c := range candles {
		if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) || !finite(c.Volume) {
			return &domain.DataError{CallID: callID, Reason: fmt.Sprintf("non-finite value at candle %d", i)}
		}
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return &domain.DataError{CallID: callID, Reason: fmt.Sprintf("non-positive price at candle %d", i)}
		}
		if c.Low > c.High || c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
			return &domain.DataError{CallID: callID, Reason: fmt.Sprintf("inconsistent OHLC at candle %d", i)}
		}
		if i > 0 {
			prev := candles[i-1].TimestampMs
			switch {
			case c.TimestampMs == prev:
				return &domain.DataError{CallID: callID, Reason: fmt.Sprintf("duplicate timestamp %d at candle %d", c.TimestampMs, i)}
			case c.TimestampMs < prev:
				return &domain.DataError{CallID: callID, Reason: fmt.Sprintf("timestamp inversion at candle %d", i)}
			}
		}
	}
	return nil
}

// AnchorIndex returns the index of the first candle with timestamp >= ts.
// Returns -1 if no such candle exists.
func AnchorIndex(candles []domain.Candle, ts int64) int {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].TimestampMs >= ts
	})
	if i == len(candles) {
		return -1
	}
	return i
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Cursor streams a validated series forward, one candle per Advance.
// Candles after the current one are never exposed; asking for them panics.
type Cursor struct {
	candles []domain.Candle
	clk     *clock.Clock
	start   int
}

// NewCursor creates a cursor positioned before candles[start].
func NewCursor(candles []domain.Candle, start int) *Cursor {
	ts := make([]int64, len(candles)-start)
	for i := range ts {
		ts[i] = candles[start+i].TimestampMs
	}
	return &Cursor{candles: candles, clk: clock.New(ts), start: start}
}

// Advance steps to the next candle. Returns false at end of data.
func (c *Cursor) Advance() bool {
	return c.clk.Advance()
}

// Current returns the candle the cursor is on.
func (c *Cursor) Current() domain.Candle {
	if !c.clk.Started() {
		panic("series: cursor not positioned on a candle")
	}
	return c.candles[c.start+c.clk.Index()]
}

// Index returns the absolute index of the current candle.
func (c *Cursor) Index() int {
	return c.start + c.clk.Index()
}

// Now returns the current candle timestamp.
func (c *Cursor) Now() int64 {
	return c.clk.Now()
}

// IsLast reports whether the current candle is the final one.
// Only the series length is inspected, never the contents of later candles.
func (c *Cursor) IsLast() bool {
	return c.clk.Index() == c.clk.Len()-1
}

// At returns the candle at absolute index i. Accessing a candle after the current one
// is a causality breach and panics.
func (c *Cursor) At(i int) domain.Candle {
	if i > c.Index() {
		panic(fmt.Sprintf("series: causal access violation: read candle %d while at %d", i, c.Index()))
	}
	return c.candles[i]
}
