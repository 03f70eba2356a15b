package clock

// Clock steps over the timestamps of a candle series, one candle at a time.
type Clock struct {
	timestamps []int64
	idx        int
}

// New creates a clock positioned before the first timestamp.
func New(timestamps []int64) *Clock {
	return &Clock{timestamps: timestamps, idx: -1}
}

// Advance steps exactly one candle. It returns false once the series is exhausted.
func (c *Clock) Advance() bool {
	if c.idx+1 >= len(c.timestamps) {
		c.idx = len(c.timestamps)
		return false
	}
	c.idx++
	return true
}

// Index returns the current candle index, -1 before the first Advance.
func (c *Clock) Index() int {
	return c.idx
}

// Started reports whether Advance has succeeded at least once and the clock is not exhausted.
func (c *Clock) Started() bool {
	return c.idx >= 0 && c.idx < len(c.timestamps)
}

// Now returns the current candle timestamp, or 0 when not positioned on a candle.
func (c *Clock) Now() int64 {
	if !c.Started() {
		return 0
	}
	return c.timestamps[c.idx]
}

// Len returns the number of steps in the series.
func (c *Clock) Len() int {
	return len(c.timestamps)
}
