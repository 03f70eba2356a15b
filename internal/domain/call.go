package domain

// Call represents a market alert issued by a caller.
// Corresponds to calls table in PostgreSQL.
type Call struct {
	CallID           string  // PRIMARY KEY, deterministic hash
	CallerID         string  // who issued the alert
	Symbol           string  // instrument identifier
	EntryTimestampMs int64   // alert timestamp (ms)
	ReferencePrice   float64 // price quoted in the alert, 0 if none
	CreatedAt        int64   // record creation timestamp (ms)
}
