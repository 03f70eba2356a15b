package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeCallID computes a deterministic call_id using SHA256.
// Formula: SHA256(caller_id|symbol|entry_timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeCallID(
	callerID string,
	symbol string,
	entryTimestampMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%d",
		callerID,
		symbol,
		entryTimestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
