package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// runNamespace scopes name-based run ids.
var runNamespace = uuid.MustParse("6f1c2d3e-8a4b-5c6d-9e0f-1a2b3c4d5e6f")

// ComputeSeed derives a 64-bit RNG seed from a run identifier and a config hash.
// Formula: first 8 bytes (big endian) of SHA256(run_id|config_hash)
func ComputeSeed(runID string, configHash string) uint64 {
	hash := sha256.Sum256([]byte(runID + "|" + configHash))
	return binary.BigEndian.Uint64(hash[:8])
}

// DeriveSeed derives a child seed from a parent seed and a key without any shared state.
// Formula: first 8 bytes (big endian) of SHA256(parent_seed|key)
func DeriveSeed(parent uint64, key string) uint64 {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", parent, key)))
	return binary.BigEndian.Uint64(hash[:8])
}

// ComputeRunID returns a name-based (SHA-1, version 5) UUID for run content.
// Identical run content always yields the same run id.
func ComputeRunID(content string) string {
	return uuid.NewSHA1(runNamespace, []byte(content)).String()
}
