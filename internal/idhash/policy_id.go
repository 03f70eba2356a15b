package idhash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mr-tron/base58"
)

// ComputePolicyID computes a compact deterministic policy_id.
// Formula: base58(SHA256(kind|canonical_params)[:16])
// The canonical form must list parameters in a fixed order.
func ComputePolicyID(kind string, canonicalParams string) string {
	hash := sha256.Sum256([]byte(kind + "|" + canonicalParams))
	return kind + "_" + base58.Encode(hash[:16])
}

// ComputeConfigHash computes a hex-encoded SHA256 of a canonical config key.
func ComputeConfigHash(canonicalKey string) string {
	hash := sha256.Sum256([]byte(canonicalKey))
	return hex.EncodeToString(hash[:])
}
