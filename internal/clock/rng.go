// Package clock provides the deterministic time and randomness sources of the simulation core.
// Nothing in the core reads wall-clock time or an unseeded random source.
package clock

import (
	"math/rand/v2"

	"alertlab/internal/idhash"
)

// streamSalt separates the second PCG word from the seed.
const streamSalt = 0x9E3779B97F4A7C15

// RNG is a seeded, forkable random stream. It is not safe for concurrent use:
// parallel workers take their own stream via Clone or Derive.
type RNG struct {
	seed uint64
	r    *rand.Rand
}

// NewRNG creates a stream from a 64-bit seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{
		seed: seed,
		r:    rand.New(rand.NewPCG(seed, seed^streamSalt)),
	}
}

// NewRunRNG creates the stream for one (run, config) pair.
func NewRunRNG(runID, configHash string) *RNG {
	return NewRNG(SeedFromRunID(runID, configHash))
}

// SeedFromRunID derives the seed for a run identifier and config hash.
func SeedFromRunID(runID, configHash string) uint64 {
	return idhash.ComputeSeed(runID, configHash)
}

// Seed returns the seed the stream was created from.
func (g *RNG) Seed() uint64 {
	return g.seed
}

// Next returns a float in [0, 1).
func (g *RNG) Next() float64 {
	return g.r.Float64()
}

// NextInt returns an int in [min, max). It panics if max <= min.
func (g *RNG) NextInt(min, max int) int {
	if max <= min {
		panic("clock: NextInt called with empty range")
	}
	return min + g.r.IntN(max-min)
}

// Uniform returns a float in [lo, hi).
func (g *RNG) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.r.Float64()
}

// Clone returns an independent stream seeded from the parent's next draw.
// The parent advances by one draw.
func (g *RNG) Clone() *RNG {
	return NewRNG(g.r.Uint64())
}

// Derive returns a child stream keyed by (seed, key) without advancing the parent.
// The result does not depend on how many draws the parent has made.
func (g *RNG) Derive(key string) *RNG {
	return NewRNG(idhash.DeriveSeed(g.seed, key))
}
