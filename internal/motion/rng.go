// Package motion provides the human-motion engine: a seeded, time-budgeted
// choreographer that drives a recorded browser page with cursor paths,
// micro-hovers, and inertial scrolling. The same URL and duration always
// produce the same choreography.
package motion

// SeedFromURL derives the engine seed as the 32-bit FNV-1a hash of the
// scene URL.
func SeedFromURL(url string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(url); i++ {
		h ^= uint32(url[i])
		h *= prime32
	}
	return h
}

// RNG is a Mulberry32 pseudo-random generator. It is deliberately small and
// reproducible; choreography must be frame-stable across runs.
type RNG struct {
	state uint32
}

// NewRNG creates a generator with the given seed.
func NewRNG(seed uint32) *RNG {
	return &RNG{state: seed}
}

// next advances the Mulberry32 state and returns the next 32-bit value.
func (r *RNG) next() uint32 {
	r.state += 0x6D2B79F5
	z := r.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

// Float64 returns a value in [0, 1).
func (r *RNG) Float64() float64 {
	return float64(r.next()) / 4294967296.0
}

// Range returns a value in [min, max).
func (r *RNG) Range(min, max float64) float64 {
	return min + r.Float64()*(max-min)
}

// IntRange returns an integer in [min, max].
func (r *RNG) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(r.Float64()*float64(max-min+1))
}

// Chance returns true with probability p.
func (r *RNG) Chance(p float64) bool {
	return r.Float64() < p
}

// Sign returns +1 or -1 with equal probability.
func (r *RNG) Sign() float64 {
	if r.Chance(0.5) {
		return 1
	}
	return -1
}

// Pick returns a random index in [0, n).
func (r *RNG) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return int(r.Float64() * float64(n))
}
